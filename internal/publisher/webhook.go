package publisher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const userAgent = "asterisk-callhook/1.0"

// DeliveryIDHeader carries the per-notification delivery id.
const DeliveryIDHeader = "X-Callhook-Delivery"

type deliveryIDKey struct{}

// WithDeliveryID attaches a delivery id to ctx; the webhook sends it as a header.
func WithDeliveryID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, deliveryIDKey{}, id)
}

// WebhookPublisher POSTs each notification as JSON to a fixed URL.
type WebhookPublisher struct {
	url    string
	client *http.Client
	logger *log.Logger
}

// WebhookOptions configures the webhook publisher.
type WebhookOptions struct {
	URL     string
	Timeout time.Duration
	Logger  *log.Logger
}

// NewWebhookPublisher builds a webhook publisher. A zero timeout means 10s.
func NewWebhookPublisher(opts WebhookOptions) *WebhookPublisher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &WebhookPublisher{
		url:    opts.URL,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (p *WebhookPublisher) Name() string {
	return "webhook " + p.url
}

// Publish sends payload. A non-2xx response is returned as an error carrying
// the status code and response text.
func (p *WebhookPublisher) Publish(ctx context.Context, _ string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	if id, ok := ctx.Value(deliveryIDKey{}).(string); ok && id != "" {
		req.Header.Set(DeliveryIDHeader, id)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	text := strings.TrimSpace(string(body))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, text)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	p.logger.Printf("%d: %s", resp.StatusCode, text)
	return nil
}

// Close releases idle connections.
func (p *WebhookPublisher) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
