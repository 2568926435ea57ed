package publisher

import "context"

// Publisher delivers an encoded notification. Topic is used by brokers that
// route on it and ignored by point-to-point transports such as the webhook.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}
