package publisher

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWebhookPublish(t *testing.T) {
	var gotBody, gotType, gotID, gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotType = r.Header.Get("Content-Type")
		gotID = r.Header.Get(DeliveryIDHeader)
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.Write([]byte("ok\n"))
	}))
	defer server.Close()

	var logs bytes.Buffer
	p := NewWebhookPublisher(WebhookOptions{
		URL:    server.URL + "/cgi-bin/aid/call",
		Logger: log.New(&logs, "", 0),
	})
	defer p.Close()

	payload := `{"event":"Hangup","callid":"1.2","remote":"+49"}`
	ctx := WithDeliveryID(context.Background(), "d-1")
	if err := p.Publish(ctx, "ignored/topic", []byte(payload)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("expected POST, got %s", gotMethod)
	}
	if gotPath != "/cgi-bin/aid/call" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if gotBody != payload {
		t.Errorf("unexpected body %s", gotBody)
	}
	if gotType != "application/json" {
		t.Errorf("unexpected content type %s", gotType)
	}
	if gotID != "d-1" {
		t.Errorf("expected delivery id header, got %q", gotID)
	}
	if strings.TrimSpace(logs.String()) != "200: ok" {
		t.Errorf("expected status log, got %q", logs.String())
	}
}

func TestWebhookNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "script failed", http.StatusInternalServerError)
	}))
	defer server.Close()

	p := NewWebhookPublisher(WebhookOptions{URL: server.URL, Logger: log.New(io.Discard, "", 0)})
	err := p.Publish(context.Background(), "", []byte("{}"))
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if err.Error() != "webhook returned 500: script failed" {
		t.Errorf("unexpected error %q", err.Error())
	}
}

func TestWebhookTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	p := NewWebhookPublisher(WebhookOptions{URL: server.URL, Timeout: 50 * time.Millisecond})
	start := time.Now()
	if err := p.Publish(context.Background(), "", []byte("{}")); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout was not enforced")
	}
}

func TestWebhookConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	p := NewWebhookPublisher(WebhookOptions{URL: url})
	if err := p.Publish(context.Background(), "", []byte("{}")); err == nil {
		t.Fatal("expected connection error")
	}
	if p.Name() != "webhook "+url {
		t.Errorf("unexpected name %q", p.Name())
	}
}
