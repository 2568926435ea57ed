package notify

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/sweeney/asterisk-callhook/internal/textutil"
)

// Payload is a rendered notification. Implementations are plain structs whose
// JSON encoding is the wire body; EventName is the "event" discriminator.
type Payload interface {
	EventName() string
}

// Encode serializes p to its wire representation. Caller names such as
// "<unknown>" are written as-is rather than HTML-escaped.
func Encode(p Payload) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("marshaling %s payload: %w", p.EventName(), err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Topic returns the publish topic for p under prefix, e.g.
// "asterisk/notification/incoming_call".
func Topic(prefix string, p Payload) string {
	return fmt.Sprintf("%s/notification/%s", prefix, textutil.Slug(p.EventName()))
}
