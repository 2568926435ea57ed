package ami

import "sort"

// Event represents a parsed AMI event as an ordered set of key-value pairs.
type Event struct {
	headers []Header
}

// Header is a single "Key: Value" line of an AMI message.
type Header struct {
	Key   string
	Value string
}

// NewEvent creates an Event from a flat list of key-value pairs.
func NewEvent(kvs ...string) Event {
	e := Event{}
	for i := 0; i+1 < len(kvs); i += 2 {
		e.headers = append(e.headers, Header{Key: kvs[i], Value: kvs[i+1]})
	}
	return e
}

// FromFields creates an Event of the given kind from a field map.
// Fields are stored in key order so the result is deterministic.
func FromFields(kind string, fields map[string]string) Event {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "Event" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e := Event{headers: make([]Header, 0, len(keys)+1)}
	if kind != "" {
		e.headers = append(e.headers, Header{Key: "Event", Value: kind})
	}
	for _, k := range keys {
		e.headers = append(e.headers, Header{Key: k, Value: fields[k]})
	}
	return e
}

// Get returns the value for the given key, or empty string if not found.
func (e Event) Get(key string) string {
	v, _ := e.Lookup(key)
	return v
}

// Lookup returns the value for the given key and whether the key was present.
func (e Event) Lookup(key string) (string, bool) {
	for _, h := range e.headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return "", false
}

// Type returns the Event header value (the AMI event type).
func (e Event) Type() string {
	return e.Get("Event")
}

// Fields returns the headers as a map. The first occurrence of a key wins.
func (e Event) Fields() map[string]string {
	m := make(map[string]string, len(e.headers))
	for _, h := range e.headers {
		if _, dup := m[h.Key]; dup {
			continue
		}
		m[h.Key] = h.Value
	}
	return m
}

// Headers returns all headers in wire order.
func (e Event) Headers() []Header {
	return e.headers
}

// IsResponse returns true if this is an AMI response rather than an event.
func (e Event) IsResponse() bool {
	return e.Get("Response") != ""
}
