package publisher

import (
	"context"
	"sync"
)

// Message records a single published message.
type Message struct {
	Topic   string
	Payload []byte
}

// MockPublisher records all publishes for test assertions.
type MockPublisher struct {
	mu       sync.Mutex
	messages []Message
	closed   bool
	err      error // if set, Publish returns this error
	hook     func(Message) error
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Name() string { return "mock" }

func (m *MockPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p := make([]byte, len(payload))
	copy(p, payload)
	msg := Message{Topic: topic, Payload: p}

	m.mu.Lock()
	hook, err := m.hook, m.err
	m.mu.Unlock()

	// The hook runs unlocked so it may block without stalling assertions.
	if hook != nil {
		if herr := hook(msg); herr != nil {
			return herr
		}
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Messages returns a copy of all published messages.
func (m *MockPublisher) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := make([]Message, len(m.messages))
	copy(msgs, m.messages)
	return msgs
}

// Reset clears all recorded messages.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

// Closed returns whether Close was called.
func (m *MockPublisher) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// SetError causes all subsequent Publish calls to return err.
// Pass nil to clear.
func (m *MockPublisher) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetHook installs fn to run on every Publish before it is recorded. A
// non-nil return fails that publish without recording it.
func (m *MockPublisher) SetHook(fn func(Message) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = fn
}
