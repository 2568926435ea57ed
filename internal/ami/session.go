package ami

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrAuthFailed is returned by Login when the manager rejects the credentials.
var ErrAuthFailed = errors.New("ami: authentication failed")

// ErrClosed is returned by Events when the manager closes the connection.
var ErrClosed = errors.New("ami: connection closed")

// Session is a single authenticated-or-not connection to the Asterisk manager.
// Events must be consumed from one goroutine; Logoff and Close may be called
// from another.
type Session struct {
	conn   net.Conn
	parser *Parser
	banner string

	mu       sync.Mutex // serializes writes
	actionID int
}

type dialOptions struct {
	timeout time.Duration
	tee     io.Writer
}

// DialOption configures Dial.
type DialOption func(*dialOptions)

// WithTimeout bounds the TCP connect and banner read.
func WithTimeout(d time.Duration) DialOption {
	return func(o *dialOptions) { o.timeout = d }
}

// WithTee copies every byte read from the manager, banner included, to w.
func WithTee(w io.Writer) DialOption {
	return func(o *dialOptions) { o.tee = w }
}

// Dial connects to the manager at addr and reads its banner.
func Dial(ctx context.Context, addr string, opts ...DialOption) (*Session, error) {
	o := dialOptions{timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	d := net.Dialer{Timeout: o.timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial AMI: %w", err)
	}

	var r io.Reader = conn
	if o.tee != nil {
		r = io.TeeReader(conn, o.tee)
	}
	reader := bufio.NewReader(r)

	if o.timeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(o.timeout))
	}
	banner, err := reader.ReadString('\n')
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading AMI banner: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	return &Session{
		conn:   conn,
		parser: NewParser(reader),
		banner: strings.TrimSpace(banner),
	}, nil
}

// Banner returns the greeting line sent by the manager.
func (s *Session) Banner() string {
	return s.banner
}

// Login authenticates the session. A rejected login wraps ErrAuthFailed.
func (s *Session) Login(username, secret string) error {
	id, err := s.action("Login", "Username", username, "Secret", secret)
	if err != nil {
		return fmt.Errorf("sending login: %w", err)
	}

	for {
		evt, ok := s.parser.Next()
		if !ok {
			return fmt.Errorf("reading login response: %w", s.readErr())
		}
		if !evt.IsResponse() {
			continue
		}
		if aid := evt.Get("ActionID"); aid != "" && aid != id {
			continue
		}
		if evt.Get("Response") != "Success" {
			return fmt.Errorf("%w: %s", ErrAuthFailed, evt.Get("Message"))
		}
		return nil
	}
}

// Events calls fn once per inbound event, in arrival order, until the
// connection ends. Action responses are not passed to fn.
func (s *Session) Events(fn func(Event)) error {
	for {
		evt, ok := s.parser.Next()
		if !ok {
			return s.readErr()
		}
		if evt.IsResponse() {
			continue
		}
		fn(evt)
	}
}

// Logoff asks the manager to end the session.
func (s *Session) Logoff() error {
	if _, err := s.action("Logoff"); err != nil {
		return fmt.Errorf("sending logoff: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) action(name string, kvs ...string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.actionID++
	id := strconv.Itoa(s.actionID)

	var b strings.Builder
	fmt.Fprintf(&b, "Action: %s\r\nActionID: %s\r\n", name, id)
	for i := 0; i+1 < len(kvs); i += 2 {
		fmt.Fprintf(&b, "%s: %s\r\n", kvs[i], kvs[i+1])
	}
	b.WriteString("\r\n")

	_, err := io.WriteString(s.conn, b.String())
	return id, err
}

func (s *Session) readErr() error {
	if err := s.parser.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return ErrClosed
}
