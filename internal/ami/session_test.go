package ami_test

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/asterisk-callhook/internal/ami"
)

// fakeManager accepts one connection, answers Login with loginResponse,
// streams events and records every action block it receives.
type fakeManager struct {
	ln      net.Listener
	actions chan ami.Event
}

func newFakeManager(t *testing.T, loginResponse string, events string) *fakeManager {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	m := &fakeManager{ln: ln, actions: make(chan ami.Event, 8)}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		conn.Write([]byte("Asterisk Call Manager/5.0.1\r\n"))
		parser := ami.NewParser(bufio.NewReader(conn))
		for {
			action, ok := parser.Next()
			if !ok {
				return
			}
			m.actions <- action
			id := action.Get("ActionID")
			switch action.Get("Action") {
			case "Login":
				conn.Write([]byte(strings.ReplaceAll(loginResponse, "{id}", id)))
				if strings.Contains(loginResponse, "Success") {
					conn.Write([]byte(events))
				}
			case "Logoff":
				conn.Write([]byte("Response: Goodbye\r\nActionID: " + id + "\r\nMessage: Thanks for all the fish.\r\n\r\n"))
				return
			}
		}
	}()
	return m
}

func (m *fakeManager) nextAction(t *testing.T) ami.Event {
	t.Helper()
	select {
	case a := <-m.actions:
		return a
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for action")
		return ami.Event{}
	}
}

const successLogin = "Response: Success\r\nActionID: {id}\r\nMessage: Authentication accepted\r\n\r\n"

func TestSessionLoginAndEvents(t *testing.T) {
	events := "Event: Newstate\r\nChannelStateDesc: Ring\r\nContext: from-trunk\r\n\r\n" +
		"Response: Success\r\nActionID: 99\r\n\r\n" +
		"Event: Hangup\r\nContext: from-trunk\r\n\r\n"
	m := newFakeManager(t, successLogin, events)

	var raw bytes.Buffer
	sess, err := ami.Dial(context.Background(), m.ln.Addr().String(), ami.WithTimeout(2*time.Second), ami.WithTee(&raw))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer sess.Close()

	if sess.Banner() != "Asterisk Call Manager/5.0.1" {
		t.Errorf("unexpected banner %q", sess.Banner())
	}

	if err := sess.Login("admin", "s3cret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	login := m.nextAction(t)
	if login.Get("Username") != "admin" || login.Get("Secret") != "s3cret" {
		t.Errorf("unexpected login action %v", login.Fields())
	}
	if login.Get("ActionID") == "" {
		t.Error("expected login to carry an ActionID")
	}

	var got []string
	err = sess.Events(func(evt ami.Event) {
		got = append(got, evt.Type())
		if len(got) == 2 {
			sess.Logoff()
		}
	})
	if !errors.Is(err, ami.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	if strings.Join(got, ",") != "Newstate,Hangup" {
		t.Errorf("expected responses to be skipped, got %v", got)
	}

	m.nextAction(t) // login already consumed above, this is Logoff
	if !strings.HasPrefix(raw.String(), "Asterisk Call Manager/5.0.1") {
		t.Errorf("expected tee to include banner, got %q", raw.String())
	}
}

func TestSessionLoginRejected(t *testing.T) {
	m := newFakeManager(t, "Response: Error\r\nActionID: {id}\r\nMessage: Authentication failed\r\n\r\n", "")

	sess, err := ami.Dial(context.Background(), m.ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer sess.Close()

	err = sess.Login("admin", "wrong")
	if !errors.Is(err, ami.ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "Authentication failed") {
		t.Errorf("expected manager message in error, got %q", err.Error())
	}
}

func TestDialRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if _, err := ami.Dial(context.Background(), addr, ami.WithTimeout(time.Second)); err == nil {
		t.Fatal("expected dial error")
	}
}
