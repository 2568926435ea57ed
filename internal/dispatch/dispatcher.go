// Package dispatch routes inbound AMI events through the subscription table
// and hands rendered notifications to a sink.
package dispatch

import (
	"log"
	"sort"
	"strings"

	"github.com/sweeney/asterisk-callhook/internal/ami"
	"github.com/sweeney/asterisk-callhook/internal/notify"
	"github.com/sweeney/asterisk-callhook/internal/rules"
)

// Sink accepts notifications. Send must not block.
type Sink interface {
	Send(notify.Payload)
}

// Dispatcher evaluates each event against a frozen rule table. It runs on the
// event-arrival path and performs no I/O of its own.
type Dispatcher struct {
	table    *rules.Table
	sink     Sink
	logger   *log.Logger
	eventLog bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. Defaults to log.Default().
func WithLogger(l *log.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithEventLog logs the kind and fields of every inbound event.
func WithEventLog(enabled bool) Option {
	return func(d *Dispatcher) { d.eventLog = enabled }
}

// New creates a Dispatcher over table, freezing it.
func New(table *rules.Table, sink Sink, opts ...Option) *Dispatcher {
	table.Freeze()
	d := &Dispatcher{
		table:  table,
		sink:   sink,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs evt through every rule in registration order. Each matching
// rule's handler is invoked once; its payload goes to the sink. A handler
// error skips that rule only. It returns the number of notifications sent.
func (d *Dispatcher) Dispatch(evt ami.Event) int {
	if evt.IsResponse() {
		return 0
	}
	if d.eventLog {
		d.logger.Printf("event %s %s", evt.Type(), formatFields(evt))
	}

	sent := 0
	for _, r := range d.table.Rules() {
		if !rules.Matches(evt, r) {
			continue
		}
		payload, err := r.Handler(evt)
		if err != nil {
			d.logger.Printf("rule %s: %v", r.Name, err)
			continue
		}
		if payload == nil {
			continue
		}
		d.sink.Send(payload)
		sent++
	}
	return sent
}

// OnEvent is the callback form used by session providers that deliver an
// event as a kind plus a field map.
func (d *Dispatcher) OnEvent(kind string, fields map[string]string) {
	d.Dispatch(ami.FromFields(kind, fields))
}

func formatFields(evt ami.Event) string {
	fields := evt.Fields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "Event" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(fields[k])
	}
	b.WriteByte('}')
	return b.String()
}
