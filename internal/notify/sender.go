// Package notify queues rendered notifications and delivers them from a
// single background worker.
//
// Send never blocks the caller. Deliveries run one at a time in submission
// order; a slow publisher delays later deliveries but never event matching.
// When the queue is full the oldest pending notification is dropped.
package notify

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/asterisk-callhook/internal/publisher"
)

// DefaultQueueSize bounds the number of notifications waiting for delivery.
const DefaultQueueSize = 1024

// Task is one queued delivery. It is owned by the worker once queued.
type Task struct {
	ID    string
	Event string
	Topic string
	Body  []byte
}

// Stats are cumulative delivery counters.
type Stats struct {
	Queued    uint64
	Delivered uint64
	Failed    uint64
	Dropped   uint64
}

// Sender is the asynchronous delivery path.
type Sender struct {
	queue        chan Task
	publishers   []publisher.Publisher
	prefix       string
	drainTimeout time.Duration
	logger       *log.Logger
	newID        func() string

	queued    atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// Option configures a Sender.
type Option func(*Sender)

// WithQueueSize sets the queue bound. Values below 1 are ignored.
func WithQueueSize(n int) Option {
	return func(s *Sender) {
		if n > 0 {
			s.queue = make(chan Task, n)
		}
	}
}

// WithTopicPrefix sets the prefix used to build each task's topic.
func WithTopicPrefix(prefix string) Option {
	return func(s *Sender) { s.prefix = prefix }
}

// WithDrainTimeout bounds how long Run keeps delivering queued tasks after
// its context is cancelled. Zero disables draining.
func WithDrainTimeout(d time.Duration) Option {
	return func(s *Sender) { s.drainTimeout = d }
}

// WithLogger sets the logger. Defaults to log.Default().
func WithLogger(l *log.Logger) Option {
	return func(s *Sender) { s.logger = l }
}

// NewSender creates a Sender delivering to every publisher in pubs, in order.
func NewSender(pubs []publisher.Publisher, opts ...Option) *Sender {
	s := &Sender{
		queue:        make(chan Task, DefaultQueueSize),
		publishers:   pubs,
		prefix:       "asterisk",
		drainTimeout: 2 * time.Second,
		logger:       log.Default(),
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send encodes p and queues it for delivery. It never blocks.
func (s *Sender) Send(p Payload) {
	body, err := Encode(p)
	if err != nil {
		s.logger.Printf("dropping notification: %v", err)
		return
	}

	task := Task{
		ID:    s.newID(),
		Event: p.EventName(),
		Topic: Topic(s.prefix, p),
		Body:  body,
	}
	s.logger.Printf("notify %s %s", task.ID, body)
	s.enqueue(task)
}

func (s *Sender) enqueue(task Task) {
	for {
		select {
		case s.queue <- task:
			s.queued.Add(1)
			return
		default:
		}

		select {
		case old := <-s.queue:
			s.dropped.Add(1)
			s.logger.Printf("delivery queue full, dropped %s (%s)", old.ID, old.Event)
		default:
		}
	}
}

// Run delivers queued tasks until ctx is cancelled, then drains what is left
// for at most the drain timeout. Only one Run may be active per Sender.
func (s *Sender) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.drain()
			return nil
		case task := <-s.queue:
			if ctx.Err() != nil {
				s.drain(task)
				return nil
			}
			s.deliver(ctx, task)
		}
	}
}

// drain delivers held, then whatever is still queued, until the queue is
// empty or the drain timeout expires.
func (s *Sender) drain(held ...Task) {
	if s.drainTimeout <= 0 {
		return
	}
	if len(held) == 0 && len(s.queue) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.drainTimeout)
	defer cancel()

	for _, task := range held {
		s.deliver(ctx, task)
	}
	for {
		select {
		case <-ctx.Done():
			if n := len(s.queue); n > 0 {
				s.logger.Printf("shutdown: %d notifications not delivered", n)
			}
			return
		case task := <-s.queue:
			s.deliver(ctx, task)
		default:
			return
		}
	}
}

// deliver hands task to every publisher. Failures are logged and absorbed.
func (s *Sender) deliver(ctx context.Context, task Task) {
	ctx = publisher.WithDeliveryID(ctx, task.ID)
	ok := true
	for _, pub := range s.publishers {
		if err := pub.Publish(ctx, task.Topic, task.Body); err != nil {
			ok = false
			s.logger.Printf("delivery %s (%s) via %s failed: %v", task.ID, task.Event, pub.Name(), err)
		}
	}
	if ok {
		s.delivered.Add(1)
	} else {
		s.failed.Add(1)
	}
}

// Pending returns the number of queued, undelivered tasks.
func (s *Sender) Pending() int {
	return len(s.queue)
}

// Stats returns a snapshot of the delivery counters.
func (s *Sender) Stats() Stats {
	return Stats{
		Queued:    s.queued.Load(),
		Delivered: s.delivered.Load(),
		Failed:    s.failed.Load(),
		Dropped:   s.dropped.Load(),
	}
}
