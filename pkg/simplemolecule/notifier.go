package simplemolecule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the event buffer of an Emitter built with a size <= 0.
const DefaultQueueSize = 256

// Emitter is a Notifier backed by a bounded queue and one dispatcher goroutine.
// Notify never blocks: when the queue is full the event is dropped and counted.
type Emitter struct {
	mu          sync.RWMutex
	events      chan Event
	closed      bool
	subscribers []Subscriber

	logger  *slog.Logger
	dropped atomic.Int64
	done    chan struct{}
}

// EmitterOption configures an Emitter
type EmitterOption func(*Emitter)

// WithEmitterLogger sets the logger used for dropped events and subscriber failures
func WithEmitterLogger(logger *slog.Logger) EmitterOption {
	return func(e *Emitter) {
		e.logger = logger
	}
}

// NewEmitter starts an emitter with the given queue size.
func NewEmitter(queueSize int, opts ...EmitterOption) *Emitter {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	e := &Emitter{
		events: make(chan Event, queueSize),
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	go e.run()
	return e
}

// Subscribe adds a subscriber. Subscribers added later only see later events.
func (e *Emitter) Subscribe(s Subscriber) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, s)
}

// Notify enqueues event without blocking.
func (e *Emitter) Notify(ctx context.Context, event Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.dropped.Add(1)
		return
	}
	select {
	case e.events <- event:
	default:
		e.dropped.Add(1)
		e.logger.Warn("notification queue full, dropping event",
			"identifier", event.Identifier,
			"change_type", event.ChangeType)
	}
}

// Dropped returns how many events were discarded.
func (e *Emitter) Dropped() int64 {
	return e.dropped.Load()
}

// Close stops accepting events and waits until queued events are delivered
// or ctx is done.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.events)
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Emitter) run() {
	defer close(e.done)
	ctx := context.Background()
	for event := range e.events {
		e.mu.RLock()
		subs := make([]Subscriber, len(e.subscribers))
		copy(subs, e.subscribers)
		e.mu.RUnlock()

		for _, s := range subs {
			if err := e.deliver(ctx, s, event); err != nil {
				e.logger.Warn("notification delivery failed",
					"identifier", event.Identifier,
					"change_type", event.ChangeType,
					"error", err)
			}
		}
	}
}

func (e *Emitter) deliver(ctx context.Context, s Subscriber, event Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("subscriber panic: %v", p)
		}
	}()
	return s.HandleEvent(ctx, event)
}
