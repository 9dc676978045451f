package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrDispatcherFull   = errors.New("event dispatcher buffer full")
	ErrDispatcherClosed = errors.New("event dispatcher closed")
)

const (
	defaultDispatchBuffer  = 256
	defaultDispatchTimeout = 5 * time.Second
)

// DispatcherConfig holds configuration for a Dispatcher
type DispatcherConfig struct {
	Buffer  int
	Timeout time.Duration
	Logger  *slog.Logger
}

// Dispatcher hands events to a slow publisher from its own goroutine so the
// caller never waits on it. Events that do not fit in the buffer are dropped.
type Dispatcher struct {
	next    Publisher
	events  chan CompletionEvent
	timeout time.Duration
	logger  *slog.Logger
	done    chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewDispatcher starts a dispatcher in front of next
func NewDispatcher(next Publisher, cfg DispatcherConfig) *Dispatcher {
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultDispatchBuffer
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultDispatchTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	d := &Dispatcher{
		next:    next,
		events:  make(chan CompletionEvent, cfg.Buffer),
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// PublishCompletion queues the event and returns immediately.
func (d *Dispatcher) PublishCompletion(_ context.Context, event CompletionEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.events <- event:
		return nil
	default:
		d.dropped.Add(1)
		d.logger.Warn("Completion event dropped, dispatcher buffer full",
			slog.Int64("job_id", event.JobID),
			slog.Int("buffer", cap(d.events)),
		)
		return ErrDispatcherFull
	}
}

// Pending reports how many events are buffered and not yet handed on.
func (d *Dispatcher) Pending() int {
	return len(d.events)
}

// Dropped reports how many events were discarded on overflow.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.events {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event CompletionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.next.PublishCompletion(ctx, event); err != nil {
		d.logger.Warn("Failed to deliver completion event",
			slog.Int64("job_id", event.JobID),
			slog.String("error", err.Error()),
		)
	}
}

// Close stops accepting events and waits until the buffered ones are
// delivered or ctx expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
