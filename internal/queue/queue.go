// Package queue hands job ids from the submission path to the worker pool.
//
// The queue is bounded. A producer first takes a slot with TryAcquire, which
// fails fast with domain.ErrQueueBusy when the queue is full, and later calls
// Enqueue, which never blocks because the slot is already held. The slot is
// given back when a consumer dequeues the id, or via Release if the producer
// abandons the submission.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/cuongbtq/docjobs/internal/domain"
)

// DefaultCapacity is used when a non-positive capacity is configured.
const DefaultCapacity = 1024

var (
	// ErrClosed is returned by Dequeue once the queue is closed and drained
	ErrClosed = errors.New("queue closed")

	// ErrNoSlot is returned by Enqueue when the caller holds no slot
	ErrNoSlot = errors.New("enqueue without acquired slot")
)

// Queue is a FIFO of job ids with a fixed number of admission slots.
type Queue struct {
	ids   chan int64
	slots chan struct{}

	mu     sync.Mutex
	closed bool
}

// New creates a queue admitting at most capacity outstanding ids.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		ids:   make(chan int64, capacity),
		slots: make(chan struct{}, capacity),
	}
}

// TryAcquire reserves room for one id without blocking.
func (q *Queue) TryAcquire() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}

	select {
	case q.slots <- struct{}{}:
		return nil
	default:
		return domain.ErrQueueBusy
	}
}

// Release gives back a slot acquired with TryAcquire that will not be used.
func (q *Queue) Release() {
	select {
	case <-q.slots:
	default:
	}
}

// Enqueue appends jobID. The caller must hold a slot from TryAcquire.
func (q *Queue) Enqueue(jobID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.Release()
		return ErrClosed
	}
	if len(q.ids) >= len(q.slots) {
		return ErrNoSlot
	}

	// Never blocks: ids in the channel never outnumber held slots.
	q.ids <- jobID
	return nil
}

// Dequeue blocks until an id is available, ctx is done, or the queue is
// closed and drained.
func (q *Queue) Dequeue(ctx context.Context) (int64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case id, ok := <-q.ids:
		if !ok {
			return 0, ErrClosed
		}
		q.Release()
		return id, nil
	}
}

// Close stops admissions. Ids already queued can still be dequeued.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ids)
}

// Len returns the number of ids waiting to be dequeued.
func (q *Queue) Len() int {
	return len(q.ids)
}

// Cap returns the queue capacity
func (q *Queue) Cap() int {
	return cap(q.ids)
}
