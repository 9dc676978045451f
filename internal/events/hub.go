package events

import (
	"context"
	"sync"
)

// Hub lets callers block until a given job finishes.
type Hub struct {
	mu      sync.Mutex
	waiters map[int64][]chan CompletionEvent
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{waiters: make(map[int64][]chan CompletionEvent)}
}

// Subscribe registers interest in jobID. The returned cancel func must be
// called if the caller stops waiting before the event arrives.
func (h *Hub) Subscribe(jobID int64) (<-chan CompletionEvent, func()) {
	ch := make(chan CompletionEvent, 1)

	h.mu.Lock()
	h.waiters[jobID] = append(h.waiters[jobID], ch)
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		list := h.waiters[jobID]
		for i, c := range list {
			if c == ch {
				h.waiters[jobID] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(h.waiters[jobID]) == 0 {
			delete(h.waiters, jobID)
		}
	}
	return ch, cancel
}

// PublishCompletion wakes every waiter for the event's job.
func (h *Hub) PublishCompletion(_ context.Context, event CompletionEvent) error {
	h.mu.Lock()
	list := h.waiters[event.JobID]
	delete(h.waiters, event.JobID)
	h.mu.Unlock()

	for _, ch := range list {
		ch <- event // buffered, one send per channel
	}
	return nil
}

// Waiting returns the number of jobs with at least one waiter.
func (h *Hub) Waiting() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.waiters)
}
