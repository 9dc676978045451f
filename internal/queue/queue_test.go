package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/docjobs/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func push(t *testing.T, q *Queue, id int64) {
	t.Helper()
	require.NoError(t, q.TryAcquire())
	require.NoError(t, q.Enqueue(id))
}

func TestQueue_FIFO(t *testing.T) {
	q := New(8)
	for id := int64(1); id <= 5; id++ {
		push(t, q, id)
	}

	ctx := context.Background()
	for want := int64(1); want <= 5; want++ {
		got, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Zero(t, q.Len())
}

func TestQueue_BusyWhenFull(t *testing.T) {
	q := New(2)
	push(t, q, 1)
	push(t, q, 2)

	assert.ErrorIs(t, q.TryAcquire(), domain.ErrQueueBusy)

	_, err := q.Dequeue(context.Background())
	require.NoError(t, err)

	// Dequeue frees a slot.
	assert.NoError(t, q.TryAcquire())
}

func TestQueue_ReleaseReturnsSlot(t *testing.T) {
	q := New(1)
	require.NoError(t, q.TryAcquire())
	assert.ErrorIs(t, q.TryAcquire(), domain.ErrQueueBusy)

	q.Release()
	assert.NoError(t, q.TryAcquire())
}

func TestQueue_EnqueueWithoutSlot(t *testing.T) {
	q := New(1)
	assert.ErrorIs(t, q.Enqueue(1), ErrNoSlot)
}

func TestQueue_DequeueBlocksUntilEnqueue(t *testing.T) {
	q := New(1)
	got := make(chan int64, 1)

	go func() {
		id, err := q.Dequeue(context.Background())
		if err == nil {
			got <- id
		}
	}()

	select {
	case <-got:
		t.Fatal("Dequeue returned before anything was enqueued")
	case <-time.After(50 * time.Millisecond):
	}

	push(t, q, 7)

	select {
	case id := <-got:
		assert.Equal(t, int64(7), id)
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not return after enqueue")
	}
}

func TestQueue_DequeueHonoursContext(t *testing.T) {
	q := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_CloseDrainsThenStops(t *testing.T) {
	q := New(4)
	push(t, q, 1)
	push(t, q, 2)
	q.Close()
	q.Close()

	assert.ErrorIs(t, q.TryAcquire(), ErrClosed)

	ctx := context.Background()
	id, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	id, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueue_ConcurrentProducersNeverExceedCapacity(t *testing.T) {
	const capacity = 16
	q := New(capacity)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if err := q.TryAcquire(); err != nil {
				return
			}
			if err := q.Enqueue(id); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}(int64(i))
	}
	wg.Wait()

	assert.Equal(t, capacity, admitted)
	assert.Equal(t, capacity, q.Len())
}

func TestNew_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Cap())
	assert.Equal(t, 3, New(3).Cap())
}
