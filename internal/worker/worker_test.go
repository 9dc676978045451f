package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/docjobs/internal/domain"
	"github.com/cuongbtq/docjobs/internal/events"
	"github.com/cuongbtq/docjobs/internal/processor"
	"github.com/cuongbtq/docjobs/internal/queue"
	"github.com/cuongbtq/docjobs/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	store    *storage.Store
	queue    *queue.Queue
	registry *processor.Registry
	worker   *Worker
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.CompletionEvent
}

func (p *recordingPublisher) PublishCompletion(_ context.Context, e events.CompletionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) all() []events.CompletionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.CompletionEvent(nil), p.events...)
}

func staticResult(body string) processor.Processor {
	return processor.Func(func(context.Context, string) (json.RawMessage, error) {
		return json.RawMessage(body), nil
	})
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		store:    storage.NewStore(),
		queue:    queue.New(64),
		registry: processor.NewRegistry(),
	}
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.Store = h.store
	cfg.Queue = h.queue
	cfg.Registry = h.registry
	h.worker = NewWorker(&cfg)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	h.worker.Start(context.Background())
	t.Cleanup(h.worker.Stop)
}

func (h *harness) submit(t *testing.T, jobType domain.JobType, ref string) int64 {
	t.Helper()
	require.NoError(t, h.queue.TryAcquire())
	job := h.store.Create("tenant-a", jobType, ref)
	require.NoError(t, h.queue.Enqueue(job.ID))
	return job.ID
}

func (h *harness) waitTerminal(t *testing.T, id int64) *domain.Job {
	t.Helper()
	var job *domain.Job
	require.Eventually(t, func() bool {
		got, err := h.store.Get(id)
		if err != nil {
			return false
		}
		job = got
		return got.Status.Terminal()
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestWorker_CompletesJobWithExactResult(t *testing.T) {
	pub := &recordingPublisher{}
	h := newHarness(t, Config{Publisher: pub})
	h.registry.Register(domain.JobTypeOCR, staticResult(`{"ocr": [["text", 0.98]]}`))
	h.start(t)

	id := h.submit(t, domain.JobTypeOCR, "/uploads/a.png")
	job := h.waitTerminal(t, id)

	assert.Equal(t, domain.JobStatusDone, job.Status)
	assert.JSONEq(t, `{"ocr": [["text", 0.98]]}`, string(job.Result))
	assert.Empty(t, job.Error)

	require.Eventually(t, func() bool { return len(pub.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, id, pub.all()[0].JobID)
	assert.Equal(t, domain.JobStatusDone, pub.all()[0].Status)
	assert.Equal(t, Stats{Succeeded: 1}, h.worker.Stats())
}

func TestWorker_FailureIsIsolated(t *testing.T) {
	h := newHarness(t, Config{})
	h.registry.Register(domain.JobTypeOCR, processor.Func(func(_ context.Context, ref string) (json.RawMessage, error) {
		if ref == "bad" {
			return nil, errors.New("engine exception")
		}
		return json.RawMessage(`{"ok":true}`), nil
	}))
	h.start(t)

	bad := h.submit(t, domain.JobTypeOCR, "bad")
	good := h.submit(t, domain.JobTypeOCR, "good")

	failed := h.waitTerminal(t, bad)
	assert.Equal(t, domain.JobStatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "engine exception")
	assert.Nil(t, failed.Result)

	done := h.waitTerminal(t, good)
	assert.Equal(t, domain.JobStatusDone, done.Status)
}

func TestWorker_FailureModes(t *testing.T) {
	tests := []struct {
		name      string
		jobType   domain.JobType
		register  processor.Processor
		timeout   time.Duration
		wantError string
	}{
		{
			name:    "panic",
			jobType: domain.JobTypeOCR,
			register: processor.Func(func(context.Context, string) (json.RawMessage, error) {
				panic("nil image")
			}),
			wantError: "processor panic: nil image",
		},
		{
			name:    "unresponsive engine",
			jobType: domain.JobTypeOCR,
			register: processor.Func(func(context.Context, string) (json.RawMessage, error) {
				time.Sleep(time.Second)
				return json.RawMessage(`{}`), nil
			}),
			timeout:   30 * time.Millisecond,
			wantError: "timed out",
		},
		{
			name:      "no processor for job type",
			jobType:   domain.JobTypeIdentityVerify,
			register:  staticResult(`{}`),
			wantError: "no processor registered",
		},
		{
			name:      "invalid json result",
			jobType:   domain.JobTypeOCR,
			register:  staticResult(`{not json`),
			wantError: "invalid JSON",
		},
		{
			name:      "empty result",
			jobType:   domain.JobTypeOCR,
			register:  staticResult(``),
			wantError: "invalid JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{JobTimeout: tt.timeout})
			h.registry.Register(domain.JobTypeOCR, tt.register)
			h.start(t)

			id := h.submit(t, tt.jobType, "ref")
			job := h.waitTerminal(t, id)

			assert.Equal(t, domain.JobStatusFailed, job.Status)
			assert.Contains(t, job.Error, tt.wantError)

			// The loop keeps running after the failure.
			h.registry.Register(domain.JobTypeOCR, staticResult(`{"ok":true}`))
			next := h.waitTerminal(t, h.submit(t, domain.JobTypeOCR, "ref"))
			assert.Equal(t, domain.JobStatusDone, next.Status)
		})
	}
}

func TestWorker_SkipsMissingJob(t *testing.T) {
	h := newHarness(t, Config{})
	h.registry.Register(domain.JobTypeOCR, staticResult(`{}`))
	h.start(t)

	require.NoError(t, h.queue.TryAcquire())
	require.NoError(t, h.queue.Enqueue(999))

	id := h.submit(t, domain.JobTypeOCR, "ref")
	job := h.waitTerminal(t, id)
	assert.Equal(t, domain.JobStatusDone, job.Status)
	assert.Equal(t, int64(1), h.worker.Stats().Skipped)
}

func TestWorker_ProcessesInSubmissionOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string

	h := newHarness(t, Config{Concurrency: 1})
	h.registry.Register(domain.JobTypeOCR, processor.Func(func(_ context.Context, ref string) (json.RawMessage, error) {
		mu.Lock()
		order = append(order, ref)
		mu.Unlock()
		return json.RawMessage(`{}`), nil
	}))

	// Queue everything before the worker starts so ordering is decided by the queue alone.
	refs := []string{"a", "b", "c", "d", "e"}
	var last int64
	for _, ref := range refs {
		last = h.submit(t, domain.JobTypeOCR, ref)
	}
	h.start(t)
	h.waitTerminal(t, last)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, refs, order)
}

func TestWorker_StopLetsInFlightJobFinish(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	h := newHarness(t, Config{})
	h.registry.Register(domain.JobTypeOCR, processor.Func(func(context.Context, string) (json.RawMessage, error) {
		close(started)
		<-release
		return json.RawMessage(`{"late":true}`), nil
	}))
	h.worker.Start(context.Background())

	id := h.submit(t, domain.JobTypeOCR, "ref")
	<-started

	stopped := make(chan struct{})
	go func() {
		h.worker.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a job was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	job, err := h.store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusDone, job.Status)
}

func TestWorker_ExitsWhenQueueClosed(t *testing.T) {
	h := newHarness(t, Config{Concurrency: 3})
	h.worker.Start(context.Background())
	h.queue.Close()

	done := make(chan struct{})
	go func() {
		h.worker.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("workers did not exit after queue close")
	}
}

func TestWorker_TerminalJobIsNotRewritten(t *testing.T) {
	h := newHarness(t, Config{})
	h.registry.Register(domain.JobTypeIdentityVerify, processor.IdentityProcessor{})
	h.start(t)

	id := h.submit(t, domain.JobTypeIdentityVerify, "ref")
	first := h.waitTerminal(t, id)

	// Re-enqueue the same id: the claim fails and the stored job is untouched.
	require.NoError(t, h.queue.TryAcquire())
	require.NoError(t, h.queue.Enqueue(id))
	require.Eventually(t, func() bool { return h.worker.Stats().Skipped == 1 }, time.Second, 5*time.Millisecond)

	again, err := h.store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

type slowPublisher struct {
	delay time.Duration
}

func (p *slowPublisher) PublishCompletion(ctx context.Context, _ events.CompletionEvent) error {
	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
	}
	return errors.New("broker unreachable")
}

func TestWorker_SlowBrokerDoesNotStallQueue(t *testing.T) {
	hub := &recordingPublisher{}
	broker := &slowPublisher{delay: 700 * time.Millisecond}

	dispatcher := events.NewDispatcher(broker, events.DispatcherConfig{
		Buffer:  8,
		Timeout: time.Second,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_ = dispatcher.Close(ctx)
	})

	h := newHarness(t, Config{Publisher: events.Multi{hub, dispatcher}})
	h.registry.Register(domain.JobTypeOCR, staticResult(`{"ok":true}`))
	h.start(t)

	started := time.Now()
	ids := []int64{
		h.submit(t, domain.JobTypeOCR, "a"),
		h.submit(t, domain.JobTypeOCR, "b"),
		h.submit(t, domain.JobTypeOCR, "c"),
	}
	for _, id := range ids {
		assert.Equal(t, domain.JobStatusDone, h.waitTerminal(t, id).Status)
	}
	assert.Less(t, time.Since(started), 500*time.Millisecond, "queue waited on the broker")

	// In-process subscribers still hear about every job right away.
	require.Eventually(t, func() bool { return len(hub.all()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, dispatcher.Dropped())
}
