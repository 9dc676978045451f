package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuongbtq/docjobs/internal/events"
	"github.com/cuongbtq/docjobs/internal/processor"
	"github.com/cuongbtq/docjobs/internal/queue"
	"github.com/cuongbtq/docjobs/internal/storage"
)

// Config holds worker configuration
type Config struct {
	Logger      *slog.Logger
	Store       *storage.Store
	Queue       *queue.Queue
	Registry    *processor.Registry
	Publisher   events.Publisher // optional
	Concurrency int
	JobTimeout  time.Duration
}

// Stats counts jobs the worker has finished since start
type Stats struct {
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Skipped   int64 `json:"skipped"`
}

// Worker consumes job ids from the queue and runs them through the registry.
// It is the only writer of RUNNING, DONE and FAILED.
type Worker struct {
	logger      *slog.Logger
	store       *storage.Store
	queue       *queue.Queue
	registry    *processor.Registry
	publisher   events.Publisher
	concurrency int
	jobTimeout  time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
	once   sync.Once

	succeeded atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{
		logger:      cfg.Logger,
		store:       cfg.Store,
		queue:       cfg.Queue,
		registry:    cfg.Registry,
		publisher:   cfg.Publisher,
		concurrency: concurrency,
		jobTimeout:  cfg.JobTimeout,
	}
}

// Start spawns the worker pool and returns immediately. The pool runs until
// ctx is canceled, Stop is called, or the queue is closed and drained.
func (w *Worker) Start(ctx context.Context) {
	w.once.Do(func() {
		w.logger.Info("Starting worker",
			slog.Int("concurrency", w.concurrency),
			slog.Duration("job_timeout", w.jobTimeout),
			slog.Int("queue_capacity", w.queue.Cap()),
		)

		ctx, w.cancel = context.WithCancel(ctx)
		w.spawnWorkerPool(ctx)
	})
}

// Stop stops dequeuing and waits for in-flight jobs to finish.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}

// Wait blocks until every worker goroutine has exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// Stats returns a snapshot of the job counters
func (w *Worker) Stats() Stats {
	return Stats{
		Succeeded: w.succeeded.Load(),
		Failed:    w.failed.Load(),
		Skipped:   w.skipped.Load(),
	}
}
