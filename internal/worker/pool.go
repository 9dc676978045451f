package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/docjobs/internal/queue"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned successfully",
		slog.Int("worker_count", w.concurrency),
	)
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("worker-%d", workerNum)
	logger := w.logger.With(slog.String("worker_name", workerName))
	logger.Info("Worker goroutine started")

	for {
		jobID, err := w.queue.Dequeue(ctx)
		if err != nil {
			switch {
			case errors.Is(err, queue.ErrClosed):
				logger.Info("Worker goroutine stopping - queue closed")
			case ctx.Err() != nil:
				logger.Info("Worker goroutine stopping - context canceled")
			default:
				logger.Error("Dequeue failed", slog.Any("error", err))
			}
			return
		}

		logger.Debug("Worker received job", slog.Int64("job_id", jobID))

		// The in-flight job is not interrupted by shutdown, only by its own timeout.
		w.processJob(context.WithoutCancel(ctx), jobID)
	}
}
