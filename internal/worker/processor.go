package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/cuongbtq/docjobs/internal/domain"
	"github.com/cuongbtq/docjobs/internal/events"
)

// processJob runs one job from RUNNING to DONE or FAILED. Nothing that goes
// wrong here escapes to the worker loop.
func (w *Worker) processJob(ctx context.Context, jobID int64) {
	// Step 1: Claim job (QUEUED → RUNNING)
	job, err := w.store.MarkRunning(jobID)
	if err != nil {
		w.skipped.Add(1)
		if errors.Is(err, domain.ErrJobNotFound) {
			w.logger.Error("Dequeued job missing from store, skipping",
				slog.Int64("job_id", jobID),
			)
			return
		}
		w.logger.Warn("Failed to claim job, skipping",
			slog.Int64("job_id", jobID),
			slog.Any("error", err),
		)
		return
	}

	logger := w.logger.With(
		slog.Int64("job_id", job.ID),
		slog.String("tenant_id", job.TenantID),
		slog.String("job_type", string(job.JobType)),
	)
	logger.Info("Processing job")

	// Step 2: Execute with timeout
	jobCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	result, err := w.executeJob(jobCtx, job)

	// Step 3: Record terminal state
	var finished *domain.Job
	if err != nil {
		logger.Error("Job execution failed", slog.Any("error", err))
		w.failed.Add(1)
		finished, err = w.store.Fail(job.ID, err.Error())
		if err != nil {
			logger.Error("Failed to update job status to FAILED", slog.Any("error", err))
			return
		}
	} else {
		w.succeeded.Add(1)
		finished, err = w.store.Complete(job.ID, result)
		if err != nil {
			logger.Error("Failed to update job status to DONE", slog.Any("error", err))
			return
		}
		logger.Info("Job completed successfully")
	}

	w.publish(ctx, finished)
}

// outcome is what a processor goroutine reports back
type outcome struct {
	result json.RawMessage
	err    error
}

// executeJob dispatches to the registered processor and converts panics,
// timeouts and errors into a ProcessingError. A processor that ignores ctx is
// abandoned once ctx expires so the worker itself never hangs.
func (w *Worker) executeJob(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	proc, err := w.registry.Lookup(job.JobType)
	if err != nil {
		return nil, domain.NewProcessingError(job.JobType, err)
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("Processor panicked",
					slog.Int64("job_id", job.ID),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				done <- outcome{err: fmt.Errorf("processor panic: %v", r)}
			}
		}()
		result, err := proc.Process(ctx, job.InputReference)
		done <- outcome{result: result, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out = outcome{err: ctx.Err()}
	}

	if out.err != nil {
		err := out.err
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("job timed out after %s: %w", w.jobTimeout, err)
		}
		return nil, domain.NewProcessingError(job.JobType, err)
	}
	if len(out.result) == 0 || !json.Valid(out.result) {
		return nil, domain.NewProcessingError(job.JobType, errors.New("processor returned invalid JSON result"))
	}
	return out.result, nil
}

func (w *Worker) publish(ctx context.Context, job *domain.Job) {
	if w.publisher == nil {
		return
	}
	if err := w.publisher.PublishCompletion(ctx, events.NewCompletionEvent(job)); err != nil {
		w.logger.Warn("Failed to publish completion event",
			slog.Int64("job_id", job.ID),
			slog.Any("error", err),
		)
	}
}
