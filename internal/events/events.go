// Package events announces terminal job transitions.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/cuongbtq/docjobs/internal/domain"
)

// CompletionEvent is published once per job when it reaches DONE or FAILED.
type CompletionEvent struct {
	JobID      int64            `json:"job_id"`
	TenantID   string           `json:"tenant_id"`
	JobType    domain.JobType   `json:"job_type"`
	Status     domain.JobStatus `json:"status"`
	Error      string           `json:"error,omitempty"`
	FinishedAt time.Time        `json:"finished_at"`
}

// NewCompletionEvent builds the event for a terminal job
func NewCompletionEvent(job *domain.Job) CompletionEvent {
	return CompletionEvent{
		JobID:      job.ID,
		TenantID:   job.TenantID,
		JobType:    job.JobType,
		Status:     job.Status,
		Error:      job.Error,
		FinishedAt: job.UpdatedAt,
	}
}

// Publisher receives completion events. Implementations must be safe for concurrent use.
type Publisher interface {
	PublishCompletion(ctx context.Context, event CompletionEvent) error
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) PublishCompletion(ctx context.Context, event CompletionEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishCompletion(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
