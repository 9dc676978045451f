// Package service is the job lifecycle façade used by the transport layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cuongbtq/docjobs/internal/domain"
	"github.com/cuongbtq/docjobs/internal/events"
	"github.com/cuongbtq/docjobs/internal/queue"
	"github.com/cuongbtq/docjobs/internal/quota"
	"github.com/cuongbtq/docjobs/internal/storage"
)

const (
	// DefaultListLimit is used when a caller passes a non-positive limit
	DefaultListLimit = 50
	// MaxListLimit caps a single page
	MaxListLimit = 200
)

// ErrAdmissionUsed is returned when Commit follows an earlier Commit or Abort
var ErrAdmissionUsed = errors.New("admission already used")

// Config holds service dependencies
type Config struct {
	Logger       *slog.Logger
	Store        *storage.Store
	Quota        *quota.Tracker
	Queue        *queue.Queue
	Hub          *events.Hub // optional, enables Wait
	MonthlyLimit int
}

// Service composes quota, store and queue into submit/list/get.
type Service struct {
	logger *slog.Logger
	store  *storage.Store
	quota  *quota.Tracker
	queue  *queue.Queue
	hub    *events.Hub
	limit  int
}

// New creates a new job service
func New(cfg *Config) *Service {
	return &Service{
		logger: cfg.Logger,
		store:  cfg.Store,
		quota:  cfg.Quota,
		queue:  cfg.Queue,
		hub:    cfg.Hub,
		limit:  cfg.MonthlyLimit,
	}
}

// Admission is a submission that passed validation, queue admission and the
// quota check but has no job yet. Exactly one of Commit or Abort must follow.
type Admission struct {
	svc      *Service
	tenantID string
	jobType  domain.JobType
	once     sync.Once
}

// JobType returns the validated job type
func (a *Admission) JobType() domain.JobType {
	return a.jobType
}

// Admit runs every check that can reject a submission. The job type is
// validated before anything is mutated; a queue slot is taken before the
// quota is charged so a busy queue never consumes quota.
func (s *Service) Admit(tenantID, jobType string) (*Admission, error) {
	if tenantID == "" {
		return nil, domain.ErrUnauthorized
	}

	jt, err := domain.ParseJobType(jobType)
	if err != nil {
		return nil, err
	}

	if err := s.queue.TryAcquire(); err != nil {
		s.logger.Warn("Submission rejected, queue unavailable",
			slog.String("tenant_id", tenantID),
			slog.Int("queue_capacity", s.queue.Cap()),
			slog.Any("error", err),
		)
		return nil, err
	}

	if err := s.quota.Reserve(tenantID, s.limit); err != nil {
		s.queue.Release()
		s.logger.Info("Submission rejected, quota exhausted",
			slog.String("tenant_id", tenantID),
			slog.Int("limit", s.limit),
		)
		return nil, err
	}

	return &Admission{svc: s, tenantID: tenantID, jobType: jt}, nil
}

// Commit creates the QUEUED job and enqueues its id, in that order, so the
// worker can always find a job it dequeues.
func (a *Admission) Commit(inputRef string) (*domain.Job, error) {
	var (
		job *domain.Job
		err error
	)
	committed := false
	a.once.Do(func() {
		committed = true
		s := a.svc
		job = s.store.Create(a.tenantID, a.jobType, inputRef)

		if err = s.queue.Enqueue(job.ID); err != nil {
			if _, failErr := s.store.Fail(job.ID, "job could not be queued: "+err.Error()); failErr != nil {
				s.logger.Error("Failed to mark unqueued job as failed",
					slog.Int64("job_id", job.ID),
					slog.Any("error", failErr),
				)
			}
			err = fmt.Errorf("failed to enqueue job %d: %w", job.ID, err)
			job = nil
			return
		}

		s.logger.Info("Job queued",
			slog.Int64("job_id", job.ID),
			slog.String("tenant_id", job.TenantID),
			slog.String("job_type", string(job.JobType)),
		)
	})
	if !committed {
		return nil, ErrAdmissionUsed
	}
	return job, err
}

// Abort gives back the queue slot. The quota charge stays, matching the
// non-decreasing counter contract.
func (a *Admission) Abort() {
	a.once.Do(func() {
		a.svc.queue.Release()
	})
}

// Submit validates, charges quota, stores and enqueues a job for an input
// that is already persisted. It returns as soon as the job is queued.
func (s *Service) Submit(tenantID, jobType, inputRef string) (*domain.Job, error) {
	adm, err := s.Admit(tenantID, jobType)
	if err != nil {
		return nil, err
	}
	return adm.Commit(inputRef)
}

// List returns tenantID's jobs newest first.
func (s *Service) List(tenantID string, limit, offset int) domain.JobPage {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.List(tenantID, limit, offset)
}

// Get returns the job if tenantID owns it, domain.ErrJobNotFound otherwise.
func (s *Service) Get(tenantID string, jobID int64) (*domain.Job, error) {
	return s.store.GetForTenant(tenantID, jobID)
}

// Wait returns the job once it is terminal or when ctx is done, whichever
// comes first. On ctx expiry the latest non-terminal state is returned without error.
func (s *Service) Wait(ctx context.Context, tenantID string, jobID int64) (*domain.Job, error) {
	job, err := s.Get(tenantID, jobID)
	if err != nil || job.Status.Terminal() || s.hub == nil {
		return job, err
	}

	done, cancel := s.hub.Subscribe(jobID)
	defer cancel()

	// The job may have finished between the first read and Subscribe.
	job, err = s.Get(tenantID, jobID)
	if err != nil || job.Status.Terminal() {
		return job, err
	}

	select {
	case <-done:
	case <-ctx.Done():
	}
	return s.Get(tenantID, jobID)
}

// Usage describes a tenant's consumption in the current billing period
type Usage struct {
	Period string `json:"period"`
	Used   int    `json:"used"`
	Limit  int    `json:"limit"`
}

// Usage returns tenantID's document count for the current period.
func (s *Service) Usage(tenantID string) Usage {
	period, used := s.quota.CurrentUsage(tenantID)
	return Usage{Period: period, Used: used, Limit: s.limit}
}
