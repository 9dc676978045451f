package storage

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cuongbtq/docjobs/internal/domain"
)

// Store is the authoritative in-memory record of every job.
// All reads return copies; all writes go through the store's own lock.
type Store struct {
	mu       sync.RWMutex
	jobs     map[int64]*domain.Job
	byTenant map[string][]int64 // ascending ids per tenant
	lastID   int64
	now      func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the clock used for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates an empty job store
func NewStore(opts ...Option) *Store {
	s := &Store{
		jobs:     make(map[int64]*domain.Job),
		byTenant: make(map[string][]int64),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create assigns the next id and stores a QUEUED job in one critical section.
func (s *Store) Create(tenantID string, jobType domain.JobType, inputRef string) *domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID++
	ts := s.now().UTC()
	job := &domain.Job{
		ID:             s.lastID,
		TenantID:       tenantID,
		JobType:        jobType,
		Status:         domain.JobStatusQueued,
		InputReference: inputRef,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
	s.jobs[job.ID] = job
	s.byTenant[tenantID] = append(s.byTenant[tenantID], job.ID)

	return job.Clone()
}

// Get returns a job by id regardless of owner. Only the worker path uses it.
func (s *Store) Get(jobID int64) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job.Clone(), nil
}

// GetForTenant returns the job only if tenantID owns it. A job owned by
// someone else yields the same error as a missing one.
func (s *Store) GetForTenant(tenantID string, jobID int64) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok || job.TenantID != tenantID {
		return nil, domain.ErrJobNotFound
	}
	return job.Clone(), nil
}

// List returns tenantID's jobs newest-id-first, paginated by limit/offset.
func (s *Store) List(tenantID string, limit, offset int) domain.JobPage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byTenant[tenantID]
	page := domain.JobPage{Total: len(ids), Items: []domain.JobSummary{}}
	if offset < 0 {
		offset = 0
	}

	for i := len(ids) - 1 - offset; i >= 0 && len(page.Items) < limit; i-- {
		page.Items = append(page.Items, s.jobs[ids[i]].Summary())
	}
	return page
}

// Update applies mutate to the stored job under the store lock and bumps
// updated_at. Jobs already in a terminal state are never mutated.
func (s *Store) Update(jobID int64, mutate func(*domain.Job) error) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if job.Status.Terminal() {
		return nil, fmt.Errorf("job %d: %w", jobID, domain.ErrTerminalState)
	}

	draft := job.Clone()
	if err := mutate(draft); err != nil {
		return nil, err
	}
	draft.ID = job.ID
	draft.TenantID = job.TenantID
	draft.JobType = job.JobType
	draft.InputReference = job.InputReference
	draft.CreatedAt = job.CreatedAt
	draft.UpdatedAt = s.now().UTC()

	s.jobs[jobID] = draft
	return draft.Clone(), nil
}

// MarkRunning moves a QUEUED job to RUNNING.
func (s *Store) MarkRunning(jobID int64) (*domain.Job, error) {
	return s.Update(jobID, func(j *domain.Job) error {
		if j.Status != domain.JobStatusQueued {
			return fmt.Errorf("job %d: cannot start from status %s", j.ID, j.Status)
		}
		j.Status = domain.JobStatusRunning
		return nil
	})
}

// Complete stores the result and moves a RUNNING job to DONE.
func (s *Store) Complete(jobID int64, result json.RawMessage) (*domain.Job, error) {
	return s.Update(jobID, func(j *domain.Job) error {
		if j.Status != domain.JobStatusRunning {
			return fmt.Errorf("job %d: cannot complete from status %s", j.ID, j.Status)
		}
		j.Status = domain.JobStatusDone
		j.Result = result
		j.Error = ""
		return nil
	})
}

// Fail records errMsg and moves a non-terminal job to FAILED. An empty
// message is replaced so a FAILED job always explains itself.
func (s *Store) Fail(jobID int64, errMsg string) (*domain.Job, error) {
	if errMsg == "" {
		errMsg = "unknown error"
	}
	return s.Update(jobID, func(j *domain.Job) error {
		j.Status = domain.JobStatusFailed
		j.Result = nil
		j.Error = errMsg
		return nil
	})
}

// Len returns the number of stored jobs
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
