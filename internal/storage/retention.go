package storage

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/cuongbtq/docjobs/internal/domain"
)

// RetentionPolicy bounds how many finished jobs the store keeps.
// Zero values disable the corresponding limit.
type RetentionPolicy struct {
	MaxAge  time.Duration
	MaxJobs int
}

// Enabled reports whether the policy evicts anything at all.
func (p RetentionPolicy) Enabled() bool {
	return p.MaxAge > 0 || p.MaxJobs > 0
}

// Expired returns the terminal jobs that fall outside policy at now, oldest id first.
// Queued and running jobs are never candidates.
func (s *Store) Expired(policy RetentionPolicy, now time.Time) []*domain.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var terminal []*domain.Job
	for _, job := range s.jobs {
		if job.Status.Terminal() {
			terminal = append(terminal, job)
		}
	}
	slices.SortFunc(terminal, func(a, b *domain.Job) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	excess := 0
	if policy.MaxJobs > 0 && len(s.jobs) > policy.MaxJobs {
		excess = len(s.jobs) - policy.MaxJobs
	}

	var out []*domain.Job
	for _, job := range terminal {
		tooOld := policy.MaxAge > 0 && now.Sub(job.UpdatedAt) > policy.MaxAge
		if tooOld || excess > 0 {
			out = append(out, job.Clone())
			if excess > 0 {
				excess--
			}
		}
	}
	return out
}

// Remove deletes terminal jobs by id. Non-terminal or unknown ids are ignored.
func (s *Store) Remove(ids []int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, id := range ids {
		job, ok := s.jobs[id]
		if !ok || !job.Status.Terminal() {
			continue
		}
		delete(s.jobs, id)
		s.byTenant[job.TenantID] = slices.DeleteFunc(s.byTenant[job.TenantID], func(v int64) bool { return v == id })
		removed++
	}
	return removed
}

// Archiver receives jobs before they are evicted from memory.
type Archiver interface {
	Archive(ctx context.Context, jobs []*domain.Job) error
}

// Sweeper periodically evicts finished jobs according to a RetentionPolicy.
type Sweeper struct {
	store    *Store
	policy   RetentionPolicy
	interval time.Duration
	archiver Archiver
	logger   *slog.Logger
	now      func() time.Time
}

// SweeperConfig holds sweeper configuration
type SweeperConfig struct {
	Store    *Store
	Policy   RetentionPolicy
	Interval time.Duration
	Archiver Archiver // optional
	Logger   *slog.Logger
}

// NewSweeper creates a new retention sweeper
func NewSweeper(cfg *SweeperConfig) *Sweeper {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		store:    cfg.Store,
		policy:   cfg.Policy,
		interval: interval,
		archiver: cfg.Archiver,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// Run sweeps on every tick until ctx is canceled.
func (sw *Sweeper) Run(ctx context.Context) {
	if !sw.policy.Enabled() {
		sw.logger.Info("Retention disabled, finished jobs are kept for the process lifetime")
		return
	}

	sw.logger.Info("Retention sweeper started",
		slog.Duration("max_age", sw.policy.MaxAge),
		slog.Int("max_jobs", sw.policy.MaxJobs),
		slog.Duration("interval", sw.interval),
	)

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sw.logger.Info("Retention sweeper stopped")
			return
		case <-ticker.C:
			if _, err := sw.Sweep(ctx); err != nil {
				sw.logger.Error("Retention sweep failed", slog.Any("error", err))
			}
		}
	}
}

// Sweep performs a single eviction pass and returns the number of removed jobs.
// If archiving fails nothing is removed, so the next pass retries.
func (sw *Sweeper) Sweep(ctx context.Context) (int, error) {
	expired := sw.store.Expired(sw.policy, sw.now())
	if len(expired) == 0 {
		return 0, nil
	}

	if sw.archiver != nil {
		if err := sw.archiver.Archive(ctx, expired); err != nil {
			return 0, err
		}
	}

	ids := make([]int64, len(expired))
	for i, job := range expired {
		ids[i] = job.ID
	}
	removed := sw.store.Remove(ids)

	sw.logger.Info("Evicted finished jobs",
		slog.Int("removed", removed),
		slog.Int("remaining", sw.store.Len()),
	)
	return removed, nil
}
