// Package quota tracks per-tenant document counts per billing period.
package quota

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuongbtq/docjobs/internal/domain"
)

// periodLayout formats the billing period as yyyymm (UTC).
const periodLayout = "200601"

// PeriodKey returns the billing period containing t.
func PeriodKey(t time.Time) string {
	return t.UTC().Format(periodLayout)
}

// Tracker owns every tenant's counters. Counters are created on first use and never removed.
type Tracker struct {
	mu     sync.Mutex
	counts map[string]map[string]int
	now    func() time.Time
}

// Option configures a Tracker
type Option func(*Tracker)

// WithClock overrides the wall clock used to pick the billing period.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker creates an empty tracker
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		counts: make(map[string]map[string]int),
		now:    time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Reserve admits one document for tenantID in the current period if the
// count stays within limit. On rejection the counter is left unchanged.
func (t *Tracker) Reserve(tenantID string, limit int) error {
	period := PeriodKey(t.now())

	t.mu.Lock()
	defer t.mu.Unlock()

	periods, ok := t.counts[tenantID]
	if !ok {
		periods = make(map[string]int)
		t.counts[tenantID] = periods
	}

	if periods[period]+1 > limit {
		return fmt.Errorf("%w (%d)", domain.ErrQuotaExceeded, limit)
	}
	periods[period]++
	return nil
}

// Usage returns the count for tenantID in the given period.
func (t *Tracker) Usage(tenantID, period string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[tenantID][period]
}

// CurrentUsage returns the count for tenantID in the current period along with the period key.
func (t *Tracker) CurrentUsage(tenantID string) (string, int) {
	period := PeriodKey(t.now())
	return period, t.Usage(tenantID, period)
}
