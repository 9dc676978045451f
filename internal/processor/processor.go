// Package processor holds the per-job-type handlers the worker dispatches to.
package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cuongbtq/docjobs/internal/domain"
)

// Processor performs the document work for one job type.
// inputRef is the opaque handle produced by the upload storage.
type Processor interface {
	Process(ctx context.Context, inputRef string) (json.RawMessage, error)
}

// Func adapts a plain function to Processor.
type Func func(ctx context.Context, inputRef string) (json.RawMessage, error)

func (f Func) Process(ctx context.Context, inputRef string) (json.RawMessage, error) {
	return f(ctx, inputRef)
}

// Registry maps each job type to its processor
type Registry struct {
	processors map[domain.JobType]Processor
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{processors: make(map[domain.JobType]Processor)}
}

// Register binds p to jobType, replacing any previous binding.
func (r *Registry) Register(jobType domain.JobType, p Processor) *Registry {
	r.processors[jobType] = p
	return r
}

// Lookup returns the processor for jobType.
func (r *Registry) Lookup(jobType domain.JobType) (Processor, error) {
	p, ok := r.processors[jobType]
	if !ok {
		return nil, fmt.Errorf("no processor registered for job_type %q", jobType)
	}
	return p, nil
}

// Covers reports whether every known job type has a processor.
func (r *Registry) Covers() error {
	for _, t := range domain.JobTypes {
		if _, err := r.Lookup(t); err != nil {
			return err
		}
	}
	return nil
}
