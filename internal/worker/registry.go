package worker

import (
	"context"
	"fmt"
	"sort"

	"github.com/nightshift-io/nightshift/internal/job"
)

// Result is a successful execution's output. OutputPaths become the
// job's artifacts; Data is recorded as the job's result, opaque to the
// queue.
type Result struct {
	OutputPaths []string
	Data        map[string]any
}

// Handler executes one claimed job's payload. Returning an error marks
// the job failed with the error text captured verbatim.
type Handler func(ctx context.Context, j *job.Job) (*Result, error)

// Registry maps job types to their executors.
type Registry struct {
	handlers map[string]Handler
	fallback Handler
}

// NewRegistry creates an empty registry. Registration happens once at
// startup; the registry is read-only afterwards.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a job type.
func (r *Registry) Register(jobType string, handler Handler) {
	if jobType == "" || handler == nil {
		return
	}
	r.handlers[jobType] = handler
}

// SetDefault installs a handler for job types with no dedicated one.
func (r *Registry) SetDefault(handler Handler) {
	r.fallback = handler
}

// Resolve returns the handler for a job type, the default handler, or
// ErrNoHandler.
func (r *Registry) Resolve(jobType string) (Handler, error) {
	if handler, ok := r.handlers[jobType]; ok {
		return handler, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNoHandler, jobType)
}

// Types lists the registered job types in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
