package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nightshift-io/nightshift/internal/job"
)

// Submission carries the caller-supplied fields of a new job. The queue
// never interprets Payload; it only requires that one is present.
type Submission struct {
	Type     string
	Payload  map[string]any
	Priority job.Priority // empty defaults to medium
	RunAt    time.Time    // zero defaults to submission time
}

// Enqueue validates the submission, allocates an ID, and writes the job
// into the active directory with status queued. Validation failures are
// rejected before anything touches disk.
func (s *Store) Enqueue(ctx context.Context, sub Submission) (*job.Job, error) {
	if sub.Type == "" {
		return nil, job.ErrEmptyType
	}
	if len(sub.Payload) == 0 {
		return nil, job.ErrEmptyPayload
	}
	priority := sub.Priority
	if priority == "" {
		priority = job.DefaultPriority
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: %q", job.ErrInvalidPriority, priority)
	}

	now := time.Now().UTC()
	runAt := sub.RunAt.UTC()
	if sub.RunAt.IsZero() {
		runAt = now
	}

	id, err := s.NextID(ctx, now)
	if err != nil {
		return nil, err
	}

	j := job.New(id, sub.Type, sub.Payload, priority, now, runAt)

	data, err := encodeJob(j)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(s.active, s.activePath(id), data); err != nil {
		return nil, err
	}

	s.logger.Info("Job enqueued",
		slog.String("job_id", id),
		slog.String("type", j.Type),
		slog.String("priority", string(j.Priority)),
		slog.Time("run_at", j.RunAt),
	)

	return j, nil
}
