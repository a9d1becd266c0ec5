package job

import (
	"fmt"
	"time"
)

// Event is one entry in a job's append-only audit trail. Worker and
// Error are only set for the transitions that produce them.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Status    Status    `json:"status"`
	Worker    string    `json:"worker,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Job is the durable unit of work, stored as one JSON file per job.
// Payload and Result are opaque to the queue and passed through to the
// executor untouched.
type Job struct {
	JobID       string         `json:"job_id"`
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload"`
	Priority    Priority       `json:"priority"`
	Status      Status         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	RunAt       time.Time      `json:"run_at"`
	StartedAt   *time.Time     `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Artifacts   []string       `json:"artifacts"`
	Result      map[string]any `json:"result"`
	Error       *string        `json:"error"`
	Events      []Event        `json:"events"`
}

// New builds a queued job with its initial audit event. RunAt controls
// eligibility; pass createdAt to make the job claimable immediately.
func New(id, jobType string, payload map[string]any, priority Priority, createdAt, runAt time.Time) *Job {
	j := &Job{
		JobID:     id,
		Type:      jobType,
		Payload:   payload,
		Priority:  priority,
		Status:    StatusQueued,
		CreatedAt: createdAt,
		RunAt:     runAt,
		Artifacts: []string{},
	}
	j.Append(Event{Timestamp: createdAt, Event: EventEnqueued, Status: StatusQueued})
	return j
}

// Append records a transition event and bumps updated_at. Events are
// never rewritten in place, so the trail survives a crash mid-operation.
func (j *Job) Append(e Event) {
	j.Events = append(j.Events, e)
	j.UpdatedAt = e.Timestamp
}

// Eligible reports whether the job can be claimed at the given instant.
func (j *Job) Eligible(now time.Time) bool {
	return j.Status == StatusQueued && !j.RunAt.After(now)
}

// Validate checks the fields every well-formed job document must carry.
func (j *Job) Validate() error {
	if j.JobID == "" {
		return ErrEmptyID
	}
	if j.Type == "" {
		return ErrEmptyType
	}
	if len(j.Payload) == 0 {
		return ErrEmptyPayload
	}
	if !j.Priority.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPriority, j.Priority)
	}
	if !j.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, j.Status)
	}
	return nil
}
