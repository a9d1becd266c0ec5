package job

import (
	"encoding/json"
	"fmt"
)

// Status is the lifecycle state of a job. It only moves forward:
// queued -> in_progress -> completed or failed.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether the status is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// UnmarshalJSON rejects unknown status values at the decode boundary
// instead of letting raw strings propagate into the queue.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !Status(raw).Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	*s = Status(raw)
	return nil
}

// Priority orders jobs for claiming. Critical drains first.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// DefaultPriority applies when a submission omits the field.
const DefaultPriority = PriorityMedium

// Valid reports whether the priority is one of the known tiers.
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Rank maps priorities to claim order, critical first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	}
	return 4
}

// UnmarshalJSON rejects unknown priority values at the decode boundary.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !Priority(raw).Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPriority, raw)
	}
	*p = Priority(raw)
	return nil
}

// Audit event names, one per lifecycle transition
const (
	EventEnqueued  = "enqueued"
	EventClaimed   = "claimed"
	EventCompleted = "completed"
	EventFailed    = "failed"
)
