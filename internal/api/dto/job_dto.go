package dto

import (
	"time"

	"github.com/nightshift-io/nightshift/internal/job"
)

// EnqueueJobRequest is the body of POST /api/v1/jobs. Priority and
// run_at are optional; the queue defaults them to medium and now.
type EnqueueJobRequest struct {
	Type     string         `json:"type" binding:"required"`
	Payload  map[string]any `json:"payload" binding:"required"`
	Priority string         `json:"priority"`
	RunAt    *time.Time     `json:"run_at"`
}

// ListJobsRequest carries the query filters of GET /api/v1/jobs.
type ListJobsRequest struct {
	Status   string `form:"status"`
	Type     string `form:"type"`
	Archived bool   `form:"archived"`
	Limit    int    `form:"limit"`
}

type ListJobsResponse struct {
	Jobs  []JobDTO `json:"jobs"`
	Count int      `json:"count"`
}

// JobDTO mirrors the on-disk job document with RFC3339 timestamps.
type JobDTO struct {
	JobID       string         `json:"job_id"`
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload"`
	Priority    string         `json:"priority"`
	Status      string         `json:"status"`
	CreatedAt   string         `json:"created_at"`
	RunAt       string         `json:"run_at"`
	StartedAt   *string        `json:"started_at"`
	CompletedAt *string        `json:"completed_at"`
	UpdatedAt   string         `json:"updated_at"`
	Artifacts   []string       `json:"artifacts"`
	Result      map[string]any `json:"result"`
	Error       *string        `json:"error"`
	Events      []job.Event    `json:"events"`
}

// FromJob converts a job record to its API representation.
func FromJob(j *job.Job) JobDTO {
	return JobDTO{
		JobID:       j.JobID,
		Type:        j.Type,
		Payload:     j.Payload,
		Priority:    string(j.Priority),
		Status:      string(j.Status),
		CreatedAt:   j.CreatedAt.Format(time.RFC3339),
		RunAt:       j.RunAt.Format(time.RFC3339),
		StartedAt:   formatTimePtr(j.StartedAt),
		CompletedAt: formatTimePtr(j.CompletedAt),
		UpdatedAt:   j.UpdatedAt.Format(time.RFC3339),
		Artifacts:   j.Artifacts,
		Result:      j.Result,
		Error:       j.Error,
		Events:      j.Events,
	}
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
