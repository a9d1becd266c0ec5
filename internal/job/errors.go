package job

import "errors"

var (
	// ErrEmptyID is returned when a job document carries no job_id
	ErrEmptyID = errors.New("job id is required")

	// ErrEmptyType is returned when a submission carries no job type
	ErrEmptyType = errors.New("job type is required")

	// ErrEmptyPayload is returned when a submission carries no payload
	ErrEmptyPayload = errors.New("job payload is required")

	// ErrInvalidPriority is returned for priority values outside the known tiers
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrInvalidStatus is returned for status values outside the known states
	ErrInvalidStatus = errors.New("invalid status")
)
