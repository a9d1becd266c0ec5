package worker

import "errors"

var (
	// ErrNoHandler is returned when a claimed job's type has no
	// registered executor and no default is set
	ErrNoHandler = errors.New("no executor registered for job type")
)
