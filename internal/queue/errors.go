package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueBusy is returned when the allocator lock cannot be acquired
	// within the configured timeout. Callers should retry with backoff.
	ErrQueueBusy = errors.New("queue busy: allocator lock unavailable")

	// ErrJobNotFound is returned when a job exists in neither the active
	// nor the archive directory
	ErrJobNotFound = errors.New("job not found")

	// ErrNotInProgress is returned by MarkDone/MarkFailed for a job that
	// is still queued and was never claimed
	ErrNotInProgress = errors.New("job is not in progress")
)

// CorruptFileError marks an active-directory file that does not parse as
// a valid job document. The file is left in place for manual inspection,
// never deleted.
type CorruptFileError struct {
	Path string
	Err  error
}

func (e *CorruptFileError) Error() string {
	return fmt.Sprintf("corrupt job file %s: %v", e.Path, e.Err)
}

func (e *CorruptFileError) Unwrap() error {
	return e.Err
}
