package queue

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/nightshift-io/nightshift/internal/job"
)

// MarkDone records a successful execution and relocates the job from
// active to archive. Repeating the call for an already-archived job is
// a no-op that returns success, so a worker that crashed after the
// archive write can safely retry.
func (s *Store) MarkDone(jobID string, artifacts []string, result map[string]any) error {
	return s.finalize(jobID, job.StatusCompleted, artifacts, result, "")
}

// MarkFailed records a failed execution and relocates the job from
// active to archive. Idempotent in the same way as MarkDone.
func (s *Store) MarkFailed(jobID string, errMsg string) error {
	return s.finalize(jobID, job.StatusFailed, nil, nil, errMsg)
}

func (s *Store) finalize(jobID string, status job.Status, artifacts []string, result map[string]any, errMsg string) error {
	activePath := s.activePath(jobID)

	j, err := readJob(activePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// A missing file means the terminal call is a repeat from a
			// crashed-and-restarted worker; repeats are no-ops.
			s.logger.Debug("Job not in active directory, nothing to do",
				slog.String("job_id", jobID),
				slog.Bool("archived", s.archived(jobID)),
			)
			return nil
		}
		return err
	}

	if j.Status.Terminal() {
		// A terminal document still sitting in active means a previous
		// relocation was interrupted. Finish it without a new event.
		return s.relocate(j, activePath)
	}
	if j.Status != job.StatusInProgress {
		return fmt.Errorf("%w: %s is %s", ErrNotInProgress, jobID, j.Status)
	}

	now := time.Now().UTC()
	j.Status = status
	j.CompletedAt = &now

	if status == job.StatusCompleted {
		if artifacts == nil {
			artifacts = []string{}
		}
		j.Artifacts = artifacts
		j.Result = result
		j.Append(job.Event{Timestamp: now, Event: job.EventCompleted, Status: status})
	} else {
		msg := errMsg
		j.Error = &msg
		j.Append(job.Event{Timestamp: now, Event: job.EventFailed, Status: status, Error: errMsg})
	}

	if err := s.relocate(j, activePath); err != nil {
		return err
	}

	s.logger.Info("Job finished",
		slog.String("job_id", j.JobID),
		slog.String("type", j.Type),
		slog.String("status", string(status)),
		slog.Int("artifacts", len(j.Artifacts)),
	)
	return nil
}

// relocate moves a terminal job out of the active directory: archive
// copy first, then removal of the original. A crash in between leaves a
// duplicate for Cleanup, never a lost terminal record.
func (s *Store) relocate(j *job.Job, activePath string) error {
	data, err := encodeJob(j)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.archive, s.archivePath(j.JobID), data); err != nil {
		return err
	}
	if err := os.Remove(activePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove active copy of %s: %w", j.JobID, err)
	}
	return nil
}

func (s *Store) archived(jobID string) bool {
	_, err := os.Stat(s.archivePath(jobID))
	return err == nil
}
