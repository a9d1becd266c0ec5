package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/nightshift-io/nightshift/internal/job"
)

// ClaimOptions bounds a single claim pass.
type ClaimOptions struct {
	// Now is the eligibility instant; zero means the current time.
	Now time.Time

	// Limit caps how many jobs one call may claim. Zero means no cap.
	Limit int

	// Worker identifies the claimer in each claimed job's audit trail.
	Worker string
}

// Claim transitions eligible queued jobs to in_progress and returns
// them ordered critical first, oldest first within a tier. Every
// candidate is taken under a non-blocking per-file lock and re-read
// before the transition; a candidate whose lock is held elsewhere is
// skipped without error and stays claimable. That skip-on-contention
// rule is what makes claims from independent worker processes
// exactly-once: only one caller can hold a given file's lock, so only
// one caller can ever move that job out of queued.
func (s *Store) Claim(ctx context.Context, opts ClaimOptions) ([]*job.Job, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	candidates, err := s.listCandidates(now)
	if err != nil {
		return nil, err
	}

	var claimed []*job.Job
	for _, cand := range candidates {
		if opts.Limit > 0 && len(claimed) >= opts.Limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return claimed, err
		}

		j, err := s.claimOne(cand.path, now, opts.Worker)
		if err != nil {
			var corrupt *CorruptFileError
			if errors.As(err, &corrupt) {
				s.logger.Warn("Skipping corrupt job file",
					slog.String("path", corrupt.Path),
					slog.Any("error", corrupt.Err),
				)
				continue
			}
			// Storage fault; claimed jobs are already in_progress on
			// disk, so hand them back along with the error.
			return claimed, err
		}
		if j != nil {
			claimed = append(claimed, j)
		}
	}

	return claimed, nil
}

type candidate struct {
	path      string
	id        string
	rank      int
	createdAt time.Time
}

// listCandidates reads every active job file and returns the eligible
// ones sorted by priority then creation time. Corrupt files are skipped
// with a warning and left in place for inspection.
func (s *Store) listCandidates(now time.Time) ([]candidate, error) {
	entries, err := os.ReadDir(s.active)
	if err != nil {
		return nil, fmt.Errorf("failed to list active directory: %w", err)
	}

	var out []candidate
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), jobFileExt) {
			continue
		}
		path := filepath.Join(s.active, entry.Name())
		j, err := readJob(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue // completed and archived since the listing
			}
			var corrupt *CorruptFileError
			if errors.As(err, &corrupt) {
				s.logger.Warn("Skipping corrupt job file",
					slog.String("path", corrupt.Path),
					slog.Any("error", corrupt.Err),
				)
				continue
			}
			return nil, err
		}
		if !j.Eligible(now) {
			continue
		}
		out = append(out, candidate{
			path:      path,
			id:        j.JobID,
			rank:      j.Priority.Rank(),
			createdAt: j.CreatedAt,
		})
	}

	sort.Slice(out, func(i, k int) bool {
		if out[i].rank != out[k].rank {
			return out[i].rank < out[k].rank
		}
		if !out[i].createdAt.Equal(out[k].createdAt) {
			return out[i].createdAt.Before(out[k].createdAt)
		}
		return out[i].id < out[k].id
	})

	return out, nil
}

// claimOne attempts to take one candidate under its file lock. It
// returns nil, nil when the candidate is skipped: lock held by another
// worker, file gone, or no longer eligible on re-read.
func (s *Store) claimOne(path string, now time.Time, worker string) (*job.Job, error) {
	// Open before locking. The lock is opened without O_CREATE so a job
	// archived in the meantime is a skip, not a resurrected empty file.
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	lock := flock.New(path, flock.SetFlag(os.O_RDWR))
	locked, err := lock.TryLock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !locked {
		s.logger.Debug("Job file locked by another worker",
			slog.String("path", path),
		)
		return nil, nil
	}
	defer lock.Unlock()

	// Re-read under the lock; the listing is stale by now and only the
	// state seen here decides.
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var j job.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, &CorruptFileError{Path: path, Err: err}
	}
	if err := j.Validate(); err != nil {
		return nil, &CorruptFileError{Path: path, Err: err}
	}
	if !j.Eligible(now) {
		s.logger.Debug("Job no longer eligible",
			slog.String("job_id", j.JobID),
			slog.String("status", string(j.Status)),
		)
		return nil, nil
	}

	started := now
	j.Status = job.StatusInProgress
	j.StartedAt = &started
	j.Append(job.Event{
		Timestamp: now,
		Event:     job.EventClaimed,
		Status:    job.StatusInProgress,
		Worker:    worker,
	})

	// Rewrite in place. Renaming a temp file over the path would swap
	// the inode this lock protects and hand competing claimers a stale
	// file to verify against.
	updated, err := encodeJob(&j)
	if err != nil {
		return nil, err
	}
	if err := writeAll(f, updated); err != nil {
		if rerr := writeAll(f, data); rerr != nil {
			s.logger.Error("Failed to restore job file after write error",
				slog.String("path", path),
				slog.Any("error", rerr),
			)
		}
		return nil, fmt.Errorf("failed to update %s: %w", path, err)
	}

	s.logger.Info("Job claimed",
		slog.String("job_id", j.JobID),
		slog.String("type", j.Type),
		slog.String("priority", string(j.Priority)),
		slog.String("worker", worker),
	)

	return &j, nil
}
