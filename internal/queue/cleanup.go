package queue

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Cleanup removes active-directory files whose job already has an
// archived copy. Such duplicates only appear when a process died between
// the archive write and the active removal, so deleting them restores
// the one-location invariant without data loss. Safe to run at any time.
func (s *Store) Cleanup() (int, error) {
	entries, err := os.ReadDir(s.active)
	if err != nil {
		return 0, fmt.Errorf("failed to list active directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), jobFileExt) {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), jobFileExt)
		if !s.archived(id) {
			continue
		}
		if err := os.Remove(filepath.Join(s.active, entry.Name())); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return removed, fmt.Errorf("failed to remove duplicate of %s: %w", id, err)
		}
		s.logger.Warn("Removed active duplicate of archived job",
			slog.String("job_id", id),
		)
		removed++
	}

	return removed, nil
}

// PruneArchive deletes archived jobs whose completion is older than the
// retention window. It only ever touches terminal records in the archive
// directory; a non-positive retention disables pruning.
func (s *Store) PruneArchive(retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-retention)

	entries, err := os.ReadDir(s.archive)
	if err != nil {
		return 0, fmt.Errorf("failed to list archive directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), jobFileExt) {
			continue
		}
		path := filepath.Join(s.archive, entry.Name())
		j, err := readJob(path)
		if err != nil {
			var corrupt *CorruptFileError
			if errors.As(err, &corrupt) {
				s.logger.Warn("Skipping corrupt archived job",
					slog.String("path", corrupt.Path),
					slog.Any("error", corrupt.Err),
				)
				continue
			}
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return removed, err
		}
		if j.CompletedAt == nil || j.CompletedAt.After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("failed to prune %s: %w", j.JobID, err)
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("Pruned archived jobs",
			slog.Int("removed", removed),
			slog.Duration("retention", retention),
		)
	}
	return removed, nil
}
