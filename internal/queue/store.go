package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nightshift-io/nightshift/internal/job"
)

const (
	activeDirName     = "active"
	archiveDirName    = "archive"
	allocatorLockName = ".allocator.lock"
	jobFileExt        = ".json"

	// DefaultAllocatorTimeout bounds how long an Enqueue call waits for
	// the ID allocator lock before failing with ErrQueueBusy.
	DefaultAllocatorTimeout = 5 * time.Second
)

// Config holds queue storage configuration
type Config struct {
	// Root is the queue directory; active/, archive/ and the allocator
	// sentinel live directly under it.
	Root string

	// AllocatorTimeout overrides DefaultAllocatorTimeout when positive.
	AllocatorTimeout time.Duration
}

// Store is a handle on one on-disk queue instance. It holds no state
// beyond the resolved paths, so any number of processes can operate on
// the same root concurrently; coordination happens entirely through
// file locks and atomic renames.
type Store struct {
	root     string
	active   string
	archive  string
	lockPath string
	lockWait time.Duration
	logger   *slog.Logger
}

// NewStore prepares the storage layout under cfg.Root, creating the
// active and archive directories and the allocator sentinel if missing.
func NewStore(cfg *Config, logger *slog.Logger) (*Store, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("queue root directory is required")
	}

	lockWait := cfg.AllocatorTimeout
	if lockWait <= 0 {
		lockWait = DefaultAllocatorTimeout
	}

	s := &Store{
		root:     cfg.Root,
		active:   filepath.Join(cfg.Root, activeDirName),
		archive:  filepath.Join(cfg.Root, archiveDirName),
		lockPath: filepath.Join(cfg.Root, allocatorLockName),
		lockWait: lockWait,
		logger:   logger,
	}

	for _, dir := range []string{s.active, s.archive} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create queue directory: %w", err)
		}
	}

	// The sentinel must exist before the first lock attempt.
	f, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create allocator sentinel: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to create allocator sentinel: %w", err)
	}

	logger.Info("Queue store ready",
		slog.String("root", cfg.Root),
		slog.Duration("allocator_timeout", lockWait),
	)

	return s, nil
}

// Root returns the queue root directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) activePath(id string) string {
	return filepath.Join(s.active, id+jobFileExt)
}

func (s *Store) archivePath(id string) string {
	return filepath.Join(s.archive, id+jobFileExt)
}

// Get looks a job up by ID, checking the active directory first and the
// archive second.
func (s *Store) Get(id string) (*job.Job, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, ErrJobNotFound
	}

	j, err := readJob(s.activePath(id))
	if err == nil {
		return j, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	j, err = readJob(s.archivePath(id))
	if err == nil {
		return j, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrJobNotFound
	}
	return nil, err
}

// ListOptions filters List output. Zero values apply no filter.
type ListOptions struct {
	Status   job.Status
	Type     string
	Archived bool // list the archive directory instead of active
	Limit    int
}

// List returns jobs from one directory in creation order, oldest first.
// Corrupt files are skipped with a warning and left in place.
func (s *Store) List(opts ListOptions) ([]*job.Job, error) {
	dir := s.active
	if opts.Archived {
		dir = s.archive
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	jobs := make([]*job.Job, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), jobFileExt) {
			continue
		}
		j, err := readJob(filepath.Join(dir, entry.Name()))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
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
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		if opts.Type != "" && j.Type != opts.Type {
			continue
		}
		jobs = append(jobs, j)
	}

	// Job IDs are time-ordered, so ID order is creation order.
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].JobID < jobs[k].JobID
	})

	if opts.Limit > 0 && len(jobs) > opts.Limit {
		jobs = jobs[:opts.Limit]
	}
	return jobs, nil
}

// Stats summarizes queue state for operational reporting. Queued counts
// only jobs eligible at the given instant; jobs with a future run_at are
// reported as deferred.
type Stats struct {
	Queued     int `json:"queued"`
	Deferred   int `json:"deferred"`
	InProgress int `json:"in_progress"`
	Archived   int `json:"archived"`
	Corrupt    int `json:"corrupt"`
}

// Stats walks the active directory and counts the archive. A zero now
// means the current time.
func (s *Store) Stats(now time.Time) (*Stats, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	entries, err := os.ReadDir(s.active)
	if err != nil {
		return nil, fmt.Errorf("failed to list active directory: %w", err)
	}

	stats := &Stats{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), jobFileExt) {
			continue
		}
		j, err := readJob(filepath.Join(s.active, entry.Name()))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			var corrupt *CorruptFileError
			if errors.As(err, &corrupt) {
				stats.Corrupt++
				continue
			}
			return nil, err
		}
		switch {
		case j.Status == job.StatusInProgress:
			stats.InProgress++
		case j.Eligible(now):
			stats.Queued++
		default:
			stats.Deferred++
		}
	}

	archived, err := os.ReadDir(s.archive)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive directory: %w", err)
	}
	for _, entry := range archived {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), jobFileExt) {
			stats.Archived++
		}
	}

	return stats, nil
}

// HealthCheck verifies the storage layout is present, listable, and
// writable. The probe file has no .json suffix, so a concurrent claim
// scan never mistakes it for a job.
func (s *Store) HealthCheck() error {
	for _, dir := range []string{s.active, s.archive} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("queue health check failed: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("queue health check failed: %s is not a directory", dir)
		}
	}
	if _, err := os.ReadDir(s.active); err != nil {
		return fmt.Errorf("queue health check failed: %w", err)
	}

	probe, err := os.CreateTemp(s.active, ".health-*")
	if err != nil {
		return fmt.Errorf("queue health check failed: active directory not writable: %w", err)
	}
	probe.Close()
	if err := os.Remove(probe.Name()); err != nil {
		return fmt.Errorf("queue health check failed: %w", err)
	}
	return nil
}

// readJob decodes and validates the job document at path. Decode and
// validation failures come back as CorruptFileError; missing files come
// back as fs.ErrNotExist.
func readJob(path string) (*job.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var j job.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, &CorruptFileError{Path: path, Err: err}
	}
	if err := j.Validate(); err != nil {
		return nil, &CorruptFileError{Path: path, Err: err}
	}
	return &j, nil
}

// encodeJob renders the document as indented JSON so operators can
// inspect and, for documented recovery steps, hand-edit job files.
func encodeJob(j *job.Job) ([]byte, error) {
	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode job %s: %w", j.JobID, err)
	}
	return append(data, '\n'), nil
}

// writeFileAtomic writes data to a temporary file in dir and renames it
// over path, so a concurrent reader never observes a partial document.
func writeFileAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmpName, 0o644)
	}
	if err == nil {
		err = os.Rename(tmpName, path)
	}
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// writeAll overwrites an already-open file in place and flushes it.
func writeAll(f *os.File, data []byte) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		return err
	}
	return f.Sync()
}
