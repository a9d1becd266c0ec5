package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	idPrefix     = "job"
	idTimeLayout = "20060102-150405"

	// allocatorRetryDelay is how often a blocked NextID call re-attempts
	// the sentinel lock until its timeout expires.
	allocatorRetryDelay = 10 * time.Millisecond
)

// NextID allocates a job ID that is unique across all past and present
// jobs under this root and sorts after every earlier ID. The queue-wide
// sentinel lock covers only the scan-and-compute step, never a job
// write; the issued ID is recorded inside the sentinel before the lock
// is released so it stays reserved even while its job file is not yet
// visible to directory scans.
func (s *Store) NextID(ctx context.Context, now time.Time) (string, error) {
	lock := flock.New(s.lockPath)

	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()

	locked, err := lock.TryLockContext(lockCtx, allocatorRetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", ErrQueueBusy
		}
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", fmt.Errorf("failed to acquire allocator lock: %w", err)
	}
	if !locked {
		return "", ErrQueueBusy
	}
	defer lock.Unlock()

	prefix := timePrefix(now)
	seq := 0

	// The newest recorded ID wins over the wall clock if the clock
	// stepped backwards, keeping IDs monotonic across restarts. The
	// prefix is fixed-width, so string order is time order.
	if last, ok := s.readSentinel(); ok {
		lastPrefix, lastSeq, valid := splitID(last)
		if valid && lastPrefix >= prefix {
			prefix = lastPrefix
			seq = lastSeq
		}
	}

	maxSeq, err := s.maxSequence(prefix)
	if err != nil {
		return "", err
	}
	if maxSeq > seq {
		seq = maxSeq
	}

	id := formatID(prefix, seq+1)
	if err := s.writeSentinel(id); err != nil {
		return "", err
	}
	return id, nil
}

// maxSequence scans both directories for jobs sharing the prefix and
// returns the highest sequence number found, or zero.
func (s *Store) maxSequence(prefix string) (int, error) {
	maxSeq := 0
	for _, dir := range []string{s.active, s.archive} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return 0, fmt.Errorf("failed to scan %s: %w", dir, err)
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasSuffix(name, jobFileExt) {
				continue
			}
			idPart, seq, ok := splitID(strings.TrimSuffix(name, jobFileExt))
			if !ok || idPart != prefix {
				continue
			}
			if seq > maxSeq {
				maxSeq = seq
			}
		}
	}
	return maxSeq, nil
}

// readSentinel returns the last issued ID recorded in the sentinel file,
// if any. Unreadable or malformed content is ignored; the directory scan
// still guards uniqueness within the current prefix.
func (s *Store) readSentinel() (string, bool) {
	data, err := os.ReadFile(s.lockPath)
	if err != nil {
		s.logger.Warn("Failed to read allocator sentinel",
			slog.String("path", s.lockPath),
			slog.Any("error", err),
		)
		return "", false
	}
	last := strings.TrimSpace(string(data))
	if last == "" {
		return "", false
	}
	return last, true
}

// writeSentinel records the issued ID in place. The sentinel is never
// replaced by rename: concurrent allocators lock it by path, and a
// rename would swap the inode out from under them.
func (s *Store) writeSentinel(id string) error {
	f, err := os.OpenFile(s.lockPath, os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open allocator sentinel: %w", err)
	}
	err = writeAll(f, []byte(id+"\n"))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to record issued id: %w", err)
	}
	return nil
}

func timePrefix(t time.Time) string {
	return idPrefix + "-" + t.UTC().Format(idTimeLayout)
}

func formatID(prefix string, seq int) string {
	return fmt.Sprintf("%s-%03d", prefix, seq)
}

// splitID separates a job ID into its time prefix and sequence number.
func splitID(id string) (prefix string, seq int, ok bool) {
	i := strings.LastIndexByte(id, '-')
	if i <= 0 || i == len(id)-1 {
		return "", 0, false
	}
	seq, err := strconv.Atoi(id[i+1:])
	if err != nil || seq < 1 {
		return "", 0, false
	}
	prefix = id[:i]
	rest, found := strings.CutPrefix(prefix, idPrefix+"-")
	if !found {
		return "", 0, false
	}
	if _, err := time.Parse(idTimeLayout, rest); err != nil {
		return "", 0, false
	}
	return prefix, seq, true
}
