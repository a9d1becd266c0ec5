package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightshift-io/nightshift/internal/job"
)

func TestCleanupRemovesCrashDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	finished := enqueueAndClaim(t, s)
	require.NoError(t, s.MarkDone(finished.JobID, nil, nil))

	survivor, err := s.Enqueue(ctx, Submission{Type: "render_report", Payload: testPayload()})
	require.NoError(t, err)

	// Recreate the crash window: archive copy written, active copy never
	// removed.
	data, err := os.ReadFile(s.archivePath(finished.JobID))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.activePath(finished.JobID), data, 0o644))

	removed, err := s.Cleanup()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(s.activePath(finished.JobID))
	assert.True(t, os.IsNotExist(err), "duplicate must be removed from active")
	_, err = os.Stat(s.archivePath(finished.JobID))
	assert.NoError(t, err, "archived record must survive")

	// Jobs without an archived copy are never touched.
	j, err := s.Get(survivor.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusQueued, j.Status)
}

func TestCleanupNothingToDo(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Enqueue(context.Background(), Submission{Type: "render_report", Payload: testPayload()})
	require.NoError(t, err)

	removed, err := s.Cleanup()
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestPruneArchive(t *testing.T) {
	s := newTestStore(t)

	old := enqueueAndClaim(t, s)
	require.NoError(t, s.MarkDone(old.JobID, nil, nil))
	recent := enqueueAndClaim(t, s)
	require.NoError(t, s.MarkDone(recent.JobID, nil, nil))

	// Age one record past the retention window.
	aged, err := readJob(s.archivePath(old.JobID))
	require.NoError(t, err)
	completedAt := time.Now().UTC().Add(-10 * 24 * time.Hour)
	aged.CompletedAt = &completedAt
	data, err := encodeJob(aged)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.archivePath(old.JobID), data, 0o644))

	removed, err := s.PruneArchive(7 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.Get(old.JobID)
	assert.ErrorIs(t, err, ErrJobNotFound)

	kept, err := s.Get(recent.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, kept.Status)
}

func TestPruneArchiveDisabled(t *testing.T) {
	s := newTestStore(t)

	j := enqueueAndClaim(t, s)
	require.NoError(t, s.MarkDone(j.JobID, nil, nil))

	removed, err := s.PruneArchive(0)
	require.NoError(t, err)
	assert.Zero(t, removed)

	_, err = s.Get(j.JobID)
	require.NoError(t, err)
}
