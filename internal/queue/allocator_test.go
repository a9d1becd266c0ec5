package queue

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextIDSequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 12, 3, 15, 0, 0, time.UTC)

	id1, err := s.NextID(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, "job-20240312-031500-001", id1)

	id2, err := s.NextID(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, "job-20240312-031500-002", id2)

	id3, err := s.NextID(ctx, at.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "job-20240312-031501-001", id3)

	// Lexicographic order follows allocation order.
	assert.Less(t, id1, id2)
	assert.Less(t, id2, id3)
}

func TestNextIDSurvivesRestart(t *testing.T) {
	root := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	at := time.Date(2024, 3, 12, 3, 15, 0, 0, time.UTC)

	s1, err := NewStore(&Config{Root: root}, logger)
	require.NoError(t, err)
	_, err = s1.NextID(ctx, at)
	require.NoError(t, err)

	// A fresh store on the same root must continue the sequence even
	// though no job file was ever written for the first ID.
	s2, err := NewStore(&Config{Root: root}, logger)
	require.NoError(t, err)
	id, err := s2.NextID(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, "job-20240312-031500-002", id)
}

func TestNextIDClockStepBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	later := time.Date(2024, 3, 12, 3, 15, 1, 0, time.UTC)
	earlier := time.Date(2024, 3, 12, 3, 15, 0, 0, time.UTC)

	id1, err := s.NextID(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, "job-20240312-031501-001", id1)

	id2, err := s.NextID(ctx, earlier)
	require.NoError(t, err)
	assert.Equal(t, "job-20240312-031501-002", id2,
		"a backwards clock step must not break ID ordering")
	assert.Less(t, id1, id2)
}

func TestNextIDConcurrent(t *testing.T) {
	s := newTestStore(t)
	at := time.Date(2024, 3, 12, 3, 15, 0, 0, time.UTC)

	const n = 30
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := s.NextID(context.Background(), at)
			if assert.NoError(t, err) {
				ids[i] = id
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]struct{}, n)
	for _, id := range ids {
		require.NotEmpty(t, id)
		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, n)
}

func TestNextIDQueueBusy(t *testing.T) {
	root := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewStore(&Config{Root: root, AllocatorTimeout: 50 * time.Millisecond}, logger)
	require.NoError(t, err)

	blocker := flock.New(filepath.Join(root, ".allocator.lock"))
	locked, err := blocker.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer blocker.Unlock()

	_, err = s.NextID(context.Background(), time.Now().UTC())
	assert.ErrorIs(t, err, ErrQueueBusy)
}

func TestSplitID(t *testing.T) {
	tests := []struct {
		name       string
		id         string
		wantPrefix string
		wantSeq    int
		wantOK     bool
	}{
		{name: "well formed", id: "job-20240312-031500-007", wantPrefix: "job-20240312-031500", wantSeq: 7, wantOK: true},
		{name: "large sequence", id: "job-20240312-031500-120", wantPrefix: "job-20240312-031500", wantSeq: 120, wantOK: true},
		{name: "no sequence", id: "job-20240312-031500", wantOK: false},
		{name: "zero sequence", id: "job-20240312-031500-000", wantOK: false},
		{name: "bad timestamp", id: "job-20241399-031500-001", wantOK: false},
		{name: "foreign prefix", id: "task-20240312-031500-001", wantOK: false},
		{name: "empty", id: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefix, seq, ok := splitID(tt.id)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantPrefix, prefix)
				assert.Equal(t, tt.wantSeq, seq)
			}
		})
	}
}
