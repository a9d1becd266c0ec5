package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightshift-io/nightshift/internal/job"
)

func TestRegistry_Resolve(t *testing.T) {
	handler := func(ctx context.Context, j *job.Job) (*Result, error) {
		return &Result{}, nil
	}

	t.Run("registered type resolves", func(t *testing.T) {
		r := NewRegistry()
		r.Register("render_report", handler)

		got, err := r.Resolve("render_report")
		require.NoError(t, err)
		assert.NotNil(t, got)
	})

	t.Run("unknown type without default errors", func(t *testing.T) {
		r := NewRegistry()
		r.Register("render_report", handler)

		_, err := r.Resolve("unknown")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNoHandler))
		assert.Contains(t, err.Error(), `"unknown"`)
	})

	t.Run("default catches unknown types", func(t *testing.T) {
		r := NewRegistry()
		r.SetDefault(handler)

		got, err := r.Resolve("anything")
		require.NoError(t, err)
		assert.NotNil(t, got)
	})

	t.Run("dedicated handler wins over default", func(t *testing.T) {
		r := NewRegistry()
		r.Register("render_report", func(ctx context.Context, j *job.Job) (*Result, error) {
			return &Result{Data: map[string]any{"via": "dedicated"}}, nil
		})
		r.SetDefault(func(ctx context.Context, j *job.Job) (*Result, error) {
			return &Result{Data: map[string]any{"via": "default"}}, nil
		})

		got, err := r.Resolve("render_report")
		require.NoError(t, err)
		result, err := got(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, "dedicated", result.Data["via"])
	})

	t.Run("empty type and nil handler are ignored", func(t *testing.T) {
		r := NewRegistry()
		r.Register("", handler)
		r.Register("render_report", nil)

		assert.Empty(t, r.Types())
	})
}

func TestRegistry_Types(t *testing.T) {
	r := NewRegistry()
	handler := func(ctx context.Context, j *job.Job) (*Result, error) {
		return &Result{}, nil
	}
	r.Register("sleep", handler)
	r.Register("command", handler)
	r.Register("render_report", handler)

	assert.Equal(t, []string{"command", "render_report", "sleep"}, r.Types())
}
