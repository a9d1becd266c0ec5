package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/nightshift-io/nightshift/internal/job"
)

// commandPayload is the expected payload for type "command".
type commandPayload struct {
	Argv []string          `json:"argv"`
	Env  map[string]string `json:"env"`
	Dir  string            `json:"dir"`
}

// NewCommandExecutor returns a handler that runs the payload's argv as
// a child process, captures combined stdout/stderr to
// <outputDir>/<job_id>.log, and reports that log as the job's artifact.
//
// Payload shape: {"argv": ["/usr/local/bin/render", "--quarter", "q1"],
// "env": {"TZ": "UTC"}, "dir": "/srv/reports"}. env entries are added
// on top of the worker's own environment; dir is the working directory.
func NewCommandExecutor(outputDir string) Handler {
	return func(ctx context.Context, j *job.Job) (*Result, error) {
		payload, err := decodeCommandPayload(j.Payload)
		if err != nil {
			return nil, err
		}

		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
		logPath := filepath.Join(outputDir, j.JobID+".log")
		logFile, err := os.Create(logPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create job log: %w", err)
		}
		defer logFile.Close()

		cmd := exec.CommandContext(ctx, payload.Argv[0], payload.Argv[1:]...)
		cmd.Dir = payload.Dir
		if len(payload.Env) > 0 {
			env := os.Environ()
			for k, v := range payload.Env {
				env = append(env, k+"="+v)
			}
			cmd.Env = env
		}
		cmd.Stdout = logFile
		cmd.Stderr = logFile

		if err := cmd.Run(); err != nil {
			// The log survives for inspection even though a failed job
			// records no artifacts.
			return nil, fmt.Errorf("command %q failed: %v (log: %s)", payload.Argv[0], err, logPath)
		}

		return &Result{
			OutputPaths: []string{logPath},
			Data: map[string]any{
				"command":   payload.Argv[0],
				"exit_code": 0,
			},
		}, nil
	}
}

func decodeCommandPayload(payload map[string]any) (commandPayload, error) {
	p := commandPayload{}
	raw, err := json.Marshal(payload)
	if err != nil {
		return p, fmt.Errorf("failed to encode payload: %w", err)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("invalid command payload: %w", err)
	}
	if len(p.Argv) == 0 || p.Argv[0] == "" {
		return p, errors.New("command payload requires a non-empty argv")
	}
	return p, nil
}

// NewSleepExecutor returns a handler that waits for the payload's
// duration_ms and succeeds, or fails with the payload's fail message.
// Used in examples and tests to exercise the loop without real work.
func NewSleepExecutor() Handler {
	return func(ctx context.Context, j *job.Job) (*Result, error) {
		if msg, ok := j.Payload["fail"].(string); ok && msg != "" {
			return nil, errors.New(msg)
		}

		ms, _ := asInt(j.Payload["duration_ms"])
		if ms > 0 {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		return &Result{
			Data: map[string]any{"slept_ms": ms},
		}, nil
	}
}

// asInt tolerates JSON numbers arriving as float64.
func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case int64:
		return int(t), true
	default:
		return 0, false
	}
}
