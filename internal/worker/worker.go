package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/nightshift-io/nightshift/internal/job"
	"github.com/nightshift-io/nightshift/internal/queue"
	"github.com/nightshift-io/nightshift/shared/metrics"
)

// Config holds worker configuration
type Config struct {
	Store    *queue.Store
	Registry *Registry
	Logger   *slog.Logger

	// WorkerID names this worker in job audit trails. When empty, the
	// hostname plus a random suffix is used so concurrent processes on
	// one host stay distinguishable.
	WorkerID string

	// MaxJobs caps how many jobs a single cycle claims. Zero means no cap.
	MaxJobs int

	// JobTimeout bounds each execution. Zero disables the timeout; the
	// queue itself never enforces one.
	JobTimeout time.Duration

	// ArchiveRetention prunes archived jobs older than this once per
	// cycle. Zero disables pruning.
	ArchiveRetention time.Duration
}

// Worker drives the claim-execute-complete cycle against one queue.
// Multiple worker processes may run against the same queue root; the
// per-file locks taken during claim keep them from ever executing the
// same job twice.
type Worker struct {
	store      *queue.Store
	registry   *Registry
	logger     *slog.Logger
	workerID   string
	maxJobs    int
	jobTimeout time.Duration
	retention  time.Duration
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	workerID := cfg.WorkerID
	if workerID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "worker"
		}
		workerID = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}

	return &Worker{
		store:      cfg.Store,
		registry:   cfg.Registry,
		logger:     cfg.Logger,
		workerID:   workerID,
		maxJobs:    cfg.MaxJobs,
		jobTimeout: cfg.JobTimeout,
		retention:  cfg.ArchiveRetention,
	}
}

// ID returns the worker identity recorded in claimed jobs.
func (w *Worker) ID() string {
	return w.workerID
}

// CycleStats summarizes one claim-execute-complete cycle.
type CycleStats struct {
	Claimed   int
	Completed int
	Failed    int
	Removed   int // crash duplicates removed by the cleanup pass
	Pruned    int // archived jobs past the retention window
}

// RunOnce performs a single cycle: a cleanup pass, one claim, then one
// terminal call per claimed job. The returned error is non-nil only for
// storage-level faults; per-job failures are recorded on the jobs
// themselves and never abort the rest of the batch.
func (w *Worker) RunOnce(ctx context.Context) (*CycleStats, error) {
	stats := &CycleStats{}

	removed, err := w.store.Cleanup()
	if err != nil {
		return stats, fmt.Errorf("cleanup pass failed: %w", err)
	}
	stats.Removed = removed

	if w.retention > 0 {
		pruned, err := w.store.PruneArchive(w.retention)
		if err != nil {
			// Retention is out-of-band housekeeping; a failed prune
			// never blocks the work pass.
			w.logger.Warn("Archive prune failed",
				slog.Any("error", err),
			)
		}
		stats.Pruned = pruned
	}

	claimed, claimErr := w.store.Claim(ctx, queue.ClaimOptions{
		Worker: w.workerID,
		Limit:  w.maxJobs,
	})

	// Jobs claimed before a mid-pass fault are in_progress on disk and
	// owned by this worker; each still gets its terminal call.
	stats.Claimed = len(claimed)
	metrics.JobsClaimed.Add(float64(len(claimed)))

	for _, j := range claimed {
		w.handle(ctx, j, stats)
	}

	w.observeDepth()

	w.logger.Info("Cycle complete",
		slog.String("worker_id", w.workerID),
		slog.Int("claimed", stats.Claimed),
		slog.Int("completed", stats.Completed),
		slog.Int("failed", stats.Failed),
		slog.Int("duplicates_removed", stats.Removed),
		slog.Int("pruned", stats.Pruned),
	)

	if claimErr != nil {
		return stats, fmt.Errorf("claim pass failed: %w", claimErr)
	}
	return stats, nil
}

// Run performs a cycle on every tick until the context is canceled.
func (w *Worker) Run(ctx context.Context, interval time.Duration) error {
	w.logger.Info("Worker started",
		slog.String("worker_id", w.workerID),
		slog.Duration("poll_interval", interval),
		slog.Any("job_types", w.registry.Types()),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil {
			// Storage faults in loop mode are logged and retried on the
			// next tick rather than killing the process.
			w.logger.Error("Cycle aborted",
				slog.Any("error", err),
			)
		}

		select {
		case <-ctx.Done():
			w.logger.Info("Worker context canceled, stopping...")
			return nil
		case <-ticker.C:
		}
	}
}

// handle runs one claimed job and records exactly one terminal state.
func (w *Worker) handle(ctx context.Context, j *job.Job, stats *CycleStats) {
	w.logger.Info("Processing job",
		slog.String("job_id", j.JobID),
		slog.String("type", j.Type),
		slog.String("priority", string(j.Priority)),
		slog.String("worker_id", w.workerID),
	)

	started := time.Now()
	result, err := w.execute(ctx, j)
	elapsed := time.Since(started)
	metrics.JobDuration.WithLabelValues(j.Type).Observe(elapsed.Seconds())

	if err != nil {
		stats.Failed++
		metrics.JobsProcessed.WithLabelValues(j.Type, string(job.StatusFailed)).Inc()
		w.logger.Error("Job failed",
			slog.String("job_id", j.JobID),
			slog.String("type", j.Type),
			slog.String("error", err.Error()),
			slog.Duration("duration", elapsed),
		)
		if markErr := w.store.MarkFailed(j.JobID, err.Error()); markErr != nil {
			w.logger.Error("Failed to record job failure",
				slog.String("job_id", j.JobID),
				slog.Any("error", markErr),
			)
		}
		return
	}

	stats.Completed++
	metrics.JobsProcessed.WithLabelValues(j.Type, string(job.StatusCompleted)).Inc()
	w.logger.Info("Job completed",
		slog.String("job_id", j.JobID),
		slog.String("type", j.Type),
		slog.Int("artifacts", len(result.OutputPaths)),
		slog.Duration("duration", elapsed),
	)
	if markErr := w.store.MarkDone(j.JobID, result.OutputPaths, result.Data); markErr != nil {
		w.logger.Error("Failed to record job completion",
			slog.String("job_id", j.JobID),
			slog.Any("error", markErr),
		)
	}
}

// execute resolves and runs the job's executor. A panicking executor is
// converted into an ordinary error so the caller always records a
// terminal state instead of leaving an orphaned in_progress job.
func (w *Worker) execute(ctx context.Context, j *job.Job) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()

	handler, err := w.registry.Resolve(j.Type)
	if err != nil {
		return nil, err
	}

	// Timeout policy belongs to the loop, not the queue; the per-file
	// lock was released at claim time, so a slow job blocks nobody.
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	result, err = handler(ctx, j)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &Result{}
	}
	return result, nil
}

// observeDepth refreshes the queue-depth gauges after a cycle.
func (w *Worker) observeDepth() {
	stats, err := w.store.Stats(time.Time{})
	if err != nil {
		w.logger.Warn("Failed to read queue stats",
			slog.Any("error", err),
		)
		return
	}
	metrics.ActiveDepth.WithLabelValues("queued").Set(float64(stats.Queued))
	metrics.ActiveDepth.WithLabelValues("deferred").Set(float64(stats.Deferred))
	metrics.ActiveDepth.WithLabelValues("in_progress").Set(float64(stats.InProgress))
	metrics.CorruptFiles.Set(float64(stats.Corrupt))
}
