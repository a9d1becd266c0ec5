package metrics

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	// JobsEnqueued counts accepted submissions by type and priority.
	JobsEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nightshift_jobs_enqueued_total",
		Help: "Total number of jobs accepted into the queue",
	}, []string{"type", "priority"})

	// JobsClaimed counts queued-to-in_progress transitions made by this
	// process.
	JobsClaimed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nightshift_jobs_claimed_total",
		Help: "Total number of jobs claimed by this worker",
	})

	// JobsProcessed counts terminal outcomes by type and status
	// (completed or failed).
	JobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nightshift_jobs_processed_total",
		Help: "Total number of jobs finished, by terminal status",
	}, []string{"type", "status"})

	// JobDuration observes executor wall time per job type.
	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nightshift_job_duration_seconds",
		Help:    "Duration of job execution",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"type"})

	// ActiveDepth tracks the active directory by state: queued, deferred
	// (future run_at), in_progress.
	ActiveDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nightshift_active_jobs",
		Help: "Jobs currently in the active directory, by state",
	}, []string{"state"})

	// CorruptFiles tracks active-directory files that fail to parse and
	// are awaiting manual inspection.
	CorruptFiles = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nightshift_corrupt_files",
		Help: "Unparseable job files left in the active directory",
	})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsEnqueued,
			JobsClaimed,
			JobsProcessed,
			JobDuration,
			ActiveDepth,
			CorruptFiles,
		)
	})
	return promhttp.Handler()
}

// StartServer runs an HTTP server exposing Prometheus metrics. Used by
// the worker service, which has no API router to mount the handler on.
func StartServer(addr string, logger *slog.Logger) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", Handler())
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("Metrics server failed",
				slog.String("addr", addr),
				slog.Any("error", err),
			)
		}
	}()
}
