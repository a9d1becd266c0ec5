package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nightshift-io/nightshift/internal/api/dto"
	"github.com/nightshift-io/nightshift/internal/job"
	"github.com/nightshift-io/nightshift/internal/queue"
	"github.com/nightshift-io/nightshift/shared/metrics"
)

// retryAfterSeconds is returned with 503 responses so submitters back
// off instead of hammering a contended allocator.
const retryAfterSeconds = "1"

// CreateJob handles POST /api/v1/jobs
// Validates the submission and enqueues it for the next worker pass.
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.EnqueueJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	sub := queue.Submission{
		Type:     req.Type,
		Payload:  req.Payload,
		Priority: job.Priority(req.Priority),
	}
	if req.RunAt != nil {
		sub.RunAt = *req.RunAt
	}

	j, err := h.store.Enqueue(c.Request.Context(), sub)
	if err != nil {
		switch {
		case errors.Is(err, job.ErrEmptyType),
			errors.Is(err, job.ErrEmptyPayload),
			errors.Is(err, job.ErrInvalidPriority):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
		case errors.Is(err, queue.ErrQueueBusy):
			h.logger.Warn("Enqueue rejected, allocator busy",
				slog.String("type", req.Type),
			)
			c.Header("Retry-After", retryAfterSeconds)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Queue is busy, retry later",
			})
		default:
			h.logger.Error("Failed to enqueue job",
				slog.String("type", req.Type),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to enqueue job",
			})
		}
		return
	}

	metrics.JobsEnqueued.WithLabelValues(j.Type, string(j.Priority)).Inc()
	h.logger.Info("Job accepted",
		slog.String("job_id", j.JobID),
		slog.String("type", j.Type),
		slog.String("priority", string(j.Priority)),
	)

	c.JSON(http.StatusAccepted, dto.FromJob(j))
}

// GetJob handles GET /api/v1/jobs/:job_id
// Looks the job up in the active directory first, then the archive.
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	j, err := h.store.Get(jobID)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, dto.FromJob(j))
}

// ListJobs handles GET /api/v1/jobs
// Lists active jobs (or archived ones with archived=true), optionally
// filtered by status and type.
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.Status != "" && !job.Status(req.Status).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unknown status: " + req.Status,
		})
		return
	}
	if req.Limit < 0 {
		req.Limit = 0
	}

	jobs, err := h.store.List(queue.ListOptions{
		Status:   job.Status(req.Status),
		Type:     req.Type,
		Archived: req.Archived,
		Limit:    req.Limit,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	resp := dto.ListJobsResponse{
		Jobs:  make([]dto.JobDTO, len(jobs)),
		Count: len(jobs),
	}
	for i, j := range jobs {
		resp.Jobs[i] = dto.FromJob(j)
	}

	c.JSON(http.StatusOK, resp)
}

// QueueStats handles GET /api/v1/queue/stats
// Reports active depth by state plus archive and corrupt counts, and
// refreshes the depth gauges on the way out.
func (h *JobHandler) QueueStats(c *gin.Context) {
	stats, err := h.store.Stats(time.Time{})
	if err != nil {
		h.logger.Error("Failed to read queue stats", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read queue stats",
		})
		return
	}

	metrics.ActiveDepth.WithLabelValues("queued").Set(float64(stats.Queued))
	metrics.ActiveDepth.WithLabelValues("deferred").Set(float64(stats.Deferred))
	metrics.ActiveDepth.WithLabelValues("in_progress").Set(float64(stats.InProgress))
	metrics.CorruptFiles.Set(float64(stats.Corrupt))

	c.JSON(http.StatusOK, stats)
}
