package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmagar/editcount/internal/api/middleware"
	"github.com/jmagar/editcount/internal/models"
	"github.com/jmagar/editcount/internal/services"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

type ScanHandler struct {
	ScanService *services.ScanService
	JobManager  *models.JobManager
	Logger      *zap.Logger
}

type ScanResponse struct {
	Success        bool   `json:"success"`
	JobID          string `json:"job_id"`
	Status         string `json:"status"`
	Message        string `json:"message"`
	AlreadyRunning bool   `json:"already_running"`
}

type JobStatusResponse struct {
	JobID       string      `json:"job_id"`
	Status      string      `json:"status"`
	Trigger     string      `json:"trigger,omitempty"`
	Progress    int         `json:"progress"`
	Message     string      `json:"message"`
	Error       string      `json:"error,omitempty"`
	Result      interface{} `json:"result,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	DurationMs  int64       `json:"duration_ms,omitempty"`
}

func NewScanHandler(scanService *services.ScanService, logger *zap.Logger) *ScanHandler {
	if logger == nil {
		logger = zap.L()
	}

	return &ScanHandler{
		ScanService: scanService,
		JobManager:  scanService.JobManager,
		Logger:      logger,
	}
}

func newJobStatusResponse(job *models.Job) JobStatusResponse {
	return JobStatusResponse{
		JobID:       job.ID,
		Status:      string(job.Status),
		Trigger:     job.Trigger,
		Progress:    job.Progress,
		Message:     job.Message,
		Error:       job.Error,
		Result:      job.Result,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		DurationMs:  job.Duration().Milliseconds(),
	}
}

// parseLimit reads ?limit=, falling back to the default when absent or out of range
func parseLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit < 1 || limit > maxListLimit {
		return defaultListLimit
	}
	return limit
}

// StartScan godoc
// @Summary Start a scan
// @Description Starts a background scan. If one is already pending or running its job is returned instead.
// @Tags scan
// @Produce json
// @Security BearerAuth
// @Success 202 {object} ScanResponse "Scan started"
// @Success 200 {object} ScanResponse "Scan already in progress"
// @Failure 401 {object} map[string]interface{}
// @Failure 429 {object} map[string]interface{}
// @Router /scan [post]
func (h *ScanHandler) StartScan(c *gin.Context) {
	job, started := h.ScanService.StartScan(models.TriggerAPI)

	if !started {
		c.JSON(http.StatusOK, ScanResponse{
			Success:        true,
			JobID:          job.ID,
			Status:         string(job.Status),
			Message:        "Scan already in progress",
			AlreadyRunning: true,
		})
		return
	}

	h.Logger.Info("Scan requested", zap.String("job_id", job.ID), zap.String("request_id", c.GetString(middleware.KeyRequestID)))

	c.JSON(http.StatusAccepted, ScanResponse{
		Success: true,
		JobID:   job.ID,
		Status:  string(job.Status),
		Message: "Scan initiated",
	})
}

// GetScanStatus godoc
// @Summary Scan job status
// @Tags scan
// @Produce json
// @Security BearerAuth
// @Param job_id path string true "Job ID"
// @Success 200 {object} JobStatusResponse
// @Failure 404 {object} map[string]interface{}
// @Router /scan/{job_id} [get]
func (h *ScanHandler) GetScanStatus(c *gin.Context) {
	job, exists := h.JobManager.GetJob(c.Param("job_id"))
	if !exists || job.Type != models.JobTypeScan {
		middleware.AbortWithError(c, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job":    newJobStatusResponse(job),
		"status": string(job.Status),
	})
}

// ListScanJobs godoc
// @Summary List scan jobs
// @Tags scan
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum number of jobs" default(10)
// @Param status query string false "Filter by status"
// @Success 200 {object} map[string]interface{}
// @Router /scan/jobs [get]
func (h *ScanHandler) ListScanJobs(c *gin.Context) {
	limit := parseLimit(c)
	statusFilter := c.Query("status")

	jobs := []JobStatusResponse{}
	for _, job := range h.JobManager.ListJobs() {
		if job.Type != models.JobTypeScan {
			continue
		}
		if statusFilter != "" && string(job.Status) != statusFilter {
			continue
		}
		jobs = append(jobs, newJobStatusResponse(job))
	}

	total := len(jobs)
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs": jobs,
		"pagination": gin.H{
			"total": total,
			"limit": limit,
		},
	})
}

// CancelScan godoc
// @Summary Cancel a scan job
// @Tags scan
// @Produce json
// @Security BearerAuth
// @Param job_id path string true "Job ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /scan/{job_id} [delete]
func (h *ScanHandler) CancelScan(c *gin.Context) {
	jobID := c.Param("job_id")

	err := h.JobManager.CancelJob(jobID)
	switch {
	case errors.Is(err, models.ErrJobNotFound):
		middleware.AbortWithError(c, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found")
		return
	case errors.Is(err, models.ErrJobNotActive):
		middleware.AbortWithError(c, http.StatusBadRequest, "JOB_NOT_ACTIVE", "Job cannot be cancelled (not running or pending)")
		return
	case err != nil:
		h.Logger.Error("Failed to cancel job", zap.String("job_id", jobID), zap.Error(err))
		middleware.AbortWithError(c, http.StatusInternalServerError, "CANCEL_FAILED", "Failed to cancel job")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Job cancelled successfully",
	})
}

// ListScanRuns godoc
// @Summary Scan history
// @Description Lists persisted scan runs, newest first
// @Tags scan
// @Produce json
// @Param limit query int false "Maximum number of runs" default(10)
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /scans [get]
func (h *ScanHandler) ListScanRuns(c *gin.Context) {
	limit := parseLimit(c)

	runs, err := h.ScanService.RecentScans(c.Request.Context(), limit)
	if err != nil {
		h.Logger.Error("Failed to list scan runs", zap.Error(err))
		middleware.AbortWithError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to list scan runs")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"scans": runs,
		"pagination": gin.H{
			"limit": limit,
		},
	})
}
