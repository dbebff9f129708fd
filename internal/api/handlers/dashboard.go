package handlers

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmagar/editcount/internal/api/middleware"
	"github.com/jmagar/editcount/internal/dashboard"
	"github.com/jmagar/editcount/internal/models"
	"github.com/jmagar/editcount/internal/services"
	"go.uber.org/zap"
)

const (
	EventCounts = "counts"
	EventPing   = "ping"
)

// SnapshotSource provides the latest scan result
type SnapshotSource interface {
	Snapshot() (models.Snapshot, bool)
}

type DashboardHandler struct {
	Snapshots   SnapshotSource
	Broadcaster *services.Broadcaster
	Title       string
	EventsURL   string
	// KeepAlive is the interval between ping events on idle streams
	KeepAlive time.Duration
	Logger    *zap.Logger
}

type CountsResponse struct {
	Success bool            `json:"success"`
	Scanned bool            `json:"scanned"`
	Data    models.Snapshot `json:"data"`
}

func NewDashboardHandler(snapshots SnapshotSource, broadcaster *services.Broadcaster, title string, logger *zap.Logger) *DashboardHandler {
	if logger == nil {
		logger = zap.L()
	}

	return &DashboardHandler{
		Snapshots:   snapshots,
		Broadcaster: broadcaster,
		Title:       title,
		EventsURL:   "/api/v1/events",
		KeepAlive:   30 * time.Second,
		Logger:      logger,
	}
}

// Index godoc
// @Summary Dashboard page
// @Description Renders the progress dashboard for the latest scan
// @Tags dashboard
// @Produce html
// @Success 200 {string} string "HTML page"
// @Router / [get]
func (h *DashboardHandler) Index(c *gin.Context) {
	snapshot, ok := h.Snapshots.Snapshot()

	opts := dashboard.PageOptions{
		Title:     h.Title,
		Now:       time.Now(),
		EventsURL: h.EventsURL,
	}
	if ok {
		opts.ScannedAt = snapshot.ScannedAt
	}

	var buf bytes.Buffer
	if _, err := dashboard.WritePage(&buf, snapshot.Groups, opts); err != nil {
		h.Logger.Error("Failed to render dashboard", zap.Error(err))
		middleware.AbortWithError(c, http.StatusInternalServerError, "RENDER_FAILED", "Failed to render dashboard")
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// GetCounts godoc
// @Summary Current counts
// @Description Returns every album with its edited, deleted and total counts plus the overall totals
// @Tags counts
// @Produce json
// @Success 200 {object} CountsResponse
// @Router /counts [get]
func (h *DashboardHandler) GetCounts(c *gin.Context) {
	snapshot, ok := h.Snapshots.Snapshot()
	if !ok {
		snapshot = models.NewSnapshot(nil, time.Time{})
	}

	c.JSON(http.StatusOK, CountsResponse{
		Success: true,
		Scanned: ok,
		Data:    snapshot,
	})
}

// Events godoc
// @Summary Count updates
// @Description Streams a "counts" server-sent event after every successful scan
// @Tags counts
// @Produce text/event-stream
// @Success 200 {object} models.Snapshot
// @Router /events [get]
func (h *DashboardHandler) Events(c *gin.Context) {
	updates, cancel := h.Broadcaster.Subscribe()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	keepAlive := time.NewTicker(h.KeepAlive)
	defer keepAlive.Stop()

	// Flush headers so clients see the stream open before the first update
	c.Status(http.StatusOK)
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case snapshot, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent(EventCounts, snapshot)
			return true
		case now := <-keepAlive.C:
			c.SSEvent(EventPing, now.UTC().Format(time.RFC3339))
			return true
		}
	})
}
