package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/openmined/bulkpin/internal/version"
)

// StatusHandler handles status-related endpoints
type StatusHandler struct {
	tracker *ProgressTracker
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(tracker *ProgressTracker) *StatusHandler {
	return &StatusHandler{
		tracker: tracker,
	}
}

// Status returns the status of the service and the progress of the bulk pin run
func (h *StatusHandler) Status(ctx *gin.Context) {
	// this is unlikely to happen, but just in case
	if h.tracker == nil {
		AbortWithError(ctx, http.StatusServiceUnavailable, ErrCodeTrackerNotReady, errors.New("progress tracker not initialized"))
		return
	}

	progress, updatedAt, dropped := h.tracker.Latest()

	run := &RunInfo{
		Progress:           progress,
		Percent:            progress.Percent(),
		Dropped:            dropped,
		PinnedBytesHuman:   humanize.IBytes(uint64(max(progress.PinnedBytes, 0))),
		BytesToPinHuman:    humanize.IBytes(uint64(max(progress.BytesToPin, 0))),
		RequiredSpaceHuman: humanize.IBytes(uint64(max(progress.RequiredSpace, 0))),
		AvailableHuman:     humanize.IBytes(uint64(max(progress.AvailableDiskSpace, 0))),
	}
	if !updatedAt.IsZero() {
		run.UpdatedAt = updatedAt.UTC().Format(time.RFC3339)
	}

	ctx.PureJSON(http.StatusOK, &StatusResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   version.Version,
		Revision:  version.Revision,
		BuildDate: version.BuildDate,
		Run:       run,
	})
}

// Healthz is a bare liveness probe.
func Healthz(ctx *gin.Context) {
	ctx.String(http.StatusOK, "ok")
}
