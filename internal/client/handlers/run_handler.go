package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/bulkpin/internal/bulkpin"
)

// RunController starts and stops bulk pin runs.
type RunController interface {
	StartRun() error
	StopRun()
}

type RunHandler struct {
	ctrl RunController
}

func NewRunHandler(ctrl RunController) *RunHandler {
	return &RunHandler{ctrl: ctrl}
}

// Start begins a new run. The run outlives the request.
func (h *RunHandler) Start(ctx *gin.Context) {
	err := h.ctrl.StartRun()
	switch {
	case err == nil:
		ctx.PureJSON(http.StatusAccepted, StatusAPIResponse{Code: CodeOk})
	case errors.Is(err, bulkpin.ErrAlreadyRunning):
		AbortWithError(ctx, http.StatusConflict, ErrCodeAlreadyRunning, err)
	case errors.Is(err, bulkpin.ErrClosed):
		AbortWithError(ctx, http.StatusServiceUnavailable, ErrCodeManagerClosed, err)
	default:
		AbortWithError(ctx, http.StatusInternalServerError, ErrCodeUnknownError, err)
	}
}

// Stop cancels the current run, if any.
func (h *RunHandler) Stop(ctx *gin.Context) {
	h.ctrl.StopRun()
	ctx.PureJSON(http.StatusOK, StatusAPIResponse{Code: CodeOk})
}
