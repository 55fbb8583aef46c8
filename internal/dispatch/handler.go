package dispatch

import (
	"context"
	"time"

	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

const manualSweepWindow = 30 * time.Second

// SweepQueue hands manual sweeps to background workers.
type SweepQueue interface {
	EnqueueSweep(ctx context.Context, window time.Duration) error
}

// Handler exposes the sweep for manual runs.
type Handler struct {
	sweeper *Sweeper
	queue   SweepQueue
}

// NewHandler creates a dispatch Handler. With a nil queue sweeps run inline.
func NewHandler(sweeper *Sweeper, queue SweepQueue) *Handler {
	return &Handler{sweeper: sweeper, queue: queue}
}

type statusResponse struct {
	State string `json:"state"`
}

type queuedResponse struct {
	Queued bool `json:"queued"`
}

// RegisterRoutes mounts dispatch routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/follow-ups/send/pending", h.HandleSendPending)
	rg.GET("/dispatch/status", h.HandleStatus)
}

// HandleSendPending triggers a sweep. Queued sweeps answer 202; inline sweeps
// return the summary, which reports skipped when the lease is held.
// POST /api/v1/admin/follow-ups/send/pending
func (h *Handler) HandleSendPending(c *gin.Context) {
	if h.queue != nil {
		if err := h.queue.EnqueueSweep(c.Request.Context(), manualSweepWindow); err != nil {
			httpkit.HandleError(c, apperr.Transient("enqueue sweep", err))
			return
		}
		httpkit.Accepted(c, queuedResponse{Queued: true})
		return
	}

	summary, err := h.sweeper.RunSweep(c.Request.Context(), time.Now().UTC())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, summary)
}

// HandleStatus reports the sweep phase of this process.
// GET /api/v1/admin/dispatch/status
func (h *Handler) HandleStatus(c *gin.Context) {
	httpkit.OK(c, statusResponse{State: h.sweeper.State().String()})
}
