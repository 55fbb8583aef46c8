package followup

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	errInvalidRequest = "invalid request body"
	errValidation     = "validation error"
	errInvalidID      = "invalid id"
)

// MaterializeQueue defers materialization to a background worker that
// retries the whole sequence as one unit.
type MaterializeQueue interface {
	EnqueueMaterialize(ctx context.Context, p MaterializeParams) error
}

// Handler exposes follow-up scheduling over HTTP.
type Handler struct {
	svc   *Service
	queue MaterializeQueue
	val   *validator.Validator
}

// NewHandler creates a follow-up Handler. queue may be nil.
func NewHandler(svc *Service, queue MaterializeQueue, val *validator.Validator) *Handler {
	return &Handler{svc: svc, queue: queue, val: val}
}

type MaterializeRequest struct {
	SequenceType string     `json:"sequenceType" validate:"required,max=50"`
	Channel      string     `json:"channel" validate:"omitempty,oneof=email sms whatsapp chat form"`
	BaseTime     *time.Time `json:"baseTime"`
	Async        bool       `json:"async"`
}

type ScheduleRequest struct {
	LeadID      uuid.UUID `json:"leadId" validate:"required"`
	Type        string    `json:"type" validate:"required,max=50"`
	ScheduledAt time.Time `json:"scheduledAt" validate:"required"`
	Content     string    `json:"content" validate:"max=4000"`
	Channel     string    `json:"channel" validate:"omitempty,oneof=email sms whatsapp chat form"`
}

type MaterializeResponse struct {
	SequenceType string `json:"sequenceType"`
	Created      int    `json:"followUpsCreated"`
	Queued       bool   `json:"queued,omitempty"`
}

// RegisterRoutes mounts follow-up routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/sequences", h.HandleListSequences)
	rg.POST("/leads/:id/sequences", h.HandleMaterialize)
	rg.POST("/follow-ups", h.HandleSchedule)
	rg.GET("/follow-ups", h.HandleList)
	rg.GET("/follow-ups/:id", h.HandleGet)
	rg.POST("/follow-ups/:id/cancel", h.HandleCancel)
}

// HandleListSequences returns the sequence templates.
// GET /api/v1/sequences
func (h *Handler) HandleListSequences(c *gin.Context) {
	httpkit.OK(c, Definitions())
}

// HandleMaterialize schedules a whole sequence for a lead.
// POST /api/v1/leads/:id/sequences
func (h *Handler) HandleMaterialize(c *gin.Context) {
	leadID, ok := parseID(c)
	if !ok {
		return
	}
	var req MaterializeRequest
	if !h.bindAndValidate(c, &req) {
		return
	}
	params := MaterializeParams{SequenceType: req.SequenceType, LeadID: leadID, Channel: req.Channel}
	if req.BaseTime != nil {
		params.BaseTime = req.BaseTime.UTC()
	}

	if req.Async && h.queue != nil {
		if _, err := Lookup(req.SequenceType); httpkit.HandleError(c, err) {
			return
		}
		if err := h.queue.EnqueueMaterialize(c.Request.Context(), params); err != nil {
			httpkit.HandleError(c, apperr.Transient("enqueue sequence", err))
			return
		}
		httpkit.Accepted(c, MaterializeResponse{SequenceType: req.SequenceType, Queued: true})
		return
	}

	count, err := h.svc.Materialize(c.Request.Context(), params)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, MaterializeResponse{SequenceType: req.SequenceType, Created: count})
}

// HandleSchedule stores a single follow-up.
// POST /api/v1/follow-ups
func (h *Handler) HandleSchedule(c *gin.Context) {
	var req ScheduleRequest
	if !h.bindAndValidate(c, &req) {
		return
	}
	e, err := h.svc.Schedule(c.Request.Context(), ScheduleParams{
		LeadID:      req.LeadID,
		Type:        req.Type,
		ScheduledAt: req.ScheduledAt,
		Content:     req.Content,
		Channel:     req.Channel,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, e)
}

// HandleList lists follow-ups by lead, sequence type and status.
// GET /api/v1/follow-ups
func (h *Handler) HandleList(c *gin.Context) {
	filter := ListFilter{SequenceType: c.Query("sequenceType")}
	if raw := c.Query("leadId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, errInvalidID, nil)
			return
		}
		filter.LeadID = &id
	}
	if raw := c.Query("status"); raw != "" {
		status, ok := ParseStatus(raw)
		if !ok {
			httpkit.Error(c, http.StatusBadRequest, errValidation, "unknown status")
			return
		}
		filter.Status = status
	}
	filter.Limit, _ = strconv.Atoi(c.Query("limit"))

	list, err := h.svc.List(c.Request.Context(), filter)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, list)
}

// HandleGet returns one follow-up.
// GET /api/v1/follow-ups/:id
func (h *Handler) HandleGet(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	e, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, e)
}

// HandleCancel cancels a pending follow-up.
// POST /api/v1/follow-ups/:id/cancel
func (h *Handler) HandleCancel(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	e, err := h.svc.Cancel(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, e)
}

func (h *Handler) bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, err.Error())
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation, err.Error())
		return false
	}
	return true
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidID, nil)
		return uuid.UUID{}, false
	}
	return id, true
}
