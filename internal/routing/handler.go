package routing

import (
	"net/http"
	"strconv"

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

// Handler exposes routing and task lifecycle over HTTP.
type Handler struct {
	svc *Service
	val *validator.Validator
}

// NewHandler creates a routing Handler.
func NewHandler(svc *Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

type RouteContentRequest struct {
	Content string `json:"content" validate:"required,max=10000"`
}

type RouteTaskRequest struct {
	LeadID  *uuid.UUID `json:"leadId"`
	Content string     `json:"content" validate:"required,max=10000"`
	Title   string     `json:"title" validate:"max=200"`
}

type RouteLeadRequest struct {
	Team string `json:"team" validate:"max=50"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=open in_progress completed closed"`
}

type AssignRequest struct {
	MemberID uuid.UUID `json:"memberId" validate:"required"`
}

// RegisterRoutes mounts routing routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/routing/preview", h.HandlePreview)
	rg.POST("/tasks/route", h.HandleRouteTask)
	rg.GET("/tasks", h.HandleListTasks)
	rg.GET("/tasks/:id", h.HandleGetTask)
	rg.PATCH("/tasks/:id/status", h.HandleUpdateStatus)
	rg.PUT("/tasks/:id/assign", h.HandleAssign)
	rg.POST("/leads/:id/route", h.HandleRouteLead)
	rg.GET("/leads/:id/routing-decisions", h.HandleListDecisions)
}

// HandlePreview returns the route for content without creating a task.
// POST /api/v1/routing/preview
func (h *Handler) HandlePreview(c *gin.Context) {
	var req RouteContentRequest
	if !h.bindAndValidate(c, &req) {
		return
	}
	httpkit.OK(c, h.svc.RouteContent(req.Content))
}

// HandleRouteTask creates a task for the team the content routes to.
// POST /api/v1/tasks/route
func (h *Handler) HandleRouteTask(c *gin.Context) {
	var req RouteTaskRequest
	if !h.bindAndValidate(c, &req) {
		return
	}
	task, err := h.svc.RouteTask(c.Request.Context(), RouteTaskParams{
		LeadID:  req.LeadID,
		Content: req.Content,
		Title:   req.Title,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, task)
}

// HandleListTasks lists tasks filtered by lead, team and status.
// GET /api/v1/tasks
func (h *Handler) HandleListTasks(c *gin.Context) {
	filter := TaskFilter{Team: c.Query("team")}
	if raw := c.Query("leadId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, errInvalidID, nil)
			return
		}
		filter.LeadID = &id
	}
	if raw := c.Query("status"); raw != "" {
		status, ok := ParseTaskStatus(raw)
		if !ok {
			httpkit.Error(c, http.StatusBadRequest, errValidation, "unknown status")
			return
		}
		filter.Status = status
	}
	filter.Limit, _ = strconv.Atoi(c.Query("limit"))
	filter.Offset, _ = strconv.Atoi(c.Query("offset"))

	tasks, err := h.svc.ListTasks(c.Request.Context(), filter)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, tasks)
}

// HandleGetTask returns one task.
// GET /api/v1/tasks/:id
func (h *Handler) HandleGetTask(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	task, err := h.svc.GetTask(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, task)
}

// HandleUpdateStatus moves a task along its lifecycle.
// PATCH /api/v1/tasks/:id/status
func (h *Handler) HandleUpdateStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if !h.bindAndValidate(c, &req) {
		return
	}
	status, _ := ParseTaskStatus(req.Status)
	task, err := h.svc.UpdateStatus(c.Request.Context(), id, status)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, task)
}

// HandleAssign sets the task assignee.
// PUT /api/v1/tasks/:id/assign
func (h *Handler) HandleAssign(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req AssignRequest
	if !h.bindAndValidate(c, &req) {
		return
	}
	task, err := h.svc.AssignTask(c.Request.Context(), id, req.MemberID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, task)
}

// HandleRouteLead assigns a lead to the least-loaded member.
// POST /api/v1/leads/:id/route
func (h *Handler) HandleRouteLead(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req RouteLeadRequest
	// The body is optional.
	if c.Request.ContentLength > 0 && !h.bindAndValidate(c, &req) {
		return
	}
	decision, err := h.svc.RouteToMember(c.Request.Context(), id, req.Team)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, decision)
}

// HandleListDecisions returns a lead's routing history.
// GET /api/v1/leads/:id/routing-decisions
func (h *Handler) HandleListDecisions(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	decisions, err := h.svc.Decisions(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, decisions)
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
