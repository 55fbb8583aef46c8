package leads

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

// Handler exposes leads and team members over HTTP.
type Handler struct {
	svc *Service
	val *validator.Validator
}

// NewHandler creates a leads Handler.
func NewHandler(svc *Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// CreateLeadRequest is the body for POST /leads.
type CreateLeadRequest struct {
	Name             string  `json:"name" validate:"required,notblank,max=200"`
	Email            string  `json:"email" validate:"omitempty,email,max=320"`
	Phone            string  `json:"phone" validate:"omitempty,max=40"`
	ChatHandle       string  `json:"chatHandle" validate:"omitempty,max=200"`
	Company          string  `json:"company" validate:"max=200"`
	Industry         string  `json:"industry" validate:"max=100"`
	CompanySize      int     `json:"companySize" validate:"gte=0"`
	EngagementRate   float64 `json:"engagementRate" validate:"gte=0,lte=1"`
	BudgetAmount     float64 `json:"budgetAmount" validate:"gte=0"`
	PreferredChannel string  `json:"preferredChannel" validate:"omitempty,oneof=email sms whatsapp chat form"`
}

// CreateMemberRequest is the body for POST /team-members.
type CreateMemberRequest struct {
	Team        string `json:"team" validate:"required,notblank,max=50"`
	Name        string `json:"name" validate:"required,notblank,max=200"`
	CurrentLoad int    `json:"currentLoad" validate:"gte=0"`
}

// RegisterRoutes mounts lead and team routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/leads", h.HandleCreateLead)
	rg.GET("/leads", h.HandleListLeads)
	rg.GET("/leads/:id", h.HandleGetLead)
	rg.POST("/team-members", h.HandleCreateMember)
	rg.GET("/team-members", h.HandleListMembers)
}

// HandleCreateLead stores a new lead.
// POST /api/v1/leads
func (h *Handler) HandleCreateLead(c *gin.Context) {
	var req CreateLeadRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	lead, err := h.svc.Create(c.Request.Context(), CreateLeadParams{
		Name:             req.Name,
		Email:            req.Email,
		Phone:            req.Phone,
		ChatHandle:       req.ChatHandle,
		Company:          req.Company,
		Industry:         req.Industry,
		CompanySize:      req.CompanySize,
		EngagementRate:   req.EngagementRate,
		BudgetAmount:     req.BudgetAmount,
		PreferredChannel: req.PreferredChannel,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, lead)
}

// HandleGetLead returns one lead.
// GET /api/v1/leads/:id
func (h *Handler) HandleGetLead(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	lead, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

// HandleListLeads pages through leads.
// GET /api/v1/leads?limit=&offset=
func (h *Handler) HandleListLeads(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, err := h.svc.List(c.Request.Context(), ListParams{Limit: limit, Offset: offset})
	if httpkit.HandleError(c, err) {
		return
	}
	if items == nil {
		items = []Lead{}
	}
	httpkit.OK(c, gin.H{"items": items})
}

// HandleCreateMember adds a team member.
// POST /api/v1/team-members
func (h *Handler) HandleCreateMember(c *gin.Context) {
	var req CreateMemberRequest
	if !h.bindAndValidate(c, &req) {
		return
	}
	member, err := h.svc.CreateMember(c.Request.Context(), CreateMemberParams{
		Team:        req.Team,
		Name:        req.Name,
		CurrentLoad: req.CurrentLoad,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, member)
}

// HandleListMembers lists a team's members.
// GET /api/v1/team-members?team=
func (h *Handler) HandleListMembers(c *gin.Context) {
	members, err := h.svc.Members(c.Request.Context(), c.Query("team"))
	if httpkit.HandleError(c, err) {
		return
	}
	if members == nil {
		members = []TeamMember{}
	}
	httpkit.OK(c, gin.H{"items": members})
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
