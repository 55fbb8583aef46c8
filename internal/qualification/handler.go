package qualification

import (
	"net/http"

	"leadflow_backend/internal/textgen"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	errInvalidRequest = "invalid request body"
	errValidation     = "validation error"
	errInvalidLeadID  = "invalid lead id"
)

// Handler exposes qualification over HTTP.
type Handler struct {
	svc *Service
	val *validator.Validator
}

// NewHandler creates a qualification Handler.
func NewHandler(svc *Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// QualifyRequest carries raw signals. Out-of-range values are clamped by
// the scorer rather than rejected.
type QualifyRequest struct {
	AIFitScore       *float64 `json:"aiFitScore"`
	TimelineText     string   `json:"timelineText" validate:"max=500"`
	BudgetText       string   `json:"budgetText" validate:"max=500"`
	IntentScore      *float64 `json:"intentScore"`
	CompanySize      int      `json:"companySize"`
	EngagementRate   float64  `json:"engagementRate"`
	BudgetAmount     float64  `json:"budgetAmount"`
	Industry         string   `json:"industry" validate:"max=100"`
	HasEmail         bool     `json:"hasEmail"`
	HasPhone         bool     `json:"hasPhone"`
	RecommendedSteps []string `json:"recommendedSteps" validate:"max=20,dive,max=300"`
}

// ConversationRequest carries a transcript for model-assisted qualification.
type ConversationRequest struct {
	Conversation []ConversationTurn `json:"conversation" validate:"required,min=1,max=200,dive"`
}

// ConversationTurn is one transcript message.
type ConversationTurn struct {
	Role    string `json:"role" validate:"required,oneof=user assistant agent customer"`
	Content string `json:"content" validate:"required,max=4000"`
}

// RegisterRoutes mounts qualification routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/leads/:id/qualify", h.HandleQualify)
	rg.POST("/leads/:id/qualify/profile", h.HandleQualifyProfile)
	rg.POST("/leads/:id/qualify/conversation", h.HandleQualifyConversation)
	rg.GET("/leads/:id/qualification", h.HandleGet)
}

// HandleQualify scores a lead from explicit signals.
// POST /api/v1/leads/:id/qualify
func (h *Handler) HandleQualify(c *gin.Context) {
	leadID, ok := parseLeadID(c)
	if !ok {
		return
	}
	var req QualifyRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	result, err := h.svc.Qualify(c.Request.Context(), leadID, LeadSignal{
		AIFitScore:       req.AIFitScore,
		TimelineText:     req.TimelineText,
		BudgetText:       req.BudgetText,
		IntentScore:      req.IntentScore,
		CompanySize:      req.CompanySize,
		EngagementRate:   req.EngagementRate,
		BudgetAmount:     req.BudgetAmount,
		Industry:         req.Industry,
		HasEmail:         req.HasEmail,
		HasPhone:         req.HasPhone,
		RecommendedSteps: req.RecommendedSteps,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// HandleQualifyProfile scores a lead from its stored profile.
// POST /api/v1/leads/:id/qualify/profile
func (h *Handler) HandleQualifyProfile(c *gin.Context) {
	leadID, ok := parseLeadID(c)
	if !ok {
		return
	}
	result, err := h.svc.QualifyProfile(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// HandleQualifyConversation scores a lead from a conversation transcript.
// POST /api/v1/leads/:id/qualify/conversation
func (h *Handler) HandleQualifyConversation(c *gin.Context) {
	leadID, ok := parseLeadID(c)
	if !ok {
		return
	}
	var req ConversationRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	turns := make([]textgen.Turn, 0, len(req.Conversation))
	for _, t := range req.Conversation {
		turns = append(turns, textgen.Turn{Role: t.Role, Content: t.Content})
	}
	result, err := h.svc.QualifyConversation(c.Request.Context(), leadID, turns)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// HandleGet returns the latest qualification.
// GET /api/v1/leads/:id/qualification
func (h *Handler) HandleGet(c *gin.Context) {
	leadID, ok := parseLeadID(c)
	if !ok {
		return
	}
	result, err := h.svc.Get(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
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

func parseLeadID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidLeadID, nil)
		return uuid.UUID{}, false
	}
	return id, true
}
