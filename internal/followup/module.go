package followup

import (
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/platform/validator"
)

// Module is the follow-up bounded context implementing http.Module.
type Module struct {
	service *Service
	handler *Handler
}

// NewModule wires the follow-up module. queue may be nil, in which case
// sequences always materialize inline.
func NewModule(svc *Service, queue MaterializeQueue, val *validator.Validator) *Module {
	return &Module{service: svc, handler: NewHandler(svc, queue, val)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "followup"
}

// Service returns the follow-up service.
func (m *Module) Service() *Service {
	return m.service
}

// RegisterRoutes mounts follow-up routes on the protected group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected)
}

var _ apphttp.Module = (*Module)(nil)
