package qualification

import (
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/platform/validator"
)

// Module is the qualification bounded context implementing http.Module.
type Module struct {
	service *Service
	handler *Handler
}

// NewModule wires the qualification module.
func NewModule(d Deps, val *validator.Validator) *Module {
	svc := NewService(d)
	return &Module{service: svc, handler: NewHandler(svc, val)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "qualification"
}

// Service returns the qualification service for other modules.
func (m *Module) Service() *Service {
	return m.service
}

// RegisterRoutes mounts qualification routes on the protected group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected)
}

var _ apphttp.Module = (*Module)(nil)
