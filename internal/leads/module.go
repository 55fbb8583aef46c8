package leads

import (
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/platform/validator"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	service *Service
	handler *Handler
}

// NewModule wires the leads module.
func NewModule(store Store, phone PhoneNormalizer, val *validator.Validator) *Module {
	svc := NewService(store, phone)
	return &Module{service: svc, handler: NewHandler(svc, val)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// Service returns the lead service for other modules.
func (m *Module) Service() *Service {
	return m.service
}

// RegisterRoutes mounts leads routes on the protected group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected)
}

var _ apphttp.Module = (*Module)(nil)
