package dispatch

import (
	apphttp "leadflow_backend/internal/http"
)

// Module mounts the dispatch admin routes.
type Module struct {
	handler *Handler
}

// NewModule wires the dispatch module.
func NewModule(sweeper *Sweeper, queue SweepQueue) *Module {
	return &Module{handler: NewHandler(sweeper, queue)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "dispatch"
}

// RegisterRoutes mounts dispatch routes on the admin group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Admin)
}

var _ apphttp.Module = (*Module)(nil)
