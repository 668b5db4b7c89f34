package cron

import (
	apphttp "growth_backend/internal/http"
	"growth_backend/platform/validator"
)

// Module serves the cron-authenticated triggers.
type Module struct {
	handler *Handler
	cycle   *SenderCycle
}

// NewModule creates the cron module.
func NewModule(cycle *SenderCycle, rollup RollupRunner, val *validator.Validator) *Module {
	return &Module{handler: NewHandler(cycle, rollup, val), cycle: cycle}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "cron"
}

// Cycle returns the sender cycle.
func (m *Module) Cycle() *SenderCycle {
	return m.cycle
}

// RegisterRoutes registers the module's routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Cron)
}

var _ apphttp.Module = (*Module)(nil)
