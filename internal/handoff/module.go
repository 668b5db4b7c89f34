// Package handoff provides human takeover tickets that suppress automated
// outreach for a lead until an operator resolves them.
package handoff

import (
	"growth_backend/internal/events"
	"growth_backend/internal/handoff/handler"
	"growth_backend/internal/handoff/repository"
	"growth_backend/internal/handoff/service"
	apphttp "growth_backend/internal/http"
	"growth_backend/platform/logger"
	"growth_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the handoff domain module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates a new handoff module with all dependencies wired.
func NewModule(pool *pgxpool.Pool, campaigns service.Campaigns, defaultSequence string, eventBus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	svc := service.New(repository.New(pool), campaigns, eventBus, defaultSequence, log)
	return &Module{
		handler: handler.New(svc, val),
		service: svc,
	}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "handoff"
}

// Service returns the handoff service.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes registers the module's routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/handoff/tickets"))
}

var _ apphttp.Module = (*Module)(nil)
