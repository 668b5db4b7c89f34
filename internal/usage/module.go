package usage

import (
	apphttp "growth_backend/internal/http"
	"growth_backend/platform/config"
	"growth_backend/platform/logger"
	"growth_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the usage module.
type Module struct {
	svc     *Service
	handler *Handler
}

// NewModule creates a new usage module with all dependencies wired.
func NewModule(pool *pgxpool.Pool, cfg config.UsageConfig, val *validator.Validator, log *logger.Logger) *Module {
	svc := New(NewRepository(pool), cfg, log)
	return &Module{svc: svc, handler: NewHandler(svc, val)}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "usage"
}

// Service returns the usage service for other modules.
func (m *Module) Service() *Service {
	return m.svc
}

// RegisterRoutes registers the module's routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/usage/:metric", m.handler.Get)
}

var _ apphttp.Module = (*Module)(nil)
