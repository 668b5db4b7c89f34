// Package outreach provides the outreach run scheduler: the run store, the
// due-run processor and campaign sender runs.
package outreach

import (
	"context"

	"growth_backend/internal/events"
	apphttp "growth_backend/internal/http"
	"growth_backend/internal/outreach/domain"
	"growth_backend/internal/outreach/handler"
	"growth_backend/internal/outreach/repository"
	"growth_backend/internal/outreach/sequence"
	"growth_backend/internal/outreach/service"
	"growth_backend/platform/config"
	"growth_backend/platform/logger"
	"growth_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the outreach domain module.
type Module struct {
	handler   *handler.Handler
	runs      *service.RunStore
	processor *service.Processor
	campaign  *service.CampaignRunner
}

// NewModule creates a new outreach module with all dependencies wired. The
// sequence catalog is loaded from the configured file or the embedded
// default.
func NewModule(pool *pgxpool.Pool, cfg config.OutreachConfig, directory service.Directory, sender service.Sender, eventBus events.Bus, val *validator.Validator, log *logger.Logger) (*Module, error) {
	catalog, err := sequence.Load(cfg.GetOutreachSequencesFile())
	if err != nil {
		return nil, err
	}

	repo := repository.New(pool)
	runs := service.NewRunStore(repo, directory, cfg.GetDefaultSequenceKey(), log)
	processor := service.NewProcessor(repo, catalog, directory, sender, service.ProcessorSettings{
		StepDelay:  cfg.GetOutreachStepDelay(),
		ClaimLease: cfg.GetOutreachClaimLease(),
		BatchLimit: cfg.GetOutreachBatchLimit(),
	}, eventBus, log)
	campaign := service.NewCampaignRunner(runs, processor, directory, log)

	return &Module{
		handler:   handler.New(runs, campaign, val),
		runs:      runs,
		processor: processor,
		campaign:  campaign,
	}, nil
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "outreach"
}

// Runs returns the run store service.
func (m *Module) Runs() *service.RunStore { return m.runs }

// Processor returns the due-run processor.
func (m *Module) Processor() *service.Processor { return m.processor }

// SetUsageMeter enables usage consumption per send.
func (m *Module) SetUsageMeter(usage service.UsageMeter) {
	m.processor.SetUsageMeter(usage)
}

// StartOutreach creates the lead's run unless one exists. It reports whether
// a new run was created.
func (m *Module) StartOutreach(ctx context.Context, tenantID, campaignID, leadID uuid.UUID) (bool, error) {
	_, outcome, err := m.runs.CreateOrReset(ctx, tenantID, campaignID, leadID, false)
	if err != nil {
		return false, err
	}
	return outcome == domain.OutcomeCreated, nil
}

// RegisterRoutes registers the module's routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected)
}

var _ apphttp.Module = (*Module)(nil)
