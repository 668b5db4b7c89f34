// Package audience provides the audience signal engine: event ingestion,
// weighted segmentation, tier-transition actions and the global rollup.
package audience

import (
	"context"
	"fmt"

	"growth_backend/internal/audience/domain"
	"growth_backend/internal/audience/handler"
	"growth_backend/internal/audience/repository"
	"growth_backend/internal/audience/service"
	"growth_backend/internal/events"
	apphttp "growth_backend/internal/http"
	"growth_backend/platform/config"
	"growth_backend/platform/logger"
	"growth_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the audience domain module.
type Module struct {
	handler  *handler.Handler
	ingestor *service.Ingestor
	builder  *service.SegmentBuilder
	runner   *service.ActionRunner
	rollup   *service.Rollup
	log      *logger.Logger
}

// Config combines the settings the module reads.
type Config interface {
	config.AudienceConfig
	config.PhoneConfig
}

// NewModule creates a new audience module with all dependencies wired.
func NewModule(pool *pgxpool.Pool, cfg Config, eventBus events.Bus, val *validator.Validator, log *logger.Logger) (*Module, error) {
	return newModule(repository.New(pool), cfg, eventBus, val, log)
}

func newModule(repo repository.Repository, cfg Config, eventBus events.Bus, val *validator.Validator, log *logger.Logger) (*Module, error) {
	t := cfg.GetTierThresholds()
	tiers, err := domain.NewTiers(t.Cold, t.Warm, t.Hot)
	if err != nil {
		return nil, err
	}
	outreachTiers, err := tiers.ParseTiers(cfg.GetOutreachTiers())
	if err != nil {
		return nil, fmt.Errorf("audience outreach tiers: %w", err)
	}

	ingestor := service.NewIngestor(repo, cfg.GetPhoneDefaultRegion(), log)
	builder := service.NewSegmentBuilder(repo, service.BuilderSettings{
		Tiers:             tiers,
		DefaultWindowDays: cfg.GetAudienceWindowDays(),
		ScanCap:           cfg.GetAudienceScanCap(),
	}, log)
	runner := service.NewActionRunner(builder, repo, outreachTiers, eventBus, log)
	rollup := service.NewRollup(repo, cfg.GetRollupScanCap(), log)

	return &Module{
		handler:  handler.New(ingestor, builder, runner, rollup, val),
		ingestor: ingestor,
		builder:  builder,
		runner:   runner,
		rollup:   rollup,
		log:      log,
	}, nil
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "audience"
}

// Ingestor returns the event ingestor for other modules.
func (m *Module) Ingestor() *service.Ingestor { return m.ingestor }

// Builder returns the segment builder.
func (m *Module) Builder() *service.SegmentBuilder { return m.builder }

// Runner returns the action runner.
func (m *Module) Runner() *service.ActionRunner { return m.runner }

// Rollup returns the global rollup service.
func (m *Module) Rollup() *service.Rollup { return m.rollup }

// RegisterRoutes registers the module's routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	audience := ctx.Protected.Group("/audience")
	audience.POST("/events", m.handler.RecordEvent)
	audience.POST("/segments/build", m.handler.BuildSegments)
	audience.GET("/segments/list", m.handler.ListSegments)
	audience.POST("/actions/run", m.handler.RunActions)
	audience.GET("/actions/list", m.handler.ListActions)
	audience.GET("/global", m.handler.ListGlobalSignals)

	ctx.Public.POST("/tenants/:tenantId/audience/events", m.handler.RecordBeacon)
}

// RegisterHandlers subscribes the module to outreach and handoff events so
// sender activity feeds back into the signal stream, dated when it happened.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.OutreachStepSent{}.EventName(), events.HandlerFunc(m.recordStepSent))
	bus.Subscribe(events.HandoffTicketCreated{}.EventName(), events.HandlerFunc(m.recordHandoff))
}

func (m *Module) recordStepSent(ctx context.Context, event events.Event) error {
	e, ok := event.(events.OutreachStepSent)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}
	return m.relay(ctx, e.BaseEvent, e.CampaignID, e.LeadID, domain.EventSenderSent, map[string]any{
		"channel":  e.Channel,
		"step":     e.StepIndex,
		"template": e.Template,
	})
}

func (m *Module) recordHandoff(ctx context.Context, event events.Event) error {
	e, ok := event.(events.HandoffTicketCreated)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}
	return m.relay(ctx, e.BaseEvent, e.CampaignID, e.LeadID, domain.EventHandoffCreated, map[string]any{
		"ticketId": e.TicketID.String(),
	})
}

func (m *Module) relay(ctx context.Context, base events.BaseEvent, campaignID, leadID uuid.UUID, typ domain.EventType, payload map[string]any) error {
	_, err := m.ingestor.Record(ctx, service.RecordInput{
		TenantID:   base.TenantID,
		CampaignID: &campaignID,
		Actor:      domain.Actor{Kind: domain.ActorLead, LeadID: &leadID},
		Type:       typ,
		Payload:    payload,
		OccurredAt: base.At,
	})
	return err
}
