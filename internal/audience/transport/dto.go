package transport

import (
	"time"

	"growth_backend/internal/audience/domain"
	"growth_backend/internal/audience/service"

	"github.com/google/uuid"
)

// ActorRequest identifies who produced an event.
type ActorRequest struct {
	Kind        string     `json:"kind" validate:"required,oneof=anonymous lead user"`
	Fingerprint string     `json:"fingerprint,omitempty" validate:"omitempty,max=200"`
	LeadID      *uuid.UUID `json:"leadId,omitempty"`
	UserID      string     `json:"userId,omitempty" validate:"omitempty,max=200"`
}

// RecordEventRequest is the body of POST /audience/events.
type RecordEventRequest struct {
	CampaignID *uuid.UUID     `json:"campaignId,omitempty"`
	Actor      ActorRequest   `json:"actor" validate:"required"`
	Type       string         `json:"type" validate:"required,max=64"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// BeaconRequest is the body of the public landing-page beacon. The actor is
// always anonymous.
type BeaconRequest struct {
	CampaignID  *uuid.UUID     `json:"campaignId,omitempty"`
	Fingerprint string         `json:"fingerprint" validate:"required,max=200"`
	Type        string         `json:"type" validate:"required,oneof=landing.view landing.cta_click landing.form_submit brochure.download"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// RecordEventResponse acknowledges a recorded event.
type RecordEventResponse struct {
	Success   bool      `json:"success"`
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Weight    int       `json:"weight"`
	Timestamp time.Time `json:"timestamp"`
}

// BuildSegmentsRequest is the body of POST /audience/segments/build and
// POST /audience/actions/run.
type BuildSegmentsRequest struct {
	WithinDays int        `json:"withinDays,omitempty" validate:"omitempty,min=1,max=365"`
	CampaignID *uuid.UUID `json:"campaignId,omitempty"`
}

// ListSegmentsQuery filters GET /audience/segments/list.
type ListSegmentsQuery struct {
	CampaignID string `form:"campaignId" validate:"omitempty,uuid"`
}

// LimitQuery is a bare ?limit= query.
type LimitQuery struct {
	Limit int `form:"limit" validate:"omitempty,min=1,max=500"`
}

// RollupQuery is the query of GET /cron/audience-global.
type RollupQuery struct {
	WithinDays int `form:"withinDays" validate:"omitempty,min=1,max=365"`
	Limit      int `form:"limit" validate:"omitempty,min=1,max=50000"`
}

// SegmentRule is a segment's qualifying rule.
type SegmentRule struct {
	MinWeight  int `json:"minWeight"`
	WithinDays int `json:"withinDays"`
}

// SegmentBreakdown splits a segment by entity kind.
type SegmentBreakdown struct {
	WithLeadID int `json:"withLeadId"`
	Anonymous  int `json:"anonymous"`
}

// SegmentResponse is one stored segment.
type SegmentResponse struct {
	ID            string           `json:"id"`
	TenantID      uuid.UUID        `json:"tenantId"`
	Scope         string           `json:"scope"`
	CampaignID    *uuid.UUID       `json:"campaignId,omitempty"`
	Tier          string           `json:"tier"`
	Rule          SegmentRule      `json:"rule"`
	Size          int              `json:"size"`
	Breakdown     SegmentBreakdown `json:"breakdown"`
	WeightVersion string           `json:"weightVersion"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// BuildSegmentsResponse is returned by a segment build.
type BuildSegmentsResponse struct {
	Success       bool              `json:"success"`
	Segments      []SegmentResponse `json:"segments"`
	ScannedEvents int               `json:"scannedEvents"`
	Entities      int               `json:"entities"`
	WithinDays    int               `json:"withinDays"`
	Truncated     bool              `json:"truncated"`
}

// ListSegmentsResponse lists stored segments.
type ListSegmentsResponse struct {
	Success  bool              `json:"success"`
	Segments []SegmentResponse `json:"segments"`
}

// ActionResponse is one audience action.
type ActionResponse struct {
	ID         uuid.UUID      `json:"id"`
	Type       string         `json:"type"`
	EntityID   string         `json:"entityId"`
	FromTier   *string        `json:"fromTier,omitempty"`
	ToTier     *string        `json:"toTier,omitempty"`
	CampaignID *uuid.UUID     `json:"campaignId,omitempty"`
	Payload    map[string]any `json:"payload"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// RunSummaryResponse is the action runner summary.
type RunSummaryResponse struct {
	WithinDays      int               `json:"withinDays"`
	CampaignID      *uuid.UUID        `json:"campaignId,omitempty"`
	ScannedEvents   int               `json:"scannedEvents"`
	Entities        int               `json:"entities"`
	Truncated       bool              `json:"truncated"`
	Segments        []SegmentResponse `json:"segments"`
	Transitions     int               `json:"transitions"`
	ActionsCreated  int               `json:"actionsCreated"`
	OutreachCreated int               `json:"outreachCreated"`
	OutreachFailed  int               `json:"outreachFailed"`
	Actions         []ActionResponse  `json:"actions"`
}

// RunActionsResponse is returned by POST /audience/actions/run.
type RunActionsResponse struct {
	Success bool `json:"success"`
	RunSummaryResponse
}

// ListActionsResponse lists the action log.
type ListActionsResponse struct {
	Success bool             `json:"success"`
	Actions []ActionResponse `json:"actions"`
}

// SignalResponse is one global signal.
type SignalResponse struct {
	ID         string    `json:"id"`
	Topic      string    `json:"topic"`
	Weight     int       `json:"weight"`
	WindowDays int       `json:"windowDays"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// GlobalSignalsResponse lists global signals.
type GlobalSignalsResponse struct {
	Signals []SignalResponse `json:"signals"`
}

// RollupResponse is returned by the rollup cron.
type RollupResponse struct {
	OK             bool             `json:"ok"`
	WindowDays     int              `json:"windowDays"`
	ScannedActions int              `json:"scannedActions"`
	Signals        []SignalResponse `json:"signals"`
}

// ToSegments maps stored segments.
func ToSegments(segments []domain.Segment) []SegmentResponse {
	out := make([]SegmentResponse, 0, len(segments))
	for _, s := range segments {
		out = append(out, SegmentResponse{
			ID:            s.ID,
			TenantID:      s.TenantID,
			Scope:         s.Scope,
			CampaignID:    s.CampaignID,
			Tier:          string(s.Tier),
			Rule:          SegmentRule{MinWeight: s.MinWeight, WithinDays: s.WithinDays},
			Size:          s.Size,
			Breakdown:     SegmentBreakdown{WithLeadID: s.WithLeadID, Anonymous: s.Anonymous},
			WeightVersion: s.WeightVersion,
			UpdatedAt:     s.UpdatedAt,
		})
	}
	return out
}

// ToActions maps audience actions.
func ToActions(actions []domain.Action) []ActionResponse {
	out := make([]ActionResponse, 0, len(actions))
	for _, a := range actions {
		payload := a.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		out = append(out, ActionResponse{
			ID:         a.ID,
			Type:       a.Type,
			EntityID:   a.EntityID,
			FromTier:   tierPtr(a.FromTier),
			ToTier:     tierPtr(a.ToTier),
			CampaignID: a.CampaignID,
			Payload:    payload,
			CreatedAt:  a.CreatedAt,
		})
	}
	return out
}

// ToSignals maps global signals.
func ToSignals(signals []domain.GlobalSignal) []SignalResponse {
	out := make([]SignalResponse, 0, len(signals))
	for _, s := range signals {
		out = append(out, SignalResponse{
			ID:         s.ID,
			Topic:      s.Topic,
			Weight:     s.Weight,
			WindowDays: s.WindowDays,
			UpdatedAt:  s.UpdatedAt,
		})
	}
	return out
}

// ToRunSummary maps an action runner summary.
func ToRunSummary(s service.RunSummary) RunSummaryResponse {
	return RunSummaryResponse{
		WithinDays:      s.WithinDays,
		CampaignID:      s.CampaignID,
		ScannedEvents:   s.ScannedEvents,
		Entities:        s.Entities,
		Truncated:       s.Truncated,
		Segments:        ToSegments(s.Segments),
		Transitions:     s.Transitions,
		ActionsCreated:  s.ActionsCreated,
		OutreachCreated: s.OutreachCreated,
		OutreachFailed:  s.OutreachFailed,
		Actions:         ToActions(s.Actions),
	}
}

// ToRollup maps a rollup result.
func ToRollup(r service.RollupResult) RollupResponse {
	return RollupResponse{
		OK:             true,
		WindowDays:     r.WindowDays,
		ScannedActions: r.ScannedActions,
		Signals:        ToSignals(r.Signals),
	}
}

func tierPtr(t *domain.Tier) *string {
	if t == nil {
		return nil
	}
	s := string(*t)
	return &s
}
