// Package events is the in-process bus that carries tenant-scoped domain
// events between modules.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is a fact about one tenant that other modules may react to.
type Event interface {
	EventName() string
	// OccurredAt is when the fact happened, stamped by the publishing
	// service's clock rather than by the bus.
	OccurredAt() time.Time
	Tenant() uuid.UUID
}

// BaseEvent carries the tenant and time every event needs.
type BaseEvent struct {
	TenantID uuid.UUID `json:"tenantId"`
	At       time.Time `json:"at"`
}

func (e BaseEvent) OccurredAt() time.Time { return e.At }

func (e BaseEvent) Tenant() uuid.UUID { return e.TenantID }

// NewBaseEvent stamps an event for tenantID at at. A zero at means now.
func NewBaseEvent(tenantID uuid.UUID, at time.Time) BaseEvent {
	if at.IsZero() {
		at = time.Now()
	}
	return BaseEvent{TenantID: tenantID, At: at.UTC()}
}

// Handler reacts to one event.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc lets a closure subscribe.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus routes events by name.
type Bus interface {
	// Publish hands the event to its handlers in the background. Handler
	// errors are logged with the event's tenant.
	Publish(ctx context.Context, event Event)
	// PublishSync runs the handlers before returning, for feedback that must
	// be visible as soon as the publishing call completes.
	PublishSync(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
}
