package adapters

import (
	"context"

	outreach "growth_backend/internal/outreach/service"
	"growth_backend/internal/usage"

	"github.com/google/uuid"
)

// UsageMeter adapts the usage service to the outreach processor.
type UsageMeter struct {
	svc *usage.Service
}

// NewUsageMeter creates a new usage meter adapter.
func NewUsageMeter(svc *usage.Service) *UsageMeter {
	return &UsageMeter{svc: svc}
}

func (a *UsageMeter) Consume(ctx context.Context, tenantID uuid.UUID, metric string, n int64) error {
	_, err := a.svc.Consume(ctx, tenantID, metric, n)
	return err
}

func (a *UsageMeter) Release(ctx context.Context, tenantID uuid.UUID, metric string, n int64) error {
	return a.svc.Release(ctx, tenantID, metric, n)
}

var _ outreach.UsageMeter = (*UsageMeter)(nil)
