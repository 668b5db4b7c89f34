// Package repository persists outreach runs.
package repository

import (
	"context"
	"errors"
	"time"

	"growth_backend/internal/outreach/domain"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a run does not exist for the tenant.
var ErrNotFound = errors.New("outreach run not found")

// ListParams filters a run listing.
type ListParams struct {
	TenantID uuid.UUID
	Status   *domain.Status
	Limit    int
}

// ClaimParams selects due runs. Scope filters are optional.
type ClaimParams struct {
	TenantID   *uuid.UUID
	CampaignID *uuid.UUID
	Now        time.Time
	LeaseUntil time.Time
	Limit      int
}

// RunStore is the persistence contract of the outreach module.
type RunStore interface {
	// Insert creates the run unless one with the same id exists. It reports
	// whether a row was written.
	Insert(ctx context.Context, run domain.Run) (bool, error)
	Get(ctx context.Context, tenantID, runID uuid.UUID) (domain.Run, error)
	// Update applies patch and reports whether the run matched the patch's
	// status expectation.
	Update(ctx context.Context, tenantID, runID uuid.UUID, patch domain.Patch, now time.Time) (bool, error)
	List(ctx context.Context, params ListParams) ([]domain.Run, error)
	// ClaimDue moves up to Limit due runs to running with next_at set to the
	// lease deadline and returns them as they were when selected, oldest due
	// first.
	ClaimDue(ctx context.Context, params ClaimParams) ([]domain.Run, error)
}
