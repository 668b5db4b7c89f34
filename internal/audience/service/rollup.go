package service

import (
	"context"
	"sort"
	"time"

	"growth_backend/internal/audience/domain"
	"growth_backend/internal/audience/repository"
	"growth_backend/platform/apperr"
	"growth_backend/platform/logger"
)

const (
	defaultRollupScan   = 5000
	defaultSignalsLimit = 50
	maxSignalsLimit     = 500
)

// RollupOptions bounds one rollup.
type RollupOptions struct {
	WithinDays int
	Limit      int
}

// RollupResult summarises one rollup.
type RollupResult struct {
	Signals        []domain.GlobalSignal
	ScannedActions int
	WindowDays     int
}

// Rollup counts action topics across all tenants. It only ever reads the
// action type, never tenant-owned fields.
type Rollup struct {
	repo         repository.SignalStore
	defaultLimit int
	log          *logger.Logger
	now          func() time.Time
}

// NewRollup creates a rollup service. scanCap bounds a run when the caller
// passes no limit.
func NewRollup(repo repository.SignalStore, scanCap int, log *logger.Logger) *Rollup {
	if scanCap <= 0 {
		scanCap = defaultRollupScan
	}
	return &Rollup{repo: repo, defaultLimit: scanCap, log: log, now: time.Now}
}

// SetClock replaces the time source.
func (r *Rollup) SetClock(now func() time.Time) {
	r.now = now
}

// Run scans actions in the window, counts them per type and replaces the
// stored signals with one global_<topic> signal per type. A topic with no
// action left in the window disappears.
func (r *Rollup) Run(ctx context.Context, opts RollupOptions) (RollupResult, error) {
	withinDays := opts.WithinDays
	switch {
	case withinDays == 0:
		withinDays = defaultWindowDay
	case withinDays < 0 || withinDays > maxWindowDays:
		return RollupResult{}, apperr.Validation("withinDays must be between 1 and 365")
	}
	limit := opts.Limit
	if limit <= 0 || limit > r.defaultLimit {
		limit = r.defaultLimit
	}

	now := r.now().UTC()
	types, err := r.repo.ScanActionTypes(ctx, now.Add(-time.Duration(withinDays)*day), limit)
	if err != nil {
		return RollupResult{}, err
	}

	counts := make(map[string]int)
	for _, t := range types {
		counts[t]++
	}

	signals := make([]domain.GlobalSignal, 0, len(counts))
	for topic, n := range counts {
		signals = append(signals, domain.GlobalSignal{
			ID:         domain.GlobalSignalID(topic),
			Topic:      topic,
			Weight:     n,
			WindowDays: withinDays,
			UpdatedAt:  now,
		})
	}
	sortSignals(signals)

	if err := r.repo.ReplaceGlobalSignals(ctx, signals); err != nil {
		return RollupResult{}, err
	}

	r.log.Info("global rollup completed", "scannedActions", len(types), "topics", len(signals), "windowDays", withinDays)
	return RollupResult{Signals: signals, ScannedActions: len(types), WindowDays: withinDays}, nil
}

// ListSignals returns the stored signals, strongest first.
func (r *Rollup) ListSignals(ctx context.Context, limit int) ([]domain.GlobalSignal, error) {
	return r.repo.ListGlobalSignals(ctx, clampLimit(limit, defaultSignalsLimit, maxSignalsLimit))
}

func sortSignals(signals []domain.GlobalSignal) {
	sort.Slice(signals, func(i, j int) bool {
		if signals[i].Weight != signals[j].Weight {
			return signals[i].Weight > signals[j].Weight
		}
		return signals[i].ID < signals[j].ID
	})
}

func clampLimit(limit, fallback, max int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}
