package domain

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Tier is a named, inclusive engagement threshold.
type Tier string

const (
	TierCold Tier = "cold"
	TierWarm Tier = "warm"
	TierHot  Tier = "hot"
)

// TierRule pairs a tier with its inclusive lower bound.
type TierRule struct {
	Tier      Tier
	MinWeight int
}

// Tiers is the ordered rule set, weakest first. Rank of a tier is its
// position plus one; rank 0 means "no tier".
type Tiers []TierRule

// DefaultTiers returns the 3 / 13 / 21 rule set.
func DefaultTiers() Tiers {
	return Tiers{
		{Tier: TierCold, MinWeight: 3},
		{Tier: TierWarm, MinWeight: 13},
		{Tier: TierHot, MinWeight: 21},
	}
}

// NewTiers builds a rule set from configured thresholds. Thresholds must be
// positive and strictly increasing.
func NewTiers(cold, warm, hot int) (Tiers, error) {
	if cold <= 0 || warm <= cold || hot <= warm {
		return nil, fmt.Errorf("tier thresholds must be positive and increasing: %d/%d/%d", cold, warm, hot)
	}
	return Tiers{
		{Tier: TierCold, MinWeight: cold},
		{Tier: TierWarm, MinWeight: warm},
		{Tier: TierHot, MinWeight: hot},
	}, nil
}

// Qualifies reports every tier whose threshold weight meets. Tiers overlap:
// a hot entity is also warm and cold.
func (t Tiers) Qualifies(weight int) []Tier {
	var out []Tier
	for _, rule := range t {
		if weight >= rule.MinWeight {
			out = append(out, rule.Tier)
		}
	}
	return out
}

// Highest returns the strongest tier weight reaches and its rank.
func (t Tiers) Highest(weight int) (Tier, int) {
	var (
		best Tier
		rank int
	)
	for i, rule := range t {
		if weight >= rule.MinWeight {
			best, rank = rule.Tier, i+1
		}
	}
	return best, rank
}

// Rank returns the 1-based rank of tier, or 0 when unknown.
func (t Tiers) Rank(tier Tier) int {
	for i, rule := range t {
		if rule.Tier == tier {
			return i + 1
		}
	}
	return 0
}

// ParseTiers maps names to tiers, rejecting unknown names.
func (t Tiers) ParseTiers(names []string) (map[Tier]bool, error) {
	out := make(map[Tier]bool, len(names))
	for _, name := range names {
		tier := Tier(name)
		if t.Rank(tier) == 0 {
			return nil, fmt.Errorf("unknown tier %q", name)
		}
		out[tier] = true
	}
	return out, nil
}

// ScopeAll is the tenant-wide segment scope.
const ScopeAll = "all"

// Scope returns "all" or "cmp_<campaignId>".
func Scope(campaignID *uuid.UUID) string {
	if campaignID == nil {
		return ScopeAll
	}
	return "cmp_" + campaignID.String()
}

// SegmentID is deterministic in scope, tier and window length.
func SegmentID(scope string, tier Tier, withinDays int) string {
	return scope + "_" + string(tier) + "_" + strconv.Itoa(withinDays) + "d"
}

// MembershipScope keys recorded memberships. Windows are kept apart so that
// callers using different windows do not flap each other's tiers.
func MembershipScope(scope string, withinDays int) string {
	return scope + "_" + strconv.Itoa(withinDays) + "d"
}
