package models

import (
	"context"
	"time"
)

// TierBoundaries are the score cutoffs derived from the population during
// the last rebalance. Entries scoring at or above HotMin are hot, at or
// above WarmMin warm, the rest cool.
type TierBoundaries struct {
	HotMin     float64   `json:"hot_min"`
	WarmMin    float64   `json:"warm_min"`
	ComputedAt time.Time `json:"computed_at"`
}

// TierFor maps a score onto a live tier.
func (b TierBoundaries) TierFor(score float64) Tier {
	switch {
	case score >= b.HotMin:
		return TierHot
	case score >= b.WarmMin:
		return TierWarm
	default:
		return TierCool
	}
}

// BoundarySource exposes the last-known boundaries. Implementations are
// best-effort: per-access promotion may use stale cutoffs, the next
// rebalance settles everything.
type BoundarySource interface {
	Current(ctx context.Context) (*TierBoundaries, error)
}

// TierRank orders live tiers by expected access frequency; a larger rank is
// hotter. Archived sits below everything.
func TierRank(t Tier) int {
	switch t {
	case TierHot:
		return 3
	case TierWarm:
		return 2
	case TierCool:
		return 1
	default:
		return 0
	}
}
