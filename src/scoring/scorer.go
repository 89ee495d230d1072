package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/recall-ai/recall/src/config"
	"github.com/recall-ai/recall/src/models"
)

// Scorer maintains each entry's decaying popularity score. Per-entry writes
// use the index's conditional update in a bounded retry loop, so concurrent
// hits on the same entry never lose a count.
type Scorer struct {
	index      models.VectorIndex
	boundaries models.BoundarySource // optional; nil disables promotion
	cfg        *config.ScoringConfig
}

func NewScorer(index models.VectorIndex, boundaries models.BoundarySource, cfg *config.ScoringConfig) *Scorer {
	return &Scorer{
		index:      index,
		boundaries: boundaries,
		cfg:        cfg,
	}
}

// ComputeScore derives the popularity score an entry deserves at the given
// instant: a log-dampened frequency term plus a value term, both decayed
// exponentially with time since the last access, clamped to [0, MaxScore].
func (s *Scorer) ComputeScore(entry *models.CacheEntry, now time.Time) float64 {
	freq := s.cfg.FrequencyWeight * math.Log1p(float64(entry.AccessCount))

	value := entry.CostSaved
	if value > s.cfg.ValueCap {
		value = s.cfg.ValueCap
	}

	base := freq + s.cfg.ValueWeight*value

	age := now.Sub(entry.LastAccessed)
	if age > 0 {
		base *= math.Exp(-math.Ln2 * age.Seconds() / s.cfg.DecayHalfLife.Seconds())
	}

	if base < 0 {
		return 0
	}
	if base > s.cfg.MaxScore {
		return s.cfg.MaxScore
	}
	return base
}

// RecordAccess applies one cache hit to the entry: bump accessCount, accrue
// the hit's saving, recompute the score and stamp the current ranking
// version, all under optimistic concurrency. Returns the updated score.
func (s *Scorer) RecordAccess(ctx context.Context, entryID string, saving float64, tokens int) (float64, error) {
	var lastErr error

	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		entry, err := s.index.Get(ctx, entryID)
		if err != nil {
			return 0, err
		}
		expected := entry.Version

		Migrate(entry)

		now := time.Now()
		entry.AccessCount++
		entry.CostSaved += saving
		entry.TokensSaved += tokens
		entry.LastAccessed = now
		entry.PopularityScore = s.ComputeScore(entry, now)
		entry.LastScoreUpdate = now
		entry.RankingVersion = models.CurrentRankingVersion

		s.maybePromote(ctx, entry)

		err = s.index.Update(ctx, entry, expected)
		if err == nil {
			return entry.PopularityScore, nil
		}
		if !errors.Is(err, models.ErrVersionConflict) {
			return 0, err
		}
		lastErr = err
	}

	return 0, fmt.Errorf("record access gave up after %d attempts: %w", s.cfg.MaxRetries, lastErr)
}

// maybePromote raises the entry's tier immediately when the fresh score
// clears a higher band. Demotions wait for the rebalance sweep, which is
// the only place population-wide cutoffs are recomputed.
func (s *Scorer) maybePromote(ctx context.Context, entry *models.CacheEntry) {
	if s.boundaries == nil || entry.IsArchived {
		return
	}
	b, err := s.boundaries.Current(ctx)
	if err != nil || b == nil {
		return
	}

	target := b.TierFor(entry.PopularityScore)
	if models.TierRank(target) > models.TierRank(entry.Tier) {
		entry.Tier = target
	}
}

// Migrate rewrites ranking state written by an older algorithm version.
// Dispatched on every read so the population converges lazily, entry by
// entry, without a full-table rewrite.
func Migrate(entry *models.CacheEntry) {
	switch entry.RankingVersion {
	case 0, models.RankingV1:
		// v1 scored on a 0-1 scale.
		entry.PopularityScore *= 100
		if entry.PopularityScore > 100 {
			entry.PopularityScore = 100
		}
	}
}
