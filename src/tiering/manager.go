package tiering

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/recall-ai/recall/src/config"
	"github.com/recall-ai/recall/src/models"
	"github.com/recall-ai/recall/src/scoring"
)

// boundaryStore persists the cutoffs a rebalance derives, for the scorer's
// between-sweep promotions.
type boundaryStore interface {
	models.BoundarySource
	Save(ctx context.Context, b *models.TierBoundaries) error
}

// Manager owns the batch side of ranking: the rebalance sweep that
// reassigns tiers population-wide, the archival sweep, and the insertion
// path that gives new entries their initial ranking state.
type Manager struct {
	index      models.VectorIndex
	scorer     *scoring.Scorer
	embedder   models.Embedder
	boundaries boundaryStore
	locks      models.AdvisoryLocker
	cfg        *config.TierConfig

	now func() time.Time
}

func NewManager(index models.VectorIndex, scorer *scoring.Scorer, embedder models.Embedder, boundaries boundaryStore, locks models.AdvisoryLocker, cfg *config.TierConfig) *Manager {
	return &Manager{
		index:      index,
		scorer:     scorer,
		embedder:   embedder,
		boundaries: boundaries,
		locks:      locks,
		cfg:        cfg,
		now:        time.Now,
	}
}

// SetClock overrides the manager's time source. Tests use it to age entries.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Insert is the miss-path entry point: store a fresh upstream answer as a
// new cache entry with its initial score and tier. The embedding is
// computed when the caller did not supply one.
func (m *Manager) Insert(ctx context.Context, caller *models.CallerContext, req *models.InsertRequest) (*models.CacheEntry, error) {
	embedding := req.Embedding
	if len(embedding) == 0 {
		if m.embedder == nil {
			return nil, fmt.Errorf("no embedding supplied and no embedder configured")
		}
		var err error
		embedding, err = m.embedder.Embed(ctx, req.Query)
		if err != nil {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
	}

	userID := ""
	if caller != nil && !(req.Shared && caller.SharedPool) {
		userID = caller.UserID
	}

	now := m.now()
	entry := &models.CacheEntry{
		ID:              uuid.New().String(),
		UserID:          userID,
		Query:           req.Query,
		Response:        req.Response,
		Embedding:       embedding,
		Provider:        req.Provider,
		Model:           req.Model,
		AccessCount:     1,
		Tier:            models.TierCool,
		RankingVersion:  models.CurrentRankingVersion,
		CreatedAt:       now,
		LastAccessed:    now,
		LastScoreUpdate: now,
	}
	entry.PopularityScore = m.scorer.ComputeScore(entry, now)

	if b, err := m.boundaries.Current(ctx); err == nil && b != nil {
		entry.Tier = b.TierFor(entry.PopularityScore)
	}

	if err := m.index.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to insert entry: %w", err)
	}
	return entry, nil
}

// Rebalance re-scores the whole active population, derives fresh tier
// cutoffs from the score distribution, and reassigns every entry's tier.
// A second invocation while one is running gets ErrMaintenanceBusy.
// Cancellation mid-sweep leaves already-written entries in their new,
// individually consistent state.
func (m *Manager) Rebalance(ctx context.Context) (*models.RebalanceResult, error) {
	if err := m.locks.Acquire(ctx, models.ActionRebalance); err != nil {
		return nil, err
	}
	defer m.release(models.ActionRebalance)

	entries, err := m.index.List(ctx, models.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}

	result := &models.RebalanceResult{Scanned: len(entries)}
	if len(entries) == 0 {
		return result, nil
	}

	now := m.now()
	scores := make([]float64, 0, len(entries))
	for _, entry := range entries {
		scoring.Migrate(entry)
		entry.PopularityScore = m.scorer.ComputeScore(entry, now)
		entry.LastScoreUpdate = now
		entry.RankingVersion = models.CurrentRankingVersion
		scores = append(scores, entry.PopularityScore)
	}

	boundaries := m.deriveBoundaries(scores, now)

	var changed []*models.CacheEntry
	for _, entry := range entries {
		target := boundaries.TierFor(entry.PopularityScore)
		switch {
		case models.TierRank(target) > models.TierRank(entry.Tier):
			result.Promoted++
		case models.TierRank(target) < models.TierRank(entry.Tier):
			result.Demoted++
		}
		entry.Tier = target
		changed = append(changed, entry)
	}

	if _, err := m.index.BulkUpdate(ctx, changed); err != nil {
		return result, fmt.Errorf("rebalance interrupted: %w", err)
	}

	if err := m.boundaries.Save(ctx, boundaries); err != nil {
		return result, fmt.Errorf("failed to save boundaries: %w", err)
	}
	return result, nil
}

// Archive soft-deletes cool entries idle past the retention horizon with a
// score under the floor. Archived entries never come back.
func (m *Manager) Archive(ctx context.Context) (int, error) {
	if err := m.locks.Acquire(ctx, models.ActionArchive); err != nil {
		return 0, err
	}
	defer m.release(models.ActionArchive)

	entries, err := m.index.List(ctx, models.ListFilter{Tier: models.TierCool})
	if err != nil {
		return 0, fmt.Errorf("failed to list cool entries: %w", err)
	}

	cutoff := m.now().AddDate(0, 0, -m.cfg.RetentionDays)

	var stale []*models.CacheEntry
	for _, entry := range entries {
		if entry.LastAccessed.Before(cutoff) && entry.PopularityScore < m.cfg.ArchiveScoreFloor {
			entry.IsArchived = true
			entry.Tier = models.TierArchived
			stale = append(stale, entry)
		}
	}

	archived, err := m.index.BulkUpdate(ctx, stale)
	if err != nil {
		return archived, fmt.Errorf("archive interrupted: %w", err)
	}
	return archived, nil
}

// StaleCount reports how many entries the next Archive pass would take,
// without writing anything. The health snapshot uses it.
func (m *Manager) StaleCount(ctx context.Context) (int, error) {
	entries, err := m.index.List(ctx, models.ListFilter{Tier: models.TierCool})
	if err != nil {
		return 0, err
	}

	cutoff := m.now().AddDate(0, 0, -m.cfg.RetentionDays)
	count := 0
	for _, entry := range entries {
		if entry.LastAccessed.Before(cutoff) && entry.PopularityScore < m.cfg.ArchiveScoreFloor {
			count++
		}
	}
	return count, nil
}

// Stats aggregates the population by tier, on demand.
func (m *Manager) Stats(ctx context.Context) (*models.TierStatistics, error) {
	entries, err := m.index.List(ctx, models.ListFilter{IncludeArchived: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}

	stats := &models.TierStatistics{
		Counts:        make(map[models.Tier]int64),
		AvgPopularity: make(map[models.Tier]float64),
	}
	sums := make(map[models.Tier]float64)

	for _, entry := range entries {
		stats.Counts[entry.Tier]++
		sums[entry.Tier] += entry.PopularityScore
		stats.TotalCostSaved += entry.CostSaved
		stats.TotalAccessHits += entry.AccessCount
		if entry.IsArchived {
			stats.TotalArchived++
		} else {
			stats.TotalActive++
		}
	}

	for tier, sum := range sums {
		if stats.Counts[tier] > 0 {
			stats.AvgPopularity[tier] = sum / float64(stats.Counts[tier])
		}
	}
	return stats, nil
}

// deriveBoundaries turns the score distribution into band cutoffs: the top
// HotFraction of entries by score are hot, the next WarmFraction warm.
func (m *Manager) deriveBoundaries(scores []float64, now time.Time) *models.TierBoundaries {
	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	n := len(sorted)
	hotCount := int(math.Round(float64(n) * m.cfg.HotFraction))
	if hotCount < 1 {
		hotCount = 1
	}
	warmCount := int(math.Round(float64(n) * m.cfg.WarmFraction))
	if warmCount < 1 {
		warmCount = 1
	}

	b := &models.TierBoundaries{ComputedAt: now}
	b.HotMin = sorted[min(hotCount, n)-1]
	b.WarmMin = sorted[min(hotCount+warmCount, n)-1]
	return b
}

func (m *Manager) release(action string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = m.locks.Release(ctx, action)
}
