package health

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/recall-ai/recall/src/config"
	"github.com/recall-ai/recall/src/models"
	"github.com/recall-ai/recall/src/prewarm"
	"github.com/recall-ai/recall/src/store"
	"github.com/recall-ai/recall/src/tiering"
)

type featureStore interface {
	Enabled(ctx context.Context, name string) (bool, error)
	Enable(ctx context.Context, name string) error
	All(ctx context.Context) (enabled, disabled []string, err error)
}

type historyVolume interface {
	Len(ctx context.Context) (int64, error)
}

// Controller is the read/write facade over the cache engine: one health
// snapshot aggregating every component, one idempotent trigger surface for
// the maintenance actions.
type Controller struct {
	index     models.VectorIndex
	manager   *tiering.Manager
	prewarmer *prewarm.Prewarmer
	features  featureStore
	history   historyVolume
	locks     models.AdvisoryLocker
	cfg       *config.MaintenanceConfig

	now func() time.Time
}

func NewController(
	index models.VectorIndex,
	manager *tiering.Manager,
	prewarmer *prewarm.Prewarmer,
	features featureStore,
	history historyVolume,
	locks models.AdvisoryLocker,
	cfg *config.MaintenanceConfig,
) *Controller {
	return &Controller{
		index:     index,
		manager:   manager,
		prewarmer: prewarmer,
		features:  features,
		history:   history,
		locks:     locks,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetClock overrides the controller's time source for tests.
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}

// Snapshot computes the derived health view. Nothing here is persisted;
// every number is recomputed from the live population.
func (c *Controller) Snapshot(ctx context.Context) (*models.SystemHealthSnapshot, error) {
	entries, err := c.index.List(ctx, models.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}

	now := c.now()
	snapshot := &models.SystemHealthSnapshot{
		TotalLiveEntries: int64(len(entries)),
		Timestamp:        now,
	}

	var accessSum int64
	var oldest time.Time
	for _, entry := range entries {
		accessSum += entry.AccessCount
		if oldest.IsZero() || entry.CreatedAt.Before(oldest) {
			oldest = entry.CreatedAt
		}
	}
	if len(entries) > 0 {
		snapshot.AvgAccessCount = float64(accessSum) / float64(len(entries))
		snapshot.OldestEntryAgeDays = now.Sub(oldest).Hours() / 24
	}

	if enabled, disabled, err := c.features.All(ctx); err == nil {
		snapshot.EnabledFeatures = enabled
		snapshot.DisabledFeatures = disabled
	}

	if stats, err := c.manager.Stats(ctx); err == nil {
		snapshot.TierStatistics = stats
	}
	if metrics, err := c.prewarmer.Metrics(ctx); err == nil {
		snapshot.PredictionMetrics = metrics
	}

	snapshot.Recommendations = c.recommend(ctx, snapshot)

	// Unhealthy means the oldest live entry is far past the archival
	// horizon: the archive job has stalled.
	snapshot.IsHealthy = snapshot.OldestEntryAgeDays <= float64(c.cfg.StaleAgeDays)
	switch {
	case !snapshot.IsHealthy:
		snapshot.Status = "error"
	case len(snapshot.Recommendations) > 0:
		snapshot.Status = "warning"
	default:
		snapshot.Status = "healthy"
	}

	snapshot.Summary = fmt.Sprintf("%d live entries, avg %.1f hits each, oldest %.0f days",
		snapshot.TotalLiveEntries, snapshot.AvgAccessCount, snapshot.OldestEntryAgeDays)
	return snapshot, nil
}

func (c *Controller) recommend(ctx context.Context, snapshot *models.SystemHealthSnapshot) []string {
	var recs []string

	if stale, err := c.manager.StaleCount(ctx); err == nil && stale > 0 {
		recs = append(recs, fmt.Sprintf("run archive: %d stale entries found", stale))
	}

	if snapshot.TotalLiveEntries < int64(c.cfg.MinEntriesForRanking) {
		recs = append(recs, "cache volume below ranking minimum; keep serving traffic to build history")
	}

	if enabled, _ := c.features.Enabled(ctx, store.FeaturePredictivePrewarm); !enabled {
		if n, err := c.history.Len(ctx); err == nil && n >= int64(c.cfg.MinEventsForPrewarm) {
			recs = append(recs, "run auto-enable: prewarm prerequisites are met")
		}
	}
	return recs
}

// TriggerMaintenance dispatches one named action. Unknown names are
// rejected with the valid set; an action already in flight is reported as a
// no-op success so schedulers can fire blindly.
func (c *Controller) TriggerMaintenance(ctx context.Context, action string) (map[string]interface{}, error) {
	var result map[string]interface{}
	var err error

	switch action {
	case models.ActionRebalance:
		var r *models.RebalanceResult
		r, err = c.manager.Rebalance(ctx)
		if err == nil {
			result = map[string]interface{}{
				"message":  "rebalance complete",
				"promoted": r.Promoted,
				"demoted":  r.Demoted,
				"scanned":  r.Scanned,
			}
		}

	case models.ActionArchive:
		var n int
		n, err = c.manager.Archive(ctx)
		if err == nil {
			result = map[string]interface{}{
				"message":        "archive complete",
				"archived_count": n,
			}
		}

	case models.ActionPredict:
		var predictions []*models.PredictionRecord
		predictions, err = c.prewarmer.PredictLikelyQueries(ctx)
		if err == nil {
			var warmed int
			warmed, err = c.prewarmer.PrewarmCache(ctx, predictions)
			if err == nil {
				result = map[string]interface{}{
					"message":   "predict complete",
					"predicted": len(predictions),
					"prewarmed": warmed,
				}
			}
		}

	case models.ActionCleanup:
		var purged int
		purged, err = c.prewarmer.CleanupHistory(ctx)
		if err == nil {
			result = map[string]interface{}{
				"message": "cleanup complete",
				"purged":  purged,
			}
		}

	case models.ActionAutoEnable:
		result, err = c.autoEnable(ctx)

	default:
		return nil, fmt.Errorf("unknown action %q, valid actions: %s: %w",
			action, strings.Join(models.ValidActions, ", "), models.ErrInvalidAction)
	}

	if errors.Is(err, models.ErrMaintenanceBusy) {
		return map[string]interface{}{
			"message": fmt.Sprintf("%s already in progress, nothing to do", action),
			"skipped": true,
		}, nil
	}
	return result, err
}

// autoEnable flips ranking features on once their prerequisite data volume
// exists. Features only ever turn on; repeated invocations are no-ops.
func (c *Controller) autoEnable(ctx context.Context) (map[string]interface{}, error) {
	if err := c.locks.Acquire(ctx, models.ActionAutoEnable); err != nil {
		return nil, err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.locks.Release(releaseCtx, models.ActionAutoEnable)
	}()

	entryCount, err := c.index.Count(ctx, models.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to count entries: %w", err)
	}
	eventCount, err := c.history.Len(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to size access history: %w", err)
	}

	rules := []struct {
		feature string
		met     bool
	}{
		{store.FeatureSemanticRanking, entryCount >= int64(c.cfg.MinEntriesForRanking)},
		{store.FeatureTierRebalance, entryCount >= int64(c.cfg.MinEntriesForRebalance)},
		{store.FeaturePredictivePrewarm, eventCount >= int64(c.cfg.MinEventsForPrewarm)},
	}

	var flipped []string
	for _, rule := range rules {
		if !rule.met {
			continue
		}
		enabled, err := c.features.Enabled(ctx, rule.feature)
		if err != nil || enabled {
			continue
		}
		if err := c.features.Enable(ctx, rule.feature); err != nil {
			return nil, fmt.Errorf("failed to enable %s: %w", rule.feature, err)
		}
		flipped = append(flipped, rule.feature)
	}

	return map[string]interface{}{
		"message": "auto-enable complete",
		"enabled": flipped,
	}, nil
}
