package health

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recall-ai/recall/src/config"
	"github.com/recall-ai/recall/src/matcher"
	"github.com/recall-ai/recall/src/mocks"
	"github.com/recall-ai/recall/src/models"
	"github.com/recall-ai/recall/src/prewarm"
	"github.com/recall-ai/recall/src/scoring"
	"github.com/recall-ai/recall/src/store"
	"github.com/recall-ai/recall/src/tiering"
)

type healthFixture struct {
	index      *store.MemoryIndex
	history    *store.AccessLog
	features   *store.FeatureStore
	locks      *store.ActionLocks
	cfg        *config.MaintenanceConfig
	controller *Controller
}

func setupController(t *testing.T) *healthFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	index := store.NewMemoryIndex()
	history := store.NewAccessLog(client)
	predictions := store.NewPredictionLog(client)
	features := store.NewFeatureStore(client)
	locks := store.NewActionLocks(client, time.Minute)
	boundaries := store.NewBoundaryStore(client)

	scoringCfg := &config.ScoringConfig{
		FrequencyWeight: 18.0,
		ValueWeight:     40.0,
		ValueCap:        1.0,
		DecayHalfLife:   72 * time.Hour,
		MaxScore:        100.0,
		MaxRetries:      3,
	}
	tierCfg := &config.TierConfig{
		HotFraction:       1.0 / 3.0,
		WarmFraction:      1.0 / 3.0,
		RetentionDays:     30,
		ArchiveScoreFloor: 20.0,
	}
	matcherCfg := &config.MatcherConfig{
		DefaultThreshold: 0.95,
		SearchLimit:      5,
		UpdateTimeout:    time.Second,
	}
	prewarmCfg := &config.PrewarmConfig{
		ConfidenceFloor: 0.5,
		HistoryWindow:   500,
		MaxPredictions:  20,
		Retention:       7 * 24 * time.Hour,
	}
	cfg := &config.MaintenanceConfig{
		LockTTL:                time.Minute,
		StaleAgeDays:           90,
		MinEntriesForRanking:   10,
		MinEntriesForRebalance: 30,
		MinEventsForPrewarm:    100,
	}

	scorer := scoring.NewScorer(index, boundaries, scoringCfg)
	manager := tiering.NewManager(index, scorer, nil, boundaries, locks, tierCfg)
	m := matcher.NewMatcher(index, nil, history, matcherCfg)
	prewarmer := prewarm.NewPrewarmer(index, m, new(mocks.MockUpstream), new(mocks.MockEmbedder),
		manager, history, predictions, locks, prewarmCfg, 0.95, "gpt-3.5-turbo")

	return &healthFixture{
		index:      index,
		history:    history,
		features:   features,
		locks:      locks,
		cfg:        cfg,
		controller: NewController(index, manager, prewarmer, features, history, locks, cfg),
	}
}

func seedHealthEntry(t *testing.T, index models.VectorIndex, id string, accessCount int64, createdAt time.Time) {
	t.Helper()
	require.NoError(t, index.Insert(context.Background(), &models.CacheEntry{
		ID:           id,
		Query:        "query " + id,
		Response:     "response " + id,
		Embedding:    []float32{1, 0, 0},
		AccessCount:  accessCount,
		Tier:         models.TierCool,
		CreatedAt:    createdAt,
		LastAccessed: time.Now(),
	}))
}

func TestSnapshot_HealthyPopulation(t *testing.T) {
	f := setupController(t)
	now := time.Now()

	for i := 0; i < 12; i++ {
		seedHealthEntry(t, f.index, fmt.Sprintf("e%d", i), 4, now.Add(-24*time.Hour))
	}

	snapshot, err := f.controller.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "healthy", snapshot.Status)
	assert.True(t, snapshot.IsHealthy)
	assert.Equal(t, int64(12), snapshot.TotalLiveEntries)
	assert.InDelta(t, 4.0, snapshot.AvgAccessCount, 1e-9)
	assert.InDelta(t, 1.0, snapshot.OldestEntryAgeDays, 0.01)
	assert.Empty(t, snapshot.Recommendations)
	assert.NotNil(t, snapshot.TierStatistics)
	assert.NotNil(t, snapshot.PredictionMetrics)
}

func TestSnapshot_LowVolumeWarns(t *testing.T) {
	f := setupController(t)

	seedHealthEntry(t, f.index, "only", 1, time.Now())

	snapshot, err := f.controller.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "warning", snapshot.Status)
	assert.True(t, snapshot.IsHealthy)
	require.NotEmpty(t, snapshot.Recommendations)
}

func TestSnapshot_StalledArchivalIsUnhealthy(t *testing.T) {
	f := setupController(t)

	seedHealthEntry(t, f.index, "ancient", 1, time.Now().AddDate(0, 0, -120))

	snapshot, err := f.controller.Snapshot(context.Background())
	require.NoError(t, err)

	assert.False(t, snapshot.IsHealthy)
	assert.Equal(t, "error", snapshot.Status)
	assert.Greater(t, snapshot.OldestEntryAgeDays, float64(f.cfg.StaleAgeDays))
}

func TestTriggerMaintenance_UnknownActionListsValidOnes(t *testing.T) {
	f := setupController(t)

	_, err := f.controller.TriggerMaintenance(context.Background(), "defragment")
	require.ErrorIs(t, err, models.ErrInvalidAction)
	for _, action := range models.ValidActions {
		assert.Contains(t, err.Error(), action)
	}
}

func TestTriggerMaintenance_BusyIsNoOpSuccess(t *testing.T) {
	f := setupController(t)
	ctx := context.Background()

	require.NoError(t, f.locks.Acquire(ctx, models.ActionRebalance))
	defer f.locks.Release(ctx, models.ActionRebalance)

	result, err := f.controller.TriggerMaintenance(ctx, models.ActionRebalance)
	require.NoError(t, err, "an in-flight action is not an error for the trigger")
	assert.Equal(t, true, result["skipped"])
}

func TestTriggerMaintenance_RebalanceReportsCounts(t *testing.T) {
	f := setupController(t)
	now := time.Now()

	seedHealthEntry(t, f.index, "a", 400, now)
	seedHealthEntry(t, f.index, "b", 20, now)
	seedHealthEntry(t, f.index, "c", 1, now)

	result, err := f.controller.TriggerMaintenance(context.Background(), models.ActionRebalance)
	require.NoError(t, err)

	assert.Equal(t, "rebalance complete", result["message"])
	assert.Equal(t, 3, result["scanned"])
	assert.Equal(t, 2, result["promoted"])
}

func TestTriggerMaintenance_ArchiveReportsCount(t *testing.T) {
	f := setupController(t)

	stale := &models.CacheEntry{
		ID:           "stale",
		Query:        "q",
		Response:     "a",
		Embedding:    []float32{1, 0, 0},
		AccessCount:  1,
		Tier:         models.TierCool,
		CreatedAt:    time.Now().AddDate(0, 0, -40),
		LastAccessed: time.Now().AddDate(0, 0, -40),
	}
	require.NoError(t, f.index.Insert(context.Background(), stale))

	result, err := f.controller.TriggerMaintenance(context.Background(), models.ActionArchive)
	require.NoError(t, err)
	assert.Equal(t, "archive complete", result["message"])
	assert.Equal(t, 1, result["archived_count"])
}

func TestAutoEnable_FlipsFeaturesWhenPrerequisitesMet(t *testing.T) {
	f := setupController(t)
	ctx := context.Background()

	f.cfg.MinEntriesForRanking = 2
	f.cfg.MinEntriesForRebalance = 5
	f.cfg.MinEventsForPrewarm = 3

	for i := 0; i < 3; i++ {
		seedHealthEntry(t, f.index, fmt.Sprintf("e%d", i), 1, time.Now())
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, f.history.Record(ctx, &models.AccessEvent{
			Query: "q", Hit: false, Timestamp: time.Now(),
		}))
	}

	result, err := f.controller.TriggerMaintenance(ctx, models.ActionAutoEnable)
	require.NoError(t, err)

	flipped := result["enabled"].([]string)
	assert.Contains(t, flipped, store.FeatureSemanticRanking)
	assert.Contains(t, flipped, store.FeaturePredictivePrewarm)
	assert.NotContains(t, flipped, store.FeatureTierRebalance, "3 entries is below the rebalance minimum")

	ranking, err := f.features.Enabled(ctx, store.FeatureSemanticRanking)
	require.NoError(t, err)
	assert.True(t, ranking)

	// The second run finds nothing left to flip.
	result, err = f.controller.TriggerMaintenance(ctx, models.ActionAutoEnable)
	require.NoError(t, err)
	assert.Empty(t, result["enabled"])
}
