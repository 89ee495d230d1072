package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recall-ai/recall/src/config"
	"github.com/recall-ai/recall/src/health"
	"github.com/recall-ai/recall/src/matcher"
	"github.com/recall-ai/recall/src/mocks"
	"github.com/recall-ai/recall/src/models"
	"github.com/recall-ai/recall/src/prewarm"
	"github.com/recall-ai/recall/src/scoring"
	"github.com/recall-ai/recall/src/store"
	"github.com/recall-ai/recall/src/tiering"
)

func setupMaintenanceHandler(t *testing.T) *MaintenanceHandler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	index := store.NewMemoryIndex()
	history := store.NewAccessLog(client)
	predictions := store.NewPredictionLog(client)
	features := store.NewFeatureStore(client)
	locks := store.NewActionLocks(client, time.Minute)
	boundaries := store.NewBoundaryStore(client)

	scorer := scoring.NewScorer(index, boundaries, &config.ScoringConfig{
		FrequencyWeight: 18.0,
		ValueWeight:     40.0,
		ValueCap:        1.0,
		DecayHalfLife:   72 * time.Hour,
		MaxScore:        100.0,
		MaxRetries:      3,
	})
	manager := tiering.NewManager(index, scorer, nil, boundaries, locks, &config.TierConfig{
		HotFraction:       1.0 / 3.0,
		WarmFraction:      1.0 / 3.0,
		RetentionDays:     30,
		ArchiveScoreFloor: 20.0,
	})
	m := matcher.NewMatcher(index, scorer, history, &config.MatcherConfig{
		DefaultThreshold: 0.95,
		SearchLimit:      5,
		UpdateTimeout:    time.Second,
	})
	prewarmer := prewarm.NewPrewarmer(index, m, new(mocks.MockUpstream), new(mocks.MockEmbedder),
		manager, history, predictions, locks, &config.PrewarmConfig{
			ConfidenceFloor: 0.5,
			HistoryWindow:   500,
			MaxPredictions:  20,
			Retention:       7 * 24 * time.Hour,
		}, 0.95, "gpt-3.5-turbo")
	controller := health.NewController(index, manager, prewarmer, features, history, locks, &config.MaintenanceConfig{
		LockTTL:                time.Minute,
		StaleAgeDays:           90,
		MinEntriesForRanking:   10,
		MinEntriesForRebalance: 30,
		MinEventsForPrewarm:    100,
	})

	return NewMaintenanceHandler(controller)
}

func TestHandleHealth_ReturnsSnapshot(t *testing.T) {
	handler := setupMaintenanceHandler(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/api/v1/health", nil)

	handler.HandleHealth(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var snapshot models.SystemHealthSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.NotEmpty(t, snapshot.Status)
	assert.NotEmpty(t, snapshot.Summary)
}

func TestHandleTrigger_RunsAction(t *testing.T) {
	handler := setupMaintenanceHandler(t)

	jsonBody, _ := json.Marshal(models.MaintenanceRequest{Action: models.ActionCleanup})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/api/v1/maintenance", bytes.NewBuffer(jsonBody))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.HandleTrigger(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "cleanup complete", result["message"])
}

func TestHandleTrigger_UnknownAction(t *testing.T) {
	handler := setupMaintenanceHandler(t)

	jsonBody, _ := json.Marshal(models.MaintenanceRequest{Action: "defragment"})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/api/v1/maintenance", bytes.NewBuffer(jsonBody))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.HandleTrigger(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.NotEmpty(t, response["valid_actions"])
}

func TestHandleTrigger_MissingAction(t *testing.T) {
	handler := setupMaintenanceHandler(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/api/v1/maintenance", bytes.NewBufferString("{}"))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.HandleTrigger(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
