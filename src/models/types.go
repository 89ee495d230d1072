package models

import "time"

// Tier is the coarse popularity bucket a cache entry lives in.
type Tier string

const (
	TierHot      Tier = "hot"
	TierWarm     Tier = "warm"
	TierCool     Tier = "cool"
	TierArchived Tier = "archived"
)

// RankingVersion tags which scoring algorithm last touched an entry.
// Entries written under an older version are migrated lazily on read.
type RankingVersion int

const (
	// RankingV1 scored entries on a 0-1 scale.
	RankingV1 RankingVersion = 1
	// RankingV2 scores entries on a 0-100 scale with exponential recency decay.
	RankingV2 RankingVersion = 2

	CurrentRankingVersion = RankingV2
)

// CacheEntry is the unit of caching: one stored model answer plus the
// ranking state that decides how long it stays worth keeping.
type CacheEntry struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id,omitempty"` // empty means shared pool
	Query           string         `json:"query"`
	Response        string         `json:"response"`
	Embedding       []float32      `json:"embedding"`
	Provider        string         `json:"provider,omitempty"`
	Model           string         `json:"model,omitempty"`
	AccessCount     int64          `json:"access_count"`
	PopularityScore float64        `json:"popularity_score"`
	Tier            Tier           `json:"tier"`
	RankingVersion  RankingVersion `json:"ranking_version"`
	CostSaved       float64        `json:"cost_saved"`
	TokensSaved     int            `json:"tokens_saved"`
	IsArchived      bool           `json:"is_archived"`
	CreatedAt       time.Time      `json:"created_at"`
	LastAccessed    time.Time      `json:"last_accessed"`
	LastScoreUpdate time.Time      `json:"last_score_update"`

	// Version is the optimistic-concurrency stamp, incremented on every
	// successful write. Conditional updates compare against it.
	Version int64 `json:"version"`
}

// MatchResult is a similarity hit: the winning entry plus how close it was.
type MatchResult struct {
	Entry             *CacheEntry `json:"entry"`
	Similarity        float64     `json:"similarity"`
	SimilarityPercent float64     `json:"similarity_percent"`
}

// SearchScope restricts a similarity search to a caller's slice of the store.
type SearchScope struct {
	UserID        string `json:"user_id,omitempty"`
	IncludeShared bool   `json:"include_shared"`
}

// PredictionRecord is one forecast of a likely future query.
type PredictionRecord struct {
	ID             string    `json:"id"`
	PredictedQuery string    `json:"predicted_query"`
	Confidence     float64   `json:"confidence"`
	SourceQueries  []string  `json:"source_queries,omitempty"`
	GeneratedAt    time.Time `json:"generated_at"`
	Materialized   bool      `json:"materialized"`
	// EntryID links a materialized prediction to the cache entry it
	// produced, so the hit rate can be computed later.
	EntryID string `json:"entry_id,omitempty"`
}

// AccessEvent records one trip through the similarity matcher. The
// prewarmer mines these for near-miss demand.
type AccessEvent struct {
	Query          string    `json:"query"`
	Hit            bool      `json:"hit"`
	BestSimilarity float64   `json:"best_similarity"`
	Model          string    `json:"model,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// CallerContext is what the outer request plumbing hands the engine:
// an authenticated user plus the plan capabilities that gate behavior.
type CallerContext struct {
	UserID               string `json:"user_id"`
	Plan                 string `json:"plan"`
	AllowCustomThreshold bool   `json:"allow_custom_threshold"`
	SharedPool           bool   `json:"shared_pool"`
}

// TierStatistics is an on-demand aggregate over the population.
type TierStatistics struct {
	Counts          map[Tier]int64   `json:"counts"`
	AvgPopularity   map[Tier]float64 `json:"avg_popularity"`
	TotalActive     int64            `json:"total_active"`
	TotalArchived   int64            `json:"total_archived"`
	TotalCostSaved  float64          `json:"total_cost_saved"`
	TotalAccessHits int64            `json:"total_access_hits"`
}

// PredictionMetrics summarizes how well prewarming has been paying off.
type PredictionMetrics struct {
	TotalPredictions   int     `json:"total_predictions"`
	Materialized       int     `json:"materialized"`
	ServedAfterPrewarm int     `json:"served_after_prewarm"`
	HitRate            float64 `json:"hit_rate"`
	AvgConfidence      float64 `json:"avg_confidence"`
}

// RebalanceResult reports how many entries moved during a tier sweep.
type RebalanceResult struct {
	Promoted int `json:"promoted"`
	Demoted  int `json:"demoted"`
	Scanned  int `json:"scanned"`
}

// SystemHealthSnapshot is the derived health view; nothing in it is persisted.
type SystemHealthSnapshot struct {
	IsHealthy          bool               `json:"is_healthy"`
	Status             string             `json:"status"` // healthy | warning | error
	TotalLiveEntries   int64              `json:"total_live_entries"`
	AvgAccessCount     float64            `json:"avg_access_count"`
	OldestEntryAgeDays float64            `json:"oldest_entry_age_days"`
	EnabledFeatures    []string           `json:"enabled_features"`
	DisabledFeatures   []string           `json:"disabled_features"`
	Recommendations    []string           `json:"recommendations"`
	TierStatistics     *TierStatistics    `json:"tier_statistics,omitempty"`
	PredictionMetrics  *PredictionMetrics `json:"prediction_metrics,omitempty"`
	Summary            string             `json:"summary"`
	Timestamp          time.Time          `json:"timestamp"`
}

// LookupRequest is the cache lookup call exposed to collaborators.
type LookupRequest struct {
	Query     string    `json:"query"`
	Embedding []float32 `json:"embedding" binding:"required"`
	Threshold *float64  `json:"threshold,omitempty"`
	Shared    bool      `json:"shared,omitempty"`
}

// LookupResponse reports the hit/miss verdict for a lookup.
type LookupResponse struct {
	Hit               bool        `json:"hit"`
	Entry             *CacheEntry `json:"entry,omitempty"`
	SimilarityPercent float64     `json:"similarity_percent,omitempty"`
	Degraded          bool        `json:"degraded,omitempty"`
}

// InsertRequest stores a fresh upstream answer after a miss.
type InsertRequest struct {
	Query     string    `json:"query" binding:"required"`
	Response  string    `json:"response" binding:"required"`
	Embedding []float32 `json:"embedding,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
	Shared    bool      `json:"shared,omitempty"`
}

// InsertResponse returns the id assigned to a newly stored entry.
type InsertResponse struct {
	EntryID string `json:"entry_id"`
}

// MaintenanceRequest triggers one named maintenance action.
type MaintenanceRequest struct {
	Action string `json:"action" binding:"required"`
}
