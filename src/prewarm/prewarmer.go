package prewarm

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/recall-ai/recall/src/config"
	"github.com/recall-ai/recall/src/matcher"
	"github.com/recall-ai/recall/src/models"
	"github.com/recall-ai/recall/src/tiering"
	"github.com/recall-ai/recall/src/utils"
)

type accessHistory interface {
	Recent(ctx context.Context, n int) ([]*models.AccessEvent, error)
	Trim(ctx context.Context, n int) error
}

type predictionLog interface {
	Save(ctx context.Context, record *models.PredictionRecord) error
	List(ctx context.Context) ([]*models.PredictionRecord, error)
	MarkMaterialized(ctx context.Context, id, entryID string) error
	Purge(ctx context.Context, cutoff time.Time) (int, error)
}

// Prewarmer forecasts queries the cache is about to be asked for and
// materializes entries for them before anyone pays for the miss. Raw
// signal: misses and near-misses in the recent access history.
type Prewarmer struct {
	index       models.VectorIndex
	matcher     *matcher.Matcher
	upstream    models.UpstreamClient
	embedder    models.Embedder
	manager     *tiering.Manager
	history     accessHistory
	predictions predictionLog
	locks       models.AdvisoryLocker
	cfg         *config.PrewarmConfig

	matchThreshold float64
	upstreamModel  string
	now            func() time.Time
}

func NewPrewarmer(
	index models.VectorIndex,
	m *matcher.Matcher,
	up models.UpstreamClient,
	embedder models.Embedder,
	manager *tiering.Manager,
	history accessHistory,
	predictions predictionLog,
	locks models.AdvisoryLocker,
	cfg *config.PrewarmConfig,
	matchThreshold float64,
	upstreamModel string,
) *Prewarmer {
	return &Prewarmer{
		index:          index,
		matcher:        m,
		upstream:       up,
		embedder:       embedder,
		manager:        manager,
		history:        history,
		predictions:    predictions,
		locks:          locks,
		cfg:            cfg,
		matchThreshold: matchThreshold,
		upstreamModel:  upstreamModel,
		now:            time.Now,
	}
}

// SetClock overrides the prewarmer's time source for tests.
func (p *Prewarmer) SetClock(now func() time.Time) {
	p.now = now
}

// candidate accumulates the demand signal for one normalized query.
type candidate struct {
	query   string // most recent raw form
	votes   int
	bestSim float64
	sources []string
}

// PredictLikelyQueries mines the recent history for unserved demand:
// every miss votes for its query, and near-misses (candidates that almost
// cleared the threshold) raise confidence further. The output is
// deterministic for a given history, ordered by descending confidence with
// query text breaking ties.
func (p *Prewarmer) PredictLikelyQueries(ctx context.Context) ([]*models.PredictionRecord, error) {
	events, err := p.history.Recent(ctx, p.cfg.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to read access history: %w", err)
	}

	candidates := make(map[string]*candidate)
	for _, event := range events {
		if event.Hit {
			continue
		}
		key := utils.NormalizeQuery(event.Query)
		if key == "" {
			continue
		}

		c, ok := candidates[key]
		if !ok {
			// Events arrive newest first, so the first raw form seen is the
			// freshest phrasing of the query.
			c = &candidate{query: event.Query}
			candidates[key] = c
		}
		// A near-miss almost cleared the threshold; that demand signal is
		// worth two plain misses.
		if event.BestSimilarity >= p.matchThreshold-p.cfg.NearMissMargin {
			c.votes += 2
		} else {
			c.votes++
		}
		if event.BestSimilarity > c.bestSim {
			c.bestSim = event.BestSimilarity
		}
		if len(c.sources) < 5 {
			c.sources = append(c.sources, event.Query)
		}
	}

	existing, err := p.predictions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	materialized := make(map[string]bool)
	for _, record := range existing {
		if record.Materialized {
			materialized[record.ID] = true
		}
	}

	now := p.now()
	var records []*models.PredictionRecord
	for key, c := range candidates {
		id := utils.QueryHash(key)
		if materialized[id] {
			continue
		}
		records = append(records, &models.PredictionRecord{
			ID:             id,
			PredictedQuery: c.query,
			Confidence:     confidence(c.votes, c.bestSim),
			SourceQueries:  c.sources,
			GeneratedAt:    now,
		})
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Confidence != records[j].Confidence {
			return records[i].Confidence > records[j].Confidence
		}
		return records[i].PredictedQuery < records[j].PredictedQuery
	})

	if p.cfg.MaxPredictions > 0 && len(records) > p.cfg.MaxPredictions {
		records = records[:p.cfg.MaxPredictions]
	}

	for _, record := range records {
		if err := p.predictions.Save(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to save prediction: %w", err)
		}
	}
	return records, nil
}

// confidence grows with repeated misses and with how close the best miss
// came to the similarity threshold. Bounded to [0,1].
func confidence(votes int, bestSim float64) float64 {
	repeat := 0.5 * (1.0 - 1.0/float64(1+votes))
	proximity := 0.5 * bestSim
	c := repeat + proximity
	if c > 1 {
		c = 1
	}
	return c
}

// PrewarmCache materializes a cache entry for each prediction above the
// confidence floor. Candidates that would already hit are skipped; only
// genuinely missing answers cost an upstream call. Mutually exclusive with
// itself via the predict action lock.
func (p *Prewarmer) PrewarmCache(ctx context.Context, predictions []*models.PredictionRecord) (int, error) {
	if err := p.locks.Acquire(ctx, models.ActionPredict); err != nil {
		return 0, err
	}
	defer p.release(models.ActionPredict)

	warmed := 0
	for _, pred := range predictions {
		if err := ctx.Err(); err != nil {
			return warmed, err
		}
		if pred.Materialized || pred.Confidence < p.cfg.ConfidenceFloor {
			continue
		}

		embedding, err := p.embedder.Embed(ctx, pred.PredictedQuery)
		if err != nil {
			log.Printf("prewarm: embedding %q failed: %v", pred.PredictedQuery, err)
			continue
		}

		// Probe first: a near-identical entry may have appeared since the
		// prediction was made.
		hit, err := p.matcher.Probe(ctx, embedding, p.matchThreshold, models.SearchScope{IncludeShared: true})
		if err == nil && hit != nil && hit.Similarity >= p.matchThreshold {
			continue
		}

		response, err := p.upstream.Complete(ctx, pred.PredictedQuery)
		if err != nil {
			log.Printf("prewarm: upstream call for %q failed: %v", pred.PredictedQuery, err)
			continue
		}

		entry, err := p.manager.Insert(ctx, nil, &models.InsertRequest{
			Query:     pred.PredictedQuery,
			Response:  response,
			Embedding: embedding,
			Provider:  "prewarm",
			Model:     p.upstreamModel,
		})
		if err != nil {
			log.Printf("prewarm: insert for %q failed: %v", pred.PredictedQuery, err)
			continue
		}

		if err := p.predictions.MarkMaterialized(ctx, pred.ID, entry.ID); err != nil {
			log.Printf("prewarm: failed to mark prediction %s: %v", pred.ID, err)
		}
		warmed++
	}
	return warmed, nil
}

// Metrics correlates materialized predictions with later hits. An entry
// inserted by prewarm starts at accessCount 1, so any real hit afterwards
// pushes it past that.
func (p *Prewarmer) Metrics(ctx context.Context) (*models.PredictionMetrics, error) {
	records, err := p.predictions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}

	metrics := &models.PredictionMetrics{TotalPredictions: len(records)}

	var confSum float64
	for _, record := range records {
		confSum += record.Confidence
		if !record.Materialized {
			continue
		}
		metrics.Materialized++

		if record.EntryID == "" {
			continue
		}
		entry, err := p.index.Get(ctx, record.EntryID)
		if err != nil {
			continue
		}
		if entry.AccessCount > 1 {
			metrics.ServedAfterPrewarm++
		}
	}

	if metrics.Materialized > 0 {
		metrics.HitRate = float64(metrics.ServedAfterPrewarm) / float64(metrics.Materialized)
	}
	if len(records) > 0 {
		metrics.AvgConfidence = confSum / float64(len(records))
	}
	return metrics, nil
}

// CleanupHistory discards predictions past the retention horizon and trims
// the access log back to the analysis window. Predictions are append-only
// until purged, so this is safe alongside generation.
func (p *Prewarmer) CleanupHistory(ctx context.Context) (int, error) {
	if err := p.locks.Acquire(ctx, models.ActionCleanup); err != nil {
		return 0, err
	}
	defer p.release(models.ActionCleanup)

	purged, err := p.predictions.Purge(ctx, p.now().Add(-p.cfg.Retention))
	if err != nil {
		return purged, fmt.Errorf("failed to purge predictions: %w", err)
	}

	if err := p.history.Trim(ctx, p.cfg.HistoryWindow); err != nil {
		return purged, fmt.Errorf("failed to trim access log: %w", err)
	}
	return purged, nil
}

func (p *Prewarmer) release(action string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.locks.Release(ctx, action)
}
