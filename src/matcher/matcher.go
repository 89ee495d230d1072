package matcher

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/recall-ai/recall/src/config"
	"github.com/recall-ai/recall/src/models"
	"github.com/recall-ai/recall/src/utils"
)

// accessLogger records matcher outcomes for the prewarmer; nil disables it.
type accessLogger interface {
	Record(ctx context.Context, event *models.AccessEvent) error
}

// Matcher answers "has somebody already asked this" for a query embedding.
// On a hit it notifies the scorer without making the caller wait.
type Matcher struct {
	index     models.VectorIndex
	recorder  models.AccessRecorder
	accessLog accessLogger
	cfg       *config.MatcherConfig
}

func NewMatcher(index models.VectorIndex, recorder models.AccessRecorder, accessLog accessLogger, cfg *config.MatcherConfig) *Matcher {
	return &Matcher{
		index:     index,
		recorder:  recorder,
		accessLog: accessLog,
		cfg:       cfg,
	}
}

// Match runs a scoped similarity lookup for the caller. A requested custom
// threshold on a plan that forbids one is a policy violation, never a
// clamp. Transient store errors degrade to a miss: falling through to the
// upstream model is always safe.
func (m *Matcher) Match(ctx context.Context, caller *models.CallerContext, req *models.LookupRequest) (*models.LookupResponse, error) {
	threshold, err := m.resolveThreshold(caller, req.Threshold)
	if err != nil {
		return nil, err
	}

	scope := models.SearchScope{
		UserID:        caller.UserID,
		IncludeShared: req.Shared && caller.SharedPool,
	}

	result, err := m.Probe(ctx, req.Embedding, threshold, scope)
	if err != nil {
		log.Printf("similarity search degraded to miss: %v", err)
		return &models.LookupResponse{Hit: false, Degraded: true}, nil
	}

	if result == nil {
		m.logEvent(ctx, req.Query, false, 0)
		return &models.LookupResponse{Hit: false}, nil
	}

	if result.Similarity < threshold {
		// Near miss: remember how close it was, the prewarmer feeds on this.
		m.logEvent(ctx, req.Query, false, result.Similarity)
		return &models.LookupResponse{Hit: false}, nil
	}

	m.logEvent(ctx, req.Query, true, result.Similarity)
	m.notifyScorer(result.Entry)

	return &models.LookupResponse{
		Hit:               true,
		Entry:             result.Entry,
		SimilarityPercent: result.SimilarityPercent,
	}, nil
}

// Probe is the side-effect-free lookup: best candidate in scope, or nil
// when the store has nothing. The prewarmer uses it to skip candidates that
// would already hit. One retry with backoff absorbs transient store errors.
func (m *Matcher) Probe(ctx context.Context, embedding []float32, threshold float64, scope models.SearchScope) (*models.MatchResult, error) {
	req := models.SearchRequest{
		Embedding: embedding,
		Scope:     scope,
		Limit:     m.cfg.SearchLimit,
	}

	results, err := m.index.Search(ctx, req)
	if err != nil {
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		results, err = m.index.Search(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	if len(results) == 0 {
		return nil, nil
	}

	// Search returns candidates ordered by similarity with the recency
	// tie-break applied, so the winner is always the head.
	best := results[0]
	return &models.MatchResult{
		Entry:             best.Entry,
		Similarity:        best.Similarity,
		SimilarityPercent: best.Similarity * 100,
	}, nil
}

func (m *Matcher) resolveThreshold(caller *models.CallerContext, requested *float64) (float64, error) {
	if requested == nil {
		return m.cfg.DefaultThreshold, nil
	}
	if !caller.AllowCustomThreshold {
		return 0, fmt.Errorf("plan %q does not permit a custom similarity threshold: %w", caller.Plan, models.ErrPolicyViolation)
	}
	if *requested <= 0 || *requested > 1 {
		return 0, fmt.Errorf("threshold %f out of range (0,1]: %w", *requested, models.ErrPolicyViolation)
	}
	return *requested, nil
}

// notifyScorer hands the hit to the popularity scorer on a detached
// context. The caller does not wait; the write is durable once the scorer's
// conditional update lands.
func (m *Matcher) notifyScorer(entry *models.CacheEntry) {
	if m.recorder == nil {
		return
	}
	saving, tokens := utils.HitSaving(entry.Query, entry.Response, entry.Model)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.UpdateTimeout)
		defer cancel()
		if _, err := m.recorder.RecordAccess(ctx, entry.ID, saving, tokens); err != nil {
			log.Printf("failed to record access for entry %s: %v", entry.ID, err)
		}
	}()
}

func (m *Matcher) logEvent(ctx context.Context, query string, hit bool, similarity float64) {
	if m.accessLog == nil {
		return
	}
	event := &models.AccessEvent{
		Query:          query,
		Hit:            hit,
		BestSimilarity: similarity,
		Timestamp:      time.Now(),
	}
	if err := m.accessLog.Record(ctx, event); err != nil {
		log.Printf("failed to record access event: %v", err)
	}
}
