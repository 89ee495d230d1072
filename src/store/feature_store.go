package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

const featureHashKey = "ranking_features"

// Ranking feature names. Features start disabled and are flipped on by the
// auto-enable maintenance pass once their prerequisites are met.
const (
	FeatureSemanticRanking   = "semantic_ranking"
	FeatureTierRebalance     = "tier_rebalance"
	FeaturePredictivePrewarm = "predictive_prewarm"
)

// KnownFeatures lists every feature the engine understands, in report order.
var KnownFeatures = []string{
	FeatureSemanticRanking,
	FeatureTierRebalance,
	FeaturePredictivePrewarm,
}

// FeatureStore keeps ranking feature flags in a Redis hash, shared by every
// process pointing at the same Redis.
type FeatureStore struct {
	client *redis.Client
}

func NewFeatureStore(client *redis.Client) *FeatureStore {
	return &FeatureStore{client: client}
}

func (f *FeatureStore) Enabled(ctx context.Context, name string) (bool, error) {
	val, err := f.client.HGet(ctx, featureHashKey, name).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read feature %s: %w", name, err)
	}
	return val == "1", nil
}

func (f *FeatureStore) Enable(ctx context.Context, name string) error {
	return f.client.HSet(ctx, featureHashKey, name, "1").Err()
}

// All returns enabled and disabled feature names, each sorted.
func (f *FeatureStore) All(ctx context.Context) (enabled, disabled []string, err error) {
	vals, err := f.client.HGetAll(ctx, featureHashKey).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read features: %w", err)
	}

	for _, name := range KnownFeatures {
		if vals[name] == "1" {
			enabled = append(enabled, name)
		} else {
			disabled = append(disabled, name)
		}
	}
	sort.Strings(enabled)
	sort.Strings(disabled)
	return enabled, disabled, nil
}
