package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/recall-ai/recall/src/models"
)

const boundariesKey = "tier_boundaries"

// BoundaryStore persists the tier cutoffs computed by the last rebalance so
// the scorer can promote entries between sweeps without a population scan.
type BoundaryStore struct {
	client *redis.Client
}

func NewBoundaryStore(client *redis.Client) *BoundaryStore {
	return &BoundaryStore{client: client}
}

func (b *BoundaryStore) Save(ctx context.Context, boundaries *models.TierBoundaries) error {
	data, err := json.Marshal(boundaries)
	if err != nil {
		return fmt.Errorf("failed to marshal boundaries: %w", err)
	}
	return b.client.Set(ctx, boundariesKey, data, 0).Err()
}

// Current returns nil without error when no rebalance has run yet.
func (b *BoundaryStore) Current(ctx context.Context) (*models.TierBoundaries, error) {
	val, err := b.client.Get(ctx, boundariesKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read boundaries: %w", err)
	}

	var boundaries models.TierBoundaries
	if err := json.Unmarshal([]byte(val), &boundaries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal boundaries: %w", err)
	}
	return &boundaries, nil
}
