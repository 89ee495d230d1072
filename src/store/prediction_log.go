package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/recall-ai/recall/src/models"
)

const predictionKeyPrefix = "prediction:"

// PredictionLog persists prewarm forecasts. Records are append-only until
// Purge discards those past the retention horizon, so cleanup is safe to
// run alongside prediction generation.
type PredictionLog struct {
	client *redis.Client
}

func NewPredictionLog(client *redis.Client) *PredictionLog {
	return &PredictionLog{client: client}
}

func (l *PredictionLog) Save(ctx context.Context, record *models.PredictionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal prediction: %w", err)
	}
	return l.client.Set(ctx, predictionKeyPrefix+record.ID, data, 0).Err()
}

func (l *PredictionLog) List(ctx context.Context) ([]*models.PredictionRecord, error) {
	var records []*models.PredictionRecord

	var cursor uint64
	for {
		keys, next, err := l.client.Scan(ctx, cursor, predictionKeyPrefix+"*", scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan predictions: %w", err)
		}

		for _, key := range keys {
			val, err := l.client.Get(ctx, key).Result()
			if err != nil {
				continue
			}
			var record models.PredictionRecord
			if err := json.Unmarshal([]byte(val), &record); err != nil {
				continue
			}
			records = append(records, &record)
		}

		cursor = next
		if cursor == 0 {
			return records, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// MarkMaterialized flips the record and attaches the cache entry it produced.
func (l *PredictionLog) MarkMaterialized(ctx context.Context, id, entryID string) error {
	val, err := l.client.Get(ctx, predictionKeyPrefix+id).Result()
	if err == redis.Nil {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get prediction: %w", err)
	}

	var record models.PredictionRecord
	if err := json.Unmarshal([]byte(val), &record); err != nil {
		return fmt.Errorf("failed to unmarshal prediction: %w", err)
	}

	record.Materialized = true
	record.EntryID = entryID
	return l.Save(ctx, &record)
}

// Purge deletes records generated before the cutoff and returns how many
// were removed.
func (l *PredictionLog) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	records, err := l.List(ctx)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, record := range records {
		if record.GeneratedAt.Before(cutoff) {
			if err := l.client.Del(ctx, predictionKeyPrefix+record.ID).Err(); err != nil {
				return purged, err
			}
			purged++
		}
	}
	return purged, nil
}
