package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/recall-ai/recall/src/config"
	"github.com/recall-ai/recall/src/models"
)

const (
	entryKeyPrefix = "cache_entry:"
	scanBatchSize  = 200
)

// RedisIndex implements models.VectorIndex over Redis. Entries are JSON
// values under cache_entry:<id>; similarity search is a brute-force cosine
// scan over SCAN batches. Conditional updates go through WATCH transactions
// so concurrent hit-recordings on the same entry never lose updates.
type RedisIndex struct {
	client *redis.Client
}

func NewRedisIndex(cfg *config.RedisConfig) (*RedisIndex, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisIndex{client: client}, nil
}

// NewRedisIndexWithClient wraps an existing client, sharing the connection
// with the other Redis-backed stores.
func NewRedisIndexWithClient(client *redis.Client) *RedisIndex {
	return &RedisIndex{client: client}
}

// GetClient returns the underlying Redis client for direct access
func (s *RedisIndex) GetClient() *redis.Client {
	return s.client
}

func (s *RedisIndex) Get(ctx context.Context, id string) (*models.CacheEntry, error) {
	val, err := s.client.Get(ctx, entryKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}

	var entry models.CacheEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}

	return &entry, nil
}

func (s *RedisIndex) Insert(ctx context.Context, entry *models.CacheEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("entry id is required")
	}
	entry.Version = 1

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	return s.client.Set(ctx, entryKeyPrefix+entry.ID, data, 0).Err()
}

// Update writes entry back only if the stored Version still equals
// expectedVersion. A concurrent writer in between makes the WATCH
// transaction fail, surfaced as models.ErrVersionConflict.
func (s *RedisIndex) Update(ctx context.Context, entry *models.CacheEntry, expectedVersion int64) error {
	key := entryKeyPrefix + entry.ID

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return models.ErrNotFound
		}
		if err != nil {
			return err
		}

		var stored models.CacheEntry
		if err := json.Unmarshal([]byte(val), &stored); err != nil {
			return fmt.Errorf("failed to unmarshal entry: %w", err)
		}
		if stored.Version != expectedVersion {
			return models.ErrVersionConflict
		}

		// Archival is terminal: once flipped it must never be undone by a
		// rebalance writing a stale tier.
		if stored.IsArchived {
			entry.IsArchived = true
			entry.Tier = models.TierArchived
		}

		entry.Version = expectedVersion + 1
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal entry: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return models.ErrVersionConflict
	}
	return err
}

// BulkUpdate applies conditional writes one entry at a time, each keyed on
// the version the entry was read at. Conflicting entries are skipped; the
// batch pass tolerates individual losers.
func (s *RedisIndex) BulkUpdate(ctx context.Context, entries []*models.CacheEntry) (int, error) {
	updated := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		err := s.Update(ctx, entry, entry.Version)
		if errors.Is(err, models.ErrVersionConflict) || errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

func (s *RedisIndex) Search(ctx context.Context, req models.SearchRequest) ([]models.SearchResult, error) {
	var results []models.SearchResult

	err := s.scanEntries(ctx, func(entry *models.CacheEntry) {
		if entry.IsArchived {
			return
		}
		if !inScope(entry, req.Scope) {
			return
		}
		if len(entry.Embedding) == 0 {
			return
		}
		sim := CosineSimilarity(req.Embedding, entry.Embedding)
		results = append(results, models.SearchResult{Entry: entry, Similarity: sim})
	})
	if err != nil {
		return nil, err
	}

	SortResults(results)

	limit := req.Limit
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *RedisIndex) List(ctx context.Context, filter models.ListFilter) ([]*models.CacheEntry, error) {
	var entries []*models.CacheEntry
	err := s.scanEntries(ctx, func(entry *models.CacheEntry) {
		if matchesFilter(entry, filter) {
			entries = append(entries, entry)
		}
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *RedisIndex) Count(ctx context.Context, filter models.ListFilter) (int64, error) {
	var count int64
	err := s.scanEntries(ctx, func(entry *models.CacheEntry) {
		if matchesFilter(entry, filter) {
			count++
		}
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *RedisIndex) Close() error {
	return s.client.Close()
}

// scanEntries walks cache_entry:* in SCAN batches, fetching values with MGET
// and handing each decodable entry to fn. Entries deleted mid-scan are
// skipped.
func (s *RedisIndex) scanEntries(ctx context.Context, fn func(*models.CacheEntry)) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, entryKeyPrefix+"*", scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("failed to scan entries: %w", err)
		}

		if len(keys) > 0 {
			vals, err := s.client.MGet(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("failed to fetch entries: %w", err)
			}
			for _, val := range vals {
				str, ok := val.(string)
				if !ok {
					continue
				}
				var entry models.CacheEntry
				if err := json.Unmarshal([]byte(str), &entry); err != nil {
					continue
				}
				fn(&entry)
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// SortResults orders candidates by descending similarity, breaking exact
// ties in favor of the most recently accessed entry so fresher knowledge
// surfaces first.
func SortResults(results []models.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Entry.LastAccessed.After(results[j].Entry.LastAccessed)
	})
}

func inScope(entry *models.CacheEntry, scope models.SearchScope) bool {
	if entry.UserID == "" {
		return scope.IncludeShared || scope.UserID == ""
	}
	return scope.UserID != "" && entry.UserID == scope.UserID
}

func matchesFilter(entry *models.CacheEntry, filter models.ListFilter) bool {
	if !filter.IncludeArchived && entry.IsArchived {
		return false
	}
	if filter.Tier != "" && entry.Tier != filter.Tier {
		return false
	}
	return true
}
