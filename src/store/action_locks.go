package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/recall-ai/recall/src/models"
)

const lockKeyPrefix = "maintenance_lock:"

// ActionLocks hands out one advisory lock per maintenance action name, so a
// batch pass can never overlap with itself. The TTL bounds how long a
// crashed holder can wedge an action.
type ActionLocks struct {
	client *redis.Client
	ttl    time.Duration
}

func NewActionLocks(client *redis.Client, ttl time.Duration) *ActionLocks {
	return &ActionLocks{
		client: client,
		ttl:    ttl,
	}
}

// Acquire takes the lock for action, returning models.ErrMaintenanceBusy if
// another invocation already holds it.
func (l *ActionLocks) Acquire(ctx context.Context, action string) error {
	ok, err := l.client.SetNX(ctx, lockKeyPrefix+action, time.Now().Format(time.RFC3339), l.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire %s lock: %w", action, err)
	}
	if !ok {
		return models.ErrMaintenanceBusy
	}
	return nil
}

func (l *ActionLocks) Release(ctx context.Context, action string) error {
	return l.client.Del(ctx, lockKeyPrefix+action).Err()
}
