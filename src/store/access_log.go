package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/recall-ai/recall/src/models"
)

const (
	accessLogKey = "access_log"
	// Keep the log bounded; the prewarmer only ever looks at a recent window.
	accessLogMaxLen = 5000
)

// AccessLog is a bounded Redis list of recent matcher outcomes. The
// prewarmer mines it for near-miss demand and the health snapshot reads
// volume from it.
type AccessLog struct {
	client *redis.Client
}

func NewAccessLog(client *redis.Client) *AccessLog {
	return &AccessLog{client: client}
}

func (l *AccessLog) Record(ctx context.Context, event *models.AccessEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal access event: %w", err)
	}

	pipe := l.client.Pipeline()
	pipe.LPush(ctx, accessLogKey, data)
	pipe.LTrim(ctx, accessLogKey, 0, accessLogMaxLen-1)
	_, err = pipe.Exec(ctx)
	return err
}

// Recent returns up to n events, newest first.
func (l *AccessLog) Recent(ctx context.Context, n int) ([]*models.AccessEvent, error) {
	vals, err := l.client.LRange(ctx, accessLogKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read access log: %w", err)
	}

	events := make([]*models.AccessEvent, 0, len(vals))
	for _, val := range vals {
		var event models.AccessEvent
		if err := json.Unmarshal([]byte(val), &event); err != nil {
			continue
		}
		events = append(events, &event)
	}
	return events, nil
}

func (l *AccessLog) Len(ctx context.Context) (int64, error) {
	return l.client.LLen(ctx, accessLogKey).Result()
}

// Trim keeps only the newest n events.
func (l *AccessLog) Trim(ctx context.Context, n int) error {
	return l.client.LTrim(ctx, accessLogKey, 0, int64(n-1)).Err()
}
