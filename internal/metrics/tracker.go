package metrics

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/linkpipe/linkpipe/internal/logger"
)

// RedisTracker implements Tracker on Redis. Counters are INCR+EXPIRE
// pipelines; the recent-sends list is a trimmed LPUSH.
type RedisTracker struct {
	client redis.UniversalClient
	keys   *RedisKeys
	logger logger.Logger
}

// NewRedisTracker creates a new tracker.
func NewRedisTracker(client redis.UniversalClient, log logger.Logger) *RedisTracker {
	return &RedisTracker{
		client: client,
		keys:   NewRedisKeys(KeyPrefixMetrics),
		logger: log,
	}
}

// IncrementTracked counts a newly ingested link for a domain.
func (t *RedisTracker) IncrementTracked(ctx context.Context, domain string) error {
	return t.increment(ctx, t.keys.Tracked(domain))
}

// IncrementResolved counts a successful resolution for a domain.
func (t *RedisTracker) IncrementResolved(ctx context.Context, domain string) error {
	return t.increment(ctx, t.keys.Resolved(domain))
}

// IncrementFailed counts a failed resolution for a domain.
func (t *RedisTracker) IncrementFailed(ctx context.Context, domain string) error {
	return t.increment(ctx, t.keys.Failed(domain))
}

// IncrementSent counts a delivery to a destination.
func (t *RedisTracker) IncrementSent(ctx context.Context, destination string) error {
	return t.increment(ctx, t.keys.Sent(destination))
}

func (t *RedisTracker) increment(ctx context.Context, key string) error {
	pipe := t.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, CounterTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.Warn("Failed to increment metrics counter",
			logger.String("redis_key", key),
			logger.Error(err),
		)
		return fmt.Errorf("increment counter %s: %w", key, err)
	}
	return nil
}

// AddRecentSend appends a delivery to the bounded recent-sends list.
func (t *RedisTracker) AddRecentSend(ctx context.Context, send RecentSend) error {
	data, err := json.Marshal(send)
	if err != nil {
		return fmt.Errorf("marshal recent send: %w", err)
	}

	pipe := t.client.Pipeline()
	pipe.LPush(ctx, KeyRecentSends, data)
	pipe.LTrim(ctx, KeyRecentSends, 0, MaxRecentSends-1)
	pipe.Expire(ctx, KeyRecentSends, RecentSendsTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.Warn("Failed to record recent send",
			logger.String("link_id", send.LinkID),
			logger.Error(err),
		)
		return fmt.Errorf("add recent send: %w", err)
	}
	return nil
}

// GetRecentSends returns the newest deliveries, most recent first.
func (t *RedisTracker) GetRecentSends(ctx context.Context, limit int) ([]RecentSend, error) {
	if limit <= 0 || limit > MaxRecentSends {
		limit = MaxRecentSends
	}

	entries, err := t.client.LRange(ctx, KeyRecentSends, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read recent sends: %w", err)
	}

	sends := make([]RecentSend, 0, len(entries))
	for _, entry := range entries {
		var send RecentSend
		if unmarshalErr := json.Unmarshal([]byte(entry), &send); unmarshalErr != nil {
			// Skip corrupt entries rather than failing the read.
			t.logger.Warn("Skipping corrupt recent send entry", logger.Error(unmarshalErr))
			continue
		}
		sends = append(sends, send)
	}
	return sends, nil
}
