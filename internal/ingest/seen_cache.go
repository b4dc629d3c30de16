// Package ingest turns raw group-chat messages into pending links.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linkpipe/linkpipe/internal/logger"
)

// SeenCache is a Redis front for URL dedup. It only short-circuits the
// database check; the unique index on links remains the authority, so a
// cache miss or Redis outage is never a correctness problem.
type SeenCache struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

// NewSeenCache creates a cache with the given entry TTL.
func NewSeenCache(client *redis.Client, ttl time.Duration, log logger.Logger) *SeenCache {
	return &SeenCache{
		client: client,
		ttl:    ttl,
		logger: log,
	}
}

func (c *SeenCache) key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return fmt.Sprintf("seen:url:%s", hex.EncodeToString(sum[:16]))
}

// Seen reports whether the URL was recently ingested. Redis errors are
// logged and treated as not seen.
func (c *SeenCache) Seen(ctx context.Context, url string) bool {
	exists, err := c.client.Exists(ctx, c.key(url)).Result()
	if err != nil {
		c.logger.Warn("Redis error checking seen cache",
			logger.String("url", url),
			logger.Error(err),
		)
		return false
	}
	return exists == 1
}

// MarkSeen records the URL for the cache TTL.
func (c *SeenCache) MarkSeen(ctx context.Context, url string) {
	if err := c.client.Set(ctx, c.key(url), "1", c.ttl).Err(); err != nil {
		c.logger.Warn("Redis error marking url seen",
			logger.String("url", url),
			logger.Error(err),
		)
	}
}

// Flush drops every seen entry. Used by the -flush-cache maintenance flag.
func (c *SeenCache) Flush(ctx context.Context) (int64, error) {
	var deleted int64
	iter := c.client.Scan(ctx, 0, "seen:url:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, fmt.Errorf("delete seen key: %w", err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scan seen keys: %w", err)
	}
	return deleted, nil
}
