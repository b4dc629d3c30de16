package metrics

import (
	"fmt"
	"time"
)

const (
	// KeyPrefixMetrics is the prefix for all metrics keys.
	KeyPrefixMetrics = "metrics"
	// KeyRecentSends is the Redis key for the recent-sends list.
	KeyRecentSends = "metrics:recent:sends"
	// MaxRecentSends bounds the recent-sends list.
	MaxRecentSends = 100
	// CounterTTL expires idle counters.
	CounterTTL = 30 * 24 * time.Hour
	// RecentSendsTTL expires the recent-sends list.
	RecentSendsTTL = 7 * 24 * time.Hour
)

// RedisKeys builds metrics keys consistently.
type RedisKeys struct {
	prefix string
}

// NewRedisKeys creates a new RedisKeys instance.
func NewRedisKeys(prefix string) *RedisKeys {
	return &RedisKeys{prefix: prefix}
}

// Tracked returns the counter key for ingested links per domain.
func (k *RedisKeys) Tracked(domain string) string {
	return fmt.Sprintf("%s:tracked:%s", k.prefix, domain)
}

// Resolved returns the counter key for resolved links per domain.
func (k *RedisKeys) Resolved(domain string) string {
	return fmt.Sprintf("%s:resolved:%s", k.prefix, domain)
}

// Failed returns the counter key for failed resolutions per domain.
func (k *RedisKeys) Failed(domain string) string {
	return fmt.Sprintf("%s:failed:%s", k.prefix, domain)
}

// Sent returns the counter key for deliveries per destination.
func (k *RedisKeys) Sent(destination string) string {
	return fmt.Sprintf("%s:sent:%s", k.prefix, destination)
}
