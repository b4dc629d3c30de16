// Package metrics tracks operational pipeline counters in Redis.
package metrics

import (
	"context"
	"time"
)

// Tracker records pipeline counters. Implementations must be safe for
// concurrent use and must never let a metrics failure break the pipeline.
type Tracker interface {
	// IncrementTracked counts a newly ingested link for a domain.
	IncrementTracked(ctx context.Context, domain string) error
	// IncrementResolved counts a successful resolution for a domain.
	IncrementResolved(ctx context.Context, domain string) error
	// IncrementFailed counts a failed resolution for a domain.
	IncrementFailed(ctx context.Context, domain string) error
	// IncrementSent counts a delivery to a destination.
	IncrementSent(ctx context.Context, destination string) error
	// AddRecentSend appends a delivery to the recent-sends list.
	AddRecentSend(ctx context.Context, send RecentSend) error
	// GetRecentSends returns the newest deliveries, most recent first.
	GetRecentSends(ctx context.Context, limit int) ([]RecentSend, error)
}

// RecentSend is one entry in the recent-deliveries list.
type RecentSend struct {
	LinkID      string    `json:"link_id"`
	Title       string    `json:"title"`
	Domain      string    `json:"domain"`
	Destination string    `json:"destination"`
	SentAt      time.Time `json:"sent_at"`
}
