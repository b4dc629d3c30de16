package domain

import (
	"time"

	"github.com/google/uuid"
)

// Destination is a rate-limited redistribution target. Counters are owned
// by the quota manager; everything else is managed by the administrative
// collaborator directly against the store.
type Destination struct {
	ID          uuid.UUID  `db:"id"`
	Address     string     `db:"address"`
	Name        string     `db:"name"`
	Active      bool       `db:"active"`
	DailyCap    int        `db:"daily_cap"`
	SentToday   int        `db:"sent_today"`
	LastReset   time.Time  `db:"last_reset"`
	MinInterval int        `db:"min_interval_seconds"`
	LastSentAt  *time.Time `db:"last_sent_at"`
	Position    int        `db:"position"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

// RegisteredDomain is an allow-list entry gating extraction.
type RegisteredDomain struct {
	ID            uuid.UUID `db:"id"`
	Domain        string    `db:"domain"`
	AffiliateCode string    `db:"affiliate_code"`
	Active        bool      `db:"active"`
	CreatedAt     time.Time `db:"created_at"`
}

// SendRecord is the append-only audit of one (link, destination) delivery.
type SendRecord struct {
	ID                 uuid.UUID `db:"id"`
	LinkID             uuid.UUID `db:"link_id"`
	DestinationAddress string    `db:"destination_address"`
	Message            string    `db:"message"`
	SentAt             time.Time `db:"sent_at"`
}

// SourceGroup is a passive registry row for an origin address. It is
// informational only and never gates extraction.
type SourceGroup struct {
	Address     string    `db:"address"`
	Name        string    `db:"name"`
	FirstSeenAt time.Time `db:"first_seen_at"`
	LastSeenAt  time.Time `db:"last_seen_at"`
}
