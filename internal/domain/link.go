// Package domain contains the core domain models for the link pipeline.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LinkStatus is the persisted state of a tracked link. The set is closed:
// every consumer switches exhaustively over it so a new resolution outcome
// is a compile-time-visible change.
type LinkStatus string

const (
	// StatusPending marks a link awaiting resolution.
	StatusPending LinkStatus = "pending"
	// StatusReady marks a resolved link awaiting distribution.
	StatusReady LinkStatus = "ready"
	// StatusSending is the short-lived claim marker set inside the
	// distribution claim transaction.
	StatusSending LinkStatus = "sending"
	// StatusFailed is terminal; the link is never retried.
	StatusFailed LinkStatus = "failed"
	// StatusFailedTemporary marks a transient failure eligible for
	// promotion back to pending after a cooldown.
	StatusFailedTemporary LinkStatus = "failed_temporary"
)

// Valid reports whether s is a member of the closed status set.
func (s LinkStatus) Valid() bool {
	switch s {
	case StatusPending, StatusReady, StatusSending, StatusFailed, StatusFailedTemporary:
		return true
	}
	return false
}

// Terminal reports whether resolution is finished with this link. A
// terminal status is never rewritten by a late resolver outcome; ready
// links still move through the sending claim during distribution.
func (s LinkStatus) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Link is a discovered candidate URL moving through the resolution and
// distribution pipeline.
type Link struct {
	ID            uuid.UUID  `db:"id"`
	OriginalURL   string     `db:"original_url"`
	Domain        string     `db:"domain"`
	SourceAddress string     `db:"source_address"`
	SenderName    string     `db:"sender_name"`
	Status        LinkStatus `db:"status"`
	AffiliateURL  *string    `db:"affiliate_url"`
	// MetadataRaw and ContextRaw are the serialized jsonb blobs; parse
	// with ParseResolvedMetadata / ParseCapturedContext on read.
	MetadataRaw  []byte     `db:"metadata"`
	ContextRaw   []byte     `db:"captured_context"`
	ErrorMessage *string    `db:"error_message"`
	CreatedAt    time.Time  `db:"created_at"`
	ProcessedAt  *time.Time `db:"processed_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// NewLink creates a pending link for a freshly sighted URL. The captured
// context is stored verbatim for later enrichment.
func NewLink(originalURL, domain, sourceAddress, senderName string, contextRaw []byte) (*Link, error) {
	if originalURL == "" {
		return nil, fmt.Errorf("%w: original_url is required", ErrInvalidLink)
	}
	if domain == "" {
		return nil, fmt.Errorf("%w: domain is required", ErrInvalidLink)
	}

	now := time.Now()
	return &Link{
		ID:            uuid.New(),
		OriginalURL:   originalURL,
		Domain:        domain,
		SourceAddress: sourceAddress,
		SenderName:    senderName,
		Status:        StatusPending,
		ContextRaw:    contextRaw,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Distributable reports whether the link holds everything the composer
// needs. A ready link always has a non-nil affiliate URL; anything else is
// a data defect, not a retryable condition.
func (l *Link) Distributable() bool {
	return l.Status == StatusSending && l.AffiliateURL != nil && *l.AffiliateURL != ""
}

// StatusCounts holds per-status link totals for monitoring.
type StatusCounts struct {
	Pending         int64 `db:"pending"`
	Ready           int64 `db:"ready"`
	Sending         int64 `db:"sending"`
	Failed          int64 `db:"failed"`
	FailedTemporary int64 `db:"failed_temporary"`
}
