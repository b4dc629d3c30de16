// Package quota enforces per-destination daily caps and minimum send
// intervals.
package quota

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/linkpipe/linkpipe/internal/domain"
	"github.com/linkpipe/linkpipe/internal/logger"
)

// Store is the destination persistence the manager needs.
type Store interface {
	ResetCounterIfStale(ctx context.Context, id uuid.UUID, dayStart time.Time) error
	IncrementSent(ctx context.Context, id uuid.UUID) error
	ResetAllDailyCounters(ctx context.Context) (int64, error)
}

// Manager gates sends per destination. A false answer is a deferral,
// never an error: the next sweep simply tries again.
type Manager struct {
	store  Store
	logger logger.Logger
	now    func() time.Time
}

// NewManager creates a manager.
func NewManager(store Store, log logger.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: log,
		now:    time.Now,
	}
}

// CanSend reports whether a destination may receive a message right now.
// Counters whose last reset precedes today's day boundary are lazily
// zeroed first, so quota stays correct even when the midnight job was
// missed (process down over midnight).
func (m *Manager) CanSend(ctx context.Context, dest *domain.Destination) (bool, error) {
	if !dest.Active {
		return false, nil
	}

	now := m.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if dest.LastReset.Before(dayStart) {
		if err := m.store.ResetCounterIfStale(ctx, dest.ID, dayStart); err != nil {
			return false, err
		}
		dest.SentToday = 0
		dest.LastReset = now
		m.logger.Debug("Lazily reset daily counter",
			logger.String("destination", dest.Address),
		)
	}

	if dest.SentToday >= dest.DailyCap {
		return false, nil
	}

	if dest.MinInterval > 0 && dest.LastSentAt != nil {
		elapsed := now.Sub(*dest.LastSentAt)
		if elapsed < time.Duration(dest.MinInterval)*time.Second {
			return false, nil
		}
	}

	return true, nil
}

// RecordSend accounts one delivery, updating both the store and the
// in-memory destination so the same sweep sees the new counters.
func (m *Manager) RecordSend(ctx context.Context, dest *domain.Destination) error {
	if err := m.store.IncrementSent(ctx, dest.ID); err != nil {
		return err
	}

	now := m.now()
	dest.SentToday++
	dest.LastSentAt = &now
	return nil
}

// ResetAll zeroes every destination counter. Run by the midnight job.
func (m *Manager) ResetAll(ctx context.Context) (int64, error) {
	return m.store.ResetAllDailyCounters(ctx)
}
