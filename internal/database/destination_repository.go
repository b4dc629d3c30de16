package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/linkpipe/linkpipe/internal/domain"
)

const destinationSelectList = `id, address, name, active, daily_cap, sent_today,
	last_reset, min_interval_seconds, last_sent_at, position, created_at, updated_at`

// DestinationRepository manages redistribution targets and their quota
// counters.
type DestinationRepository struct {
	db *sqlx.DB
}

// NewDestinationRepository creates a new repository.
func NewDestinationRepository(db *sqlx.DB) *DestinationRepository {
	return &DestinationRepository{db: db}
}

// Create registers a new destination.
func (r *DestinationRepository) Create(ctx context.Context, dest *domain.Destination) error {
	query := `
		INSERT INTO destinations (id, address, name, active, daily_cap,
			min_interval_seconds, position, last_reset, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW(), NOW())`

	_, err := r.db.ExecContext(ctx, query,
		dest.ID, dest.Address, dest.Name, dest.Active, dest.DailyCap,
		dest.MinInterval, dest.Position,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("create destination: %w", err)
	}
	return nil
}

// ListActive returns enabled destinations in their configured send order.
func (r *DestinationRepository) ListActive(ctx context.Context) ([]domain.Destination, error) {
	dests := []domain.Destination{}
	query := `SELECT ` + destinationSelectList + `
		FROM destinations
		WHERE active = true
		ORDER BY position ASC, created_at ASC`

	if err := r.db.SelectContext(ctx, &dests, query); err != nil {
		return nil, fmt.Errorf("list active destinations: %w", err)
	}
	return dests, nil
}

// GetByAddress retrieves one destination.
func (r *DestinationRepository) GetByAddress(ctx context.Context, address string) (*domain.Destination, error) {
	dest := &domain.Destination{}
	query := `SELECT ` + destinationSelectList + ` FROM destinations WHERE address = $1`

	err := r.db.GetContext(ctx, dest, query, address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get destination: %w", err)
	}
	return dest, nil
}

// IsDestination reports whether the address is a known destination,
// active or not. Used by ingest to avoid tracking our own output groups.
func (r *DestinationRepository) IsDestination(ctx context.Context, address string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM destinations WHERE address = $1)`

	if err := r.db.GetContext(ctx, &exists, query, address); err != nil {
		return false, fmt.Errorf("check destination: %w", err)
	}
	return exists, nil
}

// ResetCounterIfStale lazily zeroes sent_today when last_reset precedes
// the given day boundary. Keeps quota accounting correct even if the
// midnight sweep was missed.
func (r *DestinationRepository) ResetCounterIfStale(ctx context.Context, id uuid.UUID, dayStart time.Time) error {
	query := `
		UPDATE destinations
		SET sent_today = 0, last_reset = NOW(), updated_at = NOW()
		WHERE id = $1 AND last_reset < $2`

	if _, err := r.db.ExecContext(ctx, query, id, dayStart); err != nil {
		return fmt.Errorf("reset stale counter: %w", err)
	}
	return nil
}

// IncrementSent bumps the daily counter and stamps the send time.
func (r *DestinationRepository) IncrementSent(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE destinations
		SET sent_today = sent_today + 1, last_sent_at = NOW(), updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("increment sent counter: %w", err)
	}
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("increment sent counter: get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ResetAllDailyCounters zeroes every destination counter. Run by the
// midnight reset job.
func (r *DestinationRepository) ResetAllDailyCounters(ctx context.Context) (int64, error) {
	query := `
		UPDATE destinations
		SET sent_today = 0, last_reset = NOW(), updated_at = NOW()`

	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("reset daily counters: %w", err)
	}
	return result.RowsAffected()
}

// SetActive toggles a destination without deleting its history.
func (r *DestinationRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	query := `UPDATE destinations SET active = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, active)
	if err != nil {
		return fmt.Errorf("set destination active: %w", err)
	}
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("set destination active: get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
