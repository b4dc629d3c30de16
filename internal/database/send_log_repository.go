package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/linkpipe/linkpipe/internal/domain"
)

// SendLogRepository is the append-only audit of deliveries. A send_log
// row is what permanently excludes a link from being claimed again.
type SendLogRepository struct {
	db *sqlx.DB
}

// NewSendLogRepository creates a new repository.
func NewSendLogRepository(db *sqlx.DB) *SendLogRepository {
	return &SendLogRepository{db: db}
}

// Record appends one delivery row.
func (r *SendLogRepository) Record(ctx context.Context, rec *domain.SendRecord) error {
	query := `
		INSERT INTO send_log (id, link_id, destination_address, message, sent_at)
		VALUES ($1, $2, $3, $4, NOW())`

	if _, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.LinkID, rec.DestinationAddress, rec.Message); err != nil {
		return fmt.Errorf("record send: %w", err)
	}
	return nil
}

// HasDelivery reports whether the link was already delivered to the
// destination. Guards against double sends when a claim is retried.
func (r *SendLogRepository) HasDelivery(ctx context.Context, linkID uuid.UUID, destinationAddress string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (
		SELECT 1 FROM send_log WHERE link_id = $1 AND destination_address = $2
	)`

	if err := r.db.GetContext(ctx, &exists, query, linkID, destinationAddress); err != nil {
		return false, fmt.Errorf("check delivery: %w", err)
	}
	return exists, nil
}

// ListByLink returns every delivery of one link, oldest first.
func (r *SendLogRepository) ListByLink(ctx context.Context, linkID uuid.UUID) ([]domain.SendRecord, error) {
	records := []domain.SendRecord{}
	query := `
		SELECT id, link_id, destination_address, message, sent_at
		FROM send_log
		WHERE link_id = $1
		ORDER BY sent_at ASC`

	if err := r.db.SelectContext(ctx, &records, query, linkID); err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	return records, nil
}
