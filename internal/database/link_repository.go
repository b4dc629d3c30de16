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

// linkSelectList is the column list for SELECT/RETURNING on links. Single
// source for schema changes.
const linkSelectList = `id, original_url, domain, source_address, sender_name, status,
	affiliate_url, metadata, captured_context, error_message,
	created_at, processed_at, updated_at`

const pqUniqueViolation = "23505"

// LinkRepository manages tracked links in PostgreSQL.
type LinkRepository struct {
	db *sqlx.DB
}

// NewLinkRepository creates a new repository.
func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// Create persists a freshly extracted link. A duplicate original URL maps
// to domain.ErrAlreadyExists via the unique index.
func (r *LinkRepository) Create(ctx context.Context, link *domain.Link) error {
	query := `
		INSERT INTO links (id, original_url, domain, source_address, sender_name,
			status, captured_context, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		link.ID, link.OriginalURL, link.Domain, link.SourceAddress, link.SenderName,
		link.Status, link.ContextRaw, link.CreatedAt, link.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("create link: %w", err)
	}
	return nil
}

// GetByID retrieves a single link.
func (r *LinkRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Link, error) {
	link := &domain.Link{}
	query := `SELECT ` + linkSelectList + ` FROM links WHERE id = $1`

	err := r.db.GetContext(ctx, link, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get link: %w", err)
	}
	return link, nil
}

// ExistsByURL reports whether a URL is already tracked, either as an
// original URL or as a produced affiliate URL. The second check defends
// against re-submission of links that were themselves affiliate output.
func (r *LinkRepository) ExistsByURL(ctx context.Context, url string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (
		SELECT 1 FROM links WHERE original_url = $1 OR affiliate_url = $1
	)`

	if err := r.db.GetContext(ctx, &exists, query, url); err != nil {
		return false, fmt.Errorf("check link exists: %w", err)
	}
	return exists, nil
}

// ExistsBySimilarPath reports whether any stored original or affiliate
// URL contains the given path. Catches the same product shared through
// differently shortened links, where the hosts differ but the product
// path survives.
func (r *LinkRepository) ExistsBySimilarPath(ctx context.Context, path string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (
		SELECT 1 FROM links
		WHERE original_url LIKE '%' || $1 || '%'
		   OR affiliate_url LIKE '%' || $1 || '%'
	)`

	if err := r.db.GetContext(ctx, &exists, query, path); err != nil {
		return false, fmt.Errorf("check link path exists: %w", err)
	}
	return exists, nil
}

// FetchPending returns the oldest pending links, FIFO by discovery time.
func (r *LinkRepository) FetchPending(ctx context.Context, limit int) ([]domain.Link, error) {
	links := []domain.Link{}
	query := `SELECT ` + linkSelectList + `
		FROM links
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2`

	if err := r.db.SelectContext(ctx, &links, query, domain.StatusPending, limit); err != nil {
		return nil, fmt.Errorf("fetch pending links: %w", err)
	}
	return links, nil
}

// MarkReady records a successful resolution. The status guard keeps
// terminal rows terminal: a link that already reached ready or failed is
// never rewritten.
func (r *LinkRepository) MarkReady(ctx context.Context, id uuid.UUID, affiliateURL string, metadata []byte) error {
	query := `
		UPDATE links
		SET status = $2, affiliate_url = $3, metadata = $4, error_message = NULL,
		    processed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($5, $6)`

	return r.execExpectOneRow(ctx, "mark ready", query,
		id, domain.StatusReady, affiliateURL, metadata, domain.StatusReady, domain.StatusFailed)
}

// MarkFailed records a permanent failure. Terminal rows stay untouched.
func (r *LinkRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE links
		SET status = $2, error_message = $3, processed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($4, $5)`

	return r.execExpectOneRow(ctx, "mark failed", query,
		id, domain.StatusFailed, reason, domain.StatusReady, domain.StatusFailed)
}

// MarkTemporaryFailure records a transient failure, leaving the link
// eligible for a future promotion sweep.
func (r *LinkRepository) MarkTemporaryFailure(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE links
		SET status = $2, error_message = $3, processed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($4, $5)`

	return r.execExpectOneRow(ctx, "mark temporary failure", query,
		id, domain.StatusFailedTemporary, reason, domain.StatusReady, domain.StatusFailed)
}

// ClaimReadyBatch atomically selects up to limit oldest ready links with no
// send record yet and marks them sending in one statement, so racing
// callers obtain disjoint batches. FOR UPDATE SKIP LOCKED keeps the
// claim wait-free under concurrent schedulers.
func (r *LinkRepository) ClaimReadyBatch(ctx context.Context, limit int) ([]domain.Link, error) {
	query := `
		UPDATE links
		SET status = $1, updated_at = NOW()
		WHERE id IN (
			SELECT l.id FROM links l
			WHERE l.status = $2
			  AND NOT EXISTS (SELECT 1 FROM send_log s WHERE s.link_id = l.id)
			ORDER BY l.processed_at ASC NULLS LAST
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + linkSelectList

	links := []domain.Link{}
	rows, err := r.db.QueryxContext(ctx, query, domain.StatusSending, domain.StatusReady, limit)
	if err != nil {
		return nil, fmt.Errorf("claim ready batch: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var link domain.Link
		if scanErr := rows.StructScan(&link); scanErr != nil {
			return nil, fmt.Errorf("scan claimed link: %w", scanErr)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// ReleaseClaim returns a claimed link to ready once its destination loop
// finished. Send-log rows, not status, exclude it from future claims.
func (r *LinkRepository) ReleaseClaim(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE links
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3`

	return r.execExpectOneRow(ctx, "release claim", query,
		id, domain.StatusReady, domain.StatusSending)
}

// ReleaseStaleClaims resets sending rows whose claim outlived olderThan
// back to ready. Covers a process killed mid-distribution.
func (r *LinkRepository) ReleaseStaleClaims(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE links
		SET status = $1, updated_at = NOW()
		WHERE status = $2
		  AND updated_at < NOW() - make_interval(secs => $3)`

	result, err := r.db.ExecContext(ctx, query,
		domain.StatusReady, domain.StatusSending, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("release stale claims: %w", err)
	}
	return result.RowsAffected()
}

// PromoteTemporary moves failed_temporary links whose last processing is
// older than the cooldown back to pending. The batch is bounded so one
// sweep cannot flood the resolver with stale retries.
func (r *LinkRepository) PromoteTemporary(ctx context.Context, cooldown time.Duration, limit int) (int64, error) {
	query := `
		UPDATE links
		SET status = $1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM links
			WHERE status = $2
			  AND processed_at IS NOT NULL
			  AND processed_at < NOW() - make_interval(secs => $3)
			ORDER BY processed_at ASC
			LIMIT $4
		)`

	result, err := r.db.ExecContext(ctx, query,
		domain.StatusPending, domain.StatusFailedTemporary, cooldown.Seconds(), limit)
	if err != nil {
		return 0, fmt.Errorf("promote temporary failures: %w", err)
	}
	return result.RowsAffected()
}

// ExpireTemporary demotes failed_temporary links older than maxAge since
// creation to failed, bounding retries of permanently broken sources.
func (r *LinkRepository) ExpireTemporary(ctx context.Context, maxAge time.Duration) (int64, error) {
	query := `
		UPDATE links
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE status = $3
		  AND created_at < NOW() - make_interval(secs => $4)`

	result, err := r.db.ExecContext(ctx, query,
		domain.StatusFailed, "retry window expired", domain.StatusFailedTemporary, maxAge.Seconds())
	if err != nil {
		return 0, fmt.Errorf("expire temporary failures: %w", err)
	}
	return result.RowsAffected()
}

// CountByStatus returns link totals per status for monitoring.
func (r *LinkRepository) CountByStatus(ctx context.Context) (*domain.StatusCounts, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending') AS pending,
			COUNT(*) FILTER (WHERE status = 'ready') AS ready,
			COUNT(*) FILTER (WHERE status = 'sending') AS sending,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed,
			COUNT(*) FILTER (WHERE status = 'failed_temporary') AS failed_temporary
		FROM links`

	var counts domain.StatusCounts
	if err := r.db.GetContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count links by status: %w", err)
	}
	return &counts, nil
}

// execExpectOneRow runs an exec and maps zero affected rows to
// domain.ErrNotFound.
func (r *LinkRepository) execExpectOneRow(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("%s: get affected rows: %w", op, rowsErr)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
