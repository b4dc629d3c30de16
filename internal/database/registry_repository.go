package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/linkpipe/linkpipe/internal/domain"
)

// RegistryRepository manages the registered-domain allow list and the
// passive source-group registry.
type RegistryRepository struct {
	db *sqlx.DB
}

// NewRegistryRepository creates a new repository.
func NewRegistryRepository(db *sqlx.DB) *RegistryRepository {
	return &RegistryRepository{db: db}
}

// ActiveDomains returns the current extraction allow list. The extractor
// reloads it each ingest pass so administrative changes take effect
// without a restart.
func (r *RegistryRepository) ActiveDomains(ctx context.Context) ([]domain.RegisteredDomain, error) {
	domains := []domain.RegisteredDomain{}
	query := `
		SELECT id, domain, affiliate_code, active, created_at
		FROM registered_domains
		WHERE active = true
		ORDER BY domain ASC`

	if err := r.db.SelectContext(ctx, &domains, query); err != nil {
		return nil, fmt.Errorf("list registered domains: %w", err)
	}
	return domains, nil
}

// AddDomain registers a domain for extraction.
func (r *RegistryRepository) AddDomain(ctx context.Context, d *domain.RegisteredDomain) error {
	query := `
		INSERT INTO registered_domains (id, domain, affiliate_code, active, created_at)
		VALUES ($1, $2, $3, $4, NOW())`

	_, err := r.db.ExecContext(ctx, query, d.ID, d.Domain, d.AffiliateCode, d.Active)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("add registered domain: %w", err)
	}
	return nil
}

// TouchSourceGroup upserts the registry row for an origin address. Purely
// informational; nothing reads it on the hot path.
func (r *RegistryRepository) TouchSourceGroup(ctx context.Context, address, name string) error {
	query := `
		INSERT INTO source_groups (address, name, first_seen_at, last_seen_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (address) DO UPDATE
		SET name = EXCLUDED.name, last_seen_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, address, name); err != nil {
		return fmt.Errorf("touch source group: %w", err)
	}
	return nil
}
