package org

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orgColumns = `id, name, slug, max_redis_instances, max_memory_gb, max_api_keys, is_active, created_at, updated_at`

// ErrSlugTaken marks an organization slug uniqueness violation.
var ErrSlugTaken = errors.New("organization slug already taken")

// ErrNotMember marks a failed membership check.
var ErrNotMember = errors.New("not a member of this organization")

// Store provides database operations for organizations and memberships.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an organization Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanOrg(row pgx.Row) (Organization, error) {
	var o Organization
	err := row.Scan(
		&o.ID, &o.Name, &o.Slug, &o.MaxRedisInstances, &o.MaxMemoryGB,
		&o.MaxAPIKeys, &o.IsActive, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

// Create inserts an organization and its founding owner membership in one
// transaction.
func (s *Store) Create(ctx context.Context, name, slug string, ownerID uuid.UUID) (Organization, error) {
	var o Organization

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO organizations (id, name, slug)
			VALUES ($1, $2, $3)
			RETURNING `+orgColumns,
			uuid.New(), name, slug,
		)
		var err error
		o, err = scanOrg(row)
		if err != nil {
			return fmt.Errorf("inserting organization: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO organization_memberships (organization_id, user_id, role)
			VALUES ($1, $2, $3)`,
			o.ID, ownerID, RoleOwner,
		)
		if err != nil {
			return fmt.Errorf("inserting owner membership: %w", err)
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return Organization{}, ErrSlugTaken
		}
		return Organization{}, err
	}
	return o, nil
}

// Get returns an active organization by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Organization, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE id = $1 AND is_active = true`, id)
	return scanOrg(row)
}

// ListForUser returns the organizations the user is an active member of.
func (s *Store) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Organization, int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+orgColumns+`
		FROM organizations o
		JOIN organization_memberships m ON m.organization_id = o.id
		WHERE m.user_id = $1 AND m.is_active = true AND o.is_active = true
		ORDER BY o.created_at ASC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing organizations: %w", err)
	}
	defer rows.Close()

	var items []Organization
	for rows.Next() {
		var o Organization
		if err := rows.Scan(
			&o.ID, &o.Name, &o.Slug, &o.MaxRedisInstances, &o.MaxMemoryGB,
			&o.MaxAPIKeys, &o.IsActive, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scanning organization row: %w", err)
		}
		items = append(items, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating organization rows: %w", err)
	}

	var total int64
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM organizations o
		JOIN organization_memberships m ON m.organization_id = o.id
		WHERE m.user_id = $1 AND m.is_active = true AND o.is_active = true`,
		userID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting organizations: %w", err)
	}

	return items, total, nil
}

// UpdateName renames an organization.
func (s *Store) UpdateName(ctx context.Context, id uuid.UUID, name string) (Organization, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE organizations SET name = $2, updated_at = NOW()
		WHERE id = $1 AND is_active = true
		RETURNING `+orgColumns,
		id, name,
	)
	return scanOrg(row)
}

// Deactivate soft-disables an organization.
func (s *Store) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE organizations SET is_active = false, updated_at = NOW() WHERE id = $1 AND is_active = true`, id)
	if err != nil {
		return fmt.Errorf("deactivating organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// GetMembership returns the caller's active membership, or ErrNotMember.
func (s *Store) GetMembership(ctx context.Context, orgID, userID uuid.UUID) (Membership, error) {
	var m Membership
	err := s.pool.QueryRow(ctx, `
		SELECT organization_id, user_id, role, is_active, created_at
		FROM organization_memberships
		WHERE organization_id = $1 AND user_id = $2 AND is_active = true`,
		orgID, userID,
	).Scan(&m.OrganizationID, &m.UserID, &m.Role, &m.IsActive, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Membership{}, ErrNotMember
	}
	if err != nil {
		return Membership{}, fmt.Errorf("looking up membership: %w", err)
	}
	return m, nil
}

// PrimaryOrgID returns the user's oldest active membership organization, or
// nil when the user belongs to none.
func (s *Store) PrimaryOrgID(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error) {
	var orgID uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT organization_id FROM organization_memberships
		WHERE user_id = $1 AND is_active = true
		ORDER BY created_at ASC
		LIMIT 1`,
		userID,
	).Scan(&orgID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up primary organization: %w", err)
	}
	return &orgID, nil
}

// Count returns the number of active organizations, for the stats surface.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM organizations WHERE is_active = true`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting organizations: %w", err)
	}
	return n, nil
}

// CountActiveOwners returns the number of active owner memberships. Member
// removal refuses to drop this below one.
func (s *Store) CountActiveOwners(ctx context.Context, orgID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM organization_memberships
		WHERE organization_id = $1 AND role = $2 AND is_active = true`,
		orgID, RoleOwner,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting owners: %w", err)
	}
	return n, nil
}

// DeactivateMembership marks a membership inactive. Returns pgx.ErrNoRows
// when no active membership exists.
func (s *Store) DeactivateMembership(ctx context.Context, orgID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE organization_memberships SET is_active = false
		WHERE organization_id = $1 AND user_id = $2 AND is_active = true`,
		orgID, userID,
	)
	if err != nil {
		return fmt.Errorf("deactivating membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
