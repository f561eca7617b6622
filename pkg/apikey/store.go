package apikey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redisgate/redisgate/internal/auth"
)

const apiKeyColumns = `id, name, key_token, key_prefix, user_id, organization_id, scopes, is_active, rate_limit_rps, expires_at, created_at, updated_at`

// Store provides database operations for API keys.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an API key Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateParams holds parameters for inserting an API key.
type CreateParams struct {
	ID             uuid.UUID
	Name           string
	KeyToken       string
	KeyPrefix      string
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	Scopes         []string
	RateLimitRPS   *int
	ExpiresAt      pgtype.Timestamptz
}

func scanRow(row pgx.Row) (Row, error) {
	var r Row
	err := row.Scan(
		&r.ID, &r.Name, &r.KeyToken, &r.KeyPrefix, &r.UserID, &r.OrganizationID,
		&r.Scopes, &r.IsActive, &r.RateLimitRPS, &r.ExpiresAt, &r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

// Create inserts a new API key and returns the created row.
func (s *Store) Create(ctx context.Context, p CreateParams) (Row, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO api_keys (id, name, key_token, key_prefix, user_id, organization_id, scopes, rate_limit_rps, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+apiKeyColumns,
		p.ID, p.Name, p.KeyToken, p.KeyPrefix, p.UserID, p.OrganizationID, p.Scopes, p.RateLimitRPS, p.ExpiresAt,
	)
	r, err := scanRow(row)
	if err != nil {
		return Row{}, fmt.Errorf("inserting api key: %w", err)
	}
	return r, nil
}

// Get returns an API key scoped to its organization.
func (s *Store) Get(ctx context.Context, orgID, keyID uuid.UUID) (Row, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1 AND organization_id = $2`,
		keyID, orgID,
	)
	return scanRow(row)
}

// List returns the organization's API keys, newest first.
func (s *Store) List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]Row, int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+apiKeyColumns+`
		FROM api_keys
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		orgID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var items []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(
			&r.ID, &r.Name, &r.KeyToken, &r.KeyPrefix, &r.UserID, &r.OrganizationID,
			&r.Scopes, &r.IsActive, &r.RateLimitRPS, &r.ExpiresAt, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scanning api key row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating api key rows: %w", err)
	}

	var total int64
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM api_keys WHERE organization_id = $1`, orgID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting api keys: %w", err)
	}

	return items, total, nil
}

// FindLoginKey returns the user's active auto-generated key for the
// organization, if one exists.
func (s *Store) FindLoginKey(ctx context.Context, orgID, userID uuid.UUID) (Row, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+apiKeyColumns+`
		FROM api_keys
		WHERE organization_id = $1 AND user_id = $2 AND is_active = true AND name LIKE 'Auto-generated%'
		ORDER BY created_at ASC
		LIMIT 1`,
		orgID, userID,
	)
	return scanRow(row)
}

// Deactivate marks an API key inactive. Returns pgx.ErrNoRows for unknown or
// already-revoked keys.
func (s *Store) Deactivate(ctx context.Context, orgID, keyID uuid.UUID) (Row, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE api_keys SET is_active = false, updated_at = NOW()
		WHERE id = $1 AND organization_id = $2 AND is_active = true
		RETURNING `+apiKeyColumns,
		keyID, orgID,
	)
	return scanRow(row)
}

// CheckKey implements auth.KeyChecker: a key is usable iff it is active and
// unexpired. The key's custom rate limit rides along for the proxy plane.
func (s *Store) CheckKey(ctx context.Context, id uuid.UUID) (auth.KeyStatus, error) {
	var isActive bool
	var rps *int
	var expiresAt pgtype.Timestamptz
	err := s.pool.QueryRow(ctx,
		`SELECT is_active, rate_limit_rps, expires_at FROM api_keys WHERE id = $1`, id,
	).Scan(&isActive, &rps, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.KeyStatus{}, nil
	}
	if err != nil {
		return auth.KeyStatus{}, fmt.Errorf("looking up api key: %w", err)
	}
	if expiresAt.Valid && expiresAt.Time.Before(time.Now()) {
		return auth.KeyStatus{}, nil
	}
	return auth.KeyStatus{Active: isActive, RateLimitRPS: rps}, nil
}
