package instance

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const instanceColumns = `id, name, slug, organization_id, api_key_id, port, domain, namespace, pod_name, service_name, redis_version, max_memory, current_memory, password_hash, status, health_status, persistence_enabled, backup_enabled, last_backup_at, deleted_at, created_at, updated_at`

// ErrNotFound marks a lookup of a missing or soft-deleted instance.
var ErrNotFound = errors.New("redis instance not found")

// Store provides database operations for Redis instances.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an instance Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanRow(row pgx.Row) (Row, error) {
	var r Row
	err := row.Scan(
		&r.ID, &r.Name, &r.Slug, &r.OrganizationID, &r.APIKeyID, &r.Port,
		&r.Domain, &r.Namespace, &r.PodName, &r.ServiceName, &r.RedisVersion,
		&r.MaxMemory, &r.CurrentMemory, &r.PasswordHash, &r.Status,
		&r.HealthStatus, &r.PersistenceEnabled, &r.BackupEnabled,
		&r.LastBackupAt, &r.DeletedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

// InsertParams holds the fields of a new instance row.
type InsertParams struct {
	ID             uuid.UUID
	Name           string
	Slug           string
	OrganizationID uuid.UUID
	Port           int
	Domain         string
	Namespace      string
	PodName        string
	ServiceName    string
	RedisVersion   string
	MaxMemory      int64
	PasswordHash   string
	Status         string
	Persistence    bool
	Backup         bool
}

// InsertTx inserts an instance row inside the caller's transaction. The
// partial unique indexes on (organization_id, slug) and domain enforce
// uniqueness among non-deleted rows.
func (s *Store) InsertTx(ctx context.Context, tx pgx.Tx, p InsertParams) (Row, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO redis_instances (
			id, name, slug, organization_id, port, domain, namespace,
			pod_name, service_name, redis_version, max_memory, current_memory,
			password_hash, status, health_status, persistence_enabled, backup_enabled
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, $12, $13, $14, $15, $16)
		RETURNING `+instanceColumns,
		p.ID, p.Name, p.Slug, p.OrganizationID, p.Port, p.Domain, p.Namespace,
		p.PodName, p.ServiceName, p.RedisVersion, p.MaxMemory,
		p.PasswordHash, p.Status, HealthUnknown, p.Persistence, p.Backup,
	)
	return scanRow(row)
}

// SlugExistsTx reports whether a non-deleted instance already uses the slug
// within the organization, inside the caller's transaction.
func (s *Store) SlugExistsTx(ctx context.Context, tx pgx.Tx, orgID uuid.UUID, slug string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM redis_instances
			WHERE organization_id = $1 AND slug = $2 AND deleted_at IS NULL
		)`,
		orgID, slug,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking slug uniqueness: %w", err)
	}
	return exists, nil
}

// GetForOrg returns a non-deleted instance scoped to its organization.
func (s *Store) GetForOrg(ctx context.Context, orgID, id uuid.UUID) (Row, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+instanceColumns+`
		FROM redis_instances
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL`,
		id, orgID,
	)
	r, err := scanRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrNotFound
	}
	if err != nil {
		return Row{}, fmt.Errorf("getting instance: %w", err)
	}
	return r, nil
}

// Get returns a non-deleted instance by id, for the proxy plane.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Row, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+instanceColumns+`
		FROM redis_instances
		WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	r, err := scanRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrNotFound
	}
	if err != nil {
		return Row{}, fmt.Errorf("getting instance: %w", err)
	}
	return r, nil
}

// List returns the organization's non-deleted instances, newest first.
func (s *Store) List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]Row, int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+instanceColumns+`
		FROM redis_instances
		WHERE organization_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		orgID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing instances: %w", err)
	}
	defer rows.Close()

	var items []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(
			&r.ID, &r.Name, &r.Slug, &r.OrganizationID, &r.APIKeyID, &r.Port,
			&r.Domain, &r.Namespace, &r.PodName, &r.ServiceName, &r.RedisVersion,
			&r.MaxMemory, &r.CurrentMemory, &r.PasswordHash, &r.Status,
			&r.HealthStatus, &r.PersistenceEnabled, &r.BackupEnabled,
			&r.LastBackupAt, &r.DeletedAt, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scanning instance row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating instance rows: %w", err)
	}

	var total int64
	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM redis_instances WHERE organization_id = $1 AND deleted_at IS NULL`,
		orgID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting instances: %w", err)
	}

	return items, total, nil
}

// UpdateStatus persists a status change observed from Kubernetes.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE redis_instances SET status = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("updating instance status: %w", err)
	}
	return nil
}

// SoftDeleteTx marks the instance deleted inside the caller's transaction.
func (s *Store) SoftDeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	tag, err := tx.Exec(ctx,
		`UPDATE redis_instances SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("soft deleting instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountActive returns the number of non-deleted instances, for the gauges
// and stats surfaces.
func (s *Store) CountActive(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM redis_instances WHERE deleted_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting instances: %w", err)
	}
	return n, nil
}
