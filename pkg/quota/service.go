package quota

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrOrgNotFound marks a quota operation against an unknown or inactive
// organization.
var ErrOrgNotFound = errors.New("organization not found")

// Service provides quota admission control and reporting.
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates a quota Service.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// GetInfo returns the organization's quota usage, including warnings at
// high utilization. A missing counter row reads as zero usage.
func (s *Service) GetInfo(ctx context.Context, orgID uuid.UUID) (Info, error) {
	var info Info
	err := s.pool.QueryRow(ctx, `
		SELECT
			o.id,
			o.max_redis_instances,
			o.max_memory_gb,
			o.max_api_keys,
			COALESCE(q.current_instances, 0),
			COALESCE(q.current_memory_mb, 0),
			COUNT(DISTINCT ak.id)
		FROM organizations o
		LEFT JOIN instance_quotas q ON o.id = q.organization_id
		LEFT JOIN api_keys ak ON o.id = ak.organization_id AND ak.is_active = true
		WHERE o.id = $1 AND o.is_active = true
		GROUP BY o.id, o.max_redis_instances, o.max_memory_gb, o.max_api_keys,
		         q.current_instances, q.current_memory_mb`,
		orgID,
	).Scan(
		&info.OrganizationID, &info.MaxInstances, &info.MaxMemoryGB, &info.MaxAPIKeys,
		&info.CurrentInstances, &info.CurrentMemoryMB, &info.CurrentAPIKeys,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Info{}, ErrOrgNotFound
	}
	if err != nil {
		return Info{}, fmt.Errorf("querying quota info: %w", err)
	}

	return computeInfo(info), nil
}

// CheckCanCreateInstance is the read-only admission check. The provisioning
// path re-checks under lock with CheckCanCreateInstanceTx before inserting.
func (s *Service) CheckCanCreateInstance(ctx context.Context, orgID uuid.UUID, memoryMB int) error {
	info, err := s.GetInfo(ctx, orgID)
	if err != nil {
		return err
	}
	return admit(info, memoryMB)
}

// CheckCanCreateInstanceTx performs admission inside the caller's
// transaction, locking the counter row so a concurrent creation cannot slip
// past the ceiling.
func (s *Service) CheckCanCreateInstanceTx(ctx context.Context, tx pgx.Tx, orgID uuid.UUID, memoryMB int) error {
	var info Info
	err := tx.QueryRow(ctx, `
		SELECT id, max_redis_instances, max_memory_gb, max_api_keys
		FROM organizations
		WHERE id = $1 AND is_active = true`,
		orgID,
	).Scan(&info.OrganizationID, &info.MaxInstances, &info.MaxMemoryGB, &info.MaxAPIKeys)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrOrgNotFound
	}
	if err != nil {
		return fmt.Errorf("querying organization limits: %w", err)
	}

	err = tx.QueryRow(ctx, `
		SELECT current_instances, current_memory_mb
		FROM instance_quotas
		WHERE organization_id = $1
		FOR UPDATE`,
		orgID,
	).Scan(&info.CurrentInstances, &info.CurrentMemoryMB)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("locking quota counters: %w", err)
	}

	return admit(info, memoryMB)
}

func admit(info Info, memoryMB int) error {
	if info.CurrentInstances >= info.MaxInstances {
		return &MaxInstancesError{Current: info.CurrentInstances, Max: info.MaxInstances}
	}

	maxMemoryMB := info.MaxMemoryGB * 1024
	if info.CurrentMemoryMB+memoryMB > maxMemoryMB {
		return &MemoryLimitError{
			RequestedMB: memoryMB,
			AvailableMB: maxMemoryMB - info.CurrentMemoryMB,
			TotalGB:     info.MaxMemoryGB,
		}
	}
	return nil
}

// CheckCanCreateAPIKey fails when the organization is at its API key
// ceiling.
func (s *Service) CheckCanCreateAPIKey(ctx context.Context, orgID uuid.UUID) error {
	var max, current int
	err := s.pool.QueryRow(ctx, `
		SELECT o.max_api_keys, COUNT(ak.id)
		FROM organizations o
		LEFT JOIN api_keys ak ON o.id = ak.organization_id AND ak.is_active = true
		WHERE o.id = $1 AND o.is_active = true
		GROUP BY o.id, o.max_api_keys`,
		orgID,
	).Scan(&max, &current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrOrgNotFound
	}
	if err != nil {
		return fmt.Errorf("querying api key quota: %w", err)
	}

	if current >= max {
		return &MaxAPIKeysError{Current: current, Max: max}
	}
	return nil
}

// IncrementTx records a created instance on the counter row, creating the
// row on first use.
func (s *Service) IncrementTx(ctx context.Context, tx pgx.Tx, orgID uuid.UUID, memoryMB int) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO instance_quotas (organization_id, current_instances, current_memory_mb)
		VALUES ($1, 1, $2)
		ON CONFLICT (organization_id)
		DO UPDATE SET
			current_instances = instance_quotas.current_instances + 1,
			current_memory_mb = instance_quotas.current_memory_mb + EXCLUDED.current_memory_mb,
			updated_at = NOW()`,
		orgID, memoryMB,
	)
	if err != nil {
		return fmt.Errorf("incrementing quota counters: %w", err)
	}
	return nil
}

// DecrementTx records a deleted instance on the counter row, clamping at
// zero.
func (s *Service) DecrementTx(ctx context.Context, tx pgx.Tx, orgID uuid.UUID, memoryMB int) error {
	_, err := tx.Exec(ctx, `
		UPDATE instance_quotas SET
			current_instances = GREATEST(current_instances - 1, 0),
			current_memory_mb = GREATEST(current_memory_mb - $2, 0),
			updated_at = NOW()
		WHERE organization_id = $1`,
		orgID, memoryMB,
	)
	if err != nil {
		return fmt.Errorf("decrementing quota counters: %w", err)
	}
	return nil
}

// UpdateLimits sets new quota ceilings. Nil fields are left unchanged.
func (s *Service) UpdateLimits(ctx context.Context, orgID uuid.UUID, req UpdateRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	sets := make([]string, 0, 3)
	args := []any{orgID}
	if req.MaxInstances != nil {
		args = append(args, *req.MaxInstances)
		sets = append(sets, fmt.Sprintf("max_redis_instances = $%d", len(args)))
	}
	if req.MaxMemoryGB != nil {
		args = append(args, *req.MaxMemoryGB)
		sets = append(sets, fmt.Sprintf("max_memory_gb = $%d", len(args)))
	}
	if req.MaxAPIKeys != nil {
		args = append(args, *req.MaxAPIKeys)
		sets = append(sets, fmt.Sprintf("max_api_keys = $%d", len(args)))
	}

	query := fmt.Sprintf(
		"UPDATE organizations SET %s, updated_at = NOW() WHERE id = $1 AND is_active = true",
		strings.Join(sets, ", "),
	)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating quota limits: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrgNotFound
	}
	return nil
}
