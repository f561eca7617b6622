package apikey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redisgate/redisgate/internal/auth"
	"github.com/redisgate/redisgate/pkg/quota"
	"github.com/redisgate/redisgate/pkg/ratelimit"
)

// Service encapsulates API key business logic.
type Service struct {
	store   *Store
	tokens  *auth.TokenService
	quotas  *quota.Service
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

// NewService creates an API key Service.
func NewService(pool *pgxpool.Pool, tokens *auth.TokenService, quotas *quota.Service, limiter *ratelimit.Limiter, logger *slog.Logger) *Service {
	return &Service{
		store:   NewStore(pool),
		tokens:  tokens,
		quotas:  quotas,
		limiter: limiter,
		logger:  logger,
	}
}

// Store exposes the underlying store for middleware wiring.
func (s *Service) Store() *Store {
	return s.store
}

// Create issues a new API key after quota admission. The signed token is
// stored opaque in key_token.
func (s *Service) Create(ctx context.Context, orgID, userID uuid.UUID, req CreateRequest) (Response, error) {
	if err := s.quotas.CheckCanCreateAPIKey(ctx, orgID); err != nil {
		return Response{}, err
	}

	keyID := uuid.New()
	prefix := KeyPrefix(keyID)

	token, err := s.tokens.IssueAPIKey(auth.APIKeyClaims{
		APIKeyID:  keyID,
		UserID:    userID,
		OrgID:     orgID,
		Scopes:    req.Scopes,
		KeyPrefix: prefix,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		return Response{}, fmt.Errorf("issuing api key token: %w", err)
	}

	expires := pgtype.Timestamptz{}
	if req.ExpiresAt != nil {
		expires = pgtype.Timestamptz{Time: *req.ExpiresAt, Valid: true}
	}

	row, err := s.store.Create(ctx, CreateParams{
		ID:             keyID,
		Name:           req.Name,
		KeyToken:       token,
		KeyPrefix:      prefix,
		UserID:         userID,
		OrganizationID: orgID,
		Scopes:         req.Scopes,
		RateLimitRPS:   req.RateLimitRPS,
		ExpiresAt:      expires,
	})
	if err != nil {
		return Response{}, err
	}

	s.logger.Info("api key created", "key_prefix", prefix, "org_id", orgID)
	return row.ToResponse(), nil
}

// EnsureLoginKey returns the user's auto-generated full-access key for the
// organization, creating one on first login.
func (s *Service) EnsureLoginKey(ctx context.Context, orgID, userID uuid.UUID, email string) (string, error) {
	existing, err := s.store.FindLoginKey(ctx, orgID, userID)
	if err == nil {
		return existing.KeyToken, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("looking up login key: %w", err)
	}

	resp, err := s.Create(ctx, orgID, userID, CreateRequest{
		Name:   fmt.Sprintf("Auto-generated key for %s", email),
		Scopes: []string{"*"},
	})
	if err != nil {
		return "", err
	}
	return resp.KeyToken, nil
}

// Revoke deactivates a key and evicts its rate-limit bucket.
func (s *Service) Revoke(ctx context.Context, orgID, keyID uuid.UUID) error {
	row, err := s.store.Deactivate(ctx, orgID, keyID)
	if err != nil {
		return err
	}

	s.limiter.RemoveAPIKey(row.KeyToken)
	s.logger.Info("api key revoked", "key_prefix", row.KeyPrefix, "org_id", orgID)
	return nil
}

// DeactivateByID marks a key inactive without the org scope, used by the
// instance delete path for bound keys.
func (s *Service) DeactivateByID(ctx context.Context, keyID uuid.UUID) error {
	var keyToken string
	err := s.store.pool.QueryRow(ctx, `
		UPDATE api_keys SET is_active = false, updated_at = NOW()
		WHERE id = $1 AND is_active = true
		RETURNING key_token`,
		keyID,
	).Scan(&keyToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deactivating api key: %w", err)
	}

	s.limiter.RemoveAPIKey(keyToken)
	return nil
}
