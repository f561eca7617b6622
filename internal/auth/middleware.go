package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/redisgate/redisgate/internal/httpserver"
	"github.com/redisgate/redisgate/internal/telemetry"
)

// UserLoader resolves a user id from a verified token to a live identity.
// Implemented by the user store; returns ErrUserNotActive for disabled
// accounts and a not-found error for unknown ids.
type UserLoader interface {
	LoadActiveUser(ctx context.Context, id uuid.UUID) (*CurrentUser, error)
}

// KeyStatus is the live state of an API key row.
type KeyStatus struct {
	Active       bool
	RateLimitRPS *int
}

// KeyChecker reports whether an API key row is still active and unexpired,
// along with its custom rate limit. Implemented by the API key store.
type KeyChecker interface {
	CheckKey(ctx context.Context, id uuid.UUID) (KeyStatus, error)
}

// ErrUserNotActive marks a verified token whose user has been deactivated.
var ErrUserNotActive = errors.New("user account is not active")

// BearerToken extracts the token from an Authorization: Bearer header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// SessionMiddleware authenticates /api and /auth/me requests with a session
// token, loads the user, rejects inactive accounts, and attaches CurrentUser
// to the request context.
func SessionMiddleware(tokens *TokenService, users UserLoader, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := BearerToken(r)
			if !ok {
				unauthorized(w, logger, "missing authorization header", ErrMissingToken)
				return
			}

			claims, err := tokens.VerifySession(raw)
			if err != nil {
				unauthorized(w, logger, "invalid token", err)
				return
			}

			user, err := users.LoadActiveUser(r.Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, ErrUserNotActive) {
					unauthorized(w, logger, "user account is not active", err)
				} else {
					unauthorized(w, logger, "user not found", err)
				}
				return
			}

			// The org claim reflects membership at issue time; keep it so
			// handlers see the same org the token was scoped to.
			user.OrgID = claims.OrgID

			ctx := WithCurrentUser(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// APIKeyMiddleware authenticates /redis requests with an API key token,
// verifies the backing key row is still active, and attaches APIKeyIdentity
// to the request context.
func APIKeyMiddleware(tokens *TokenService, keys KeyChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			telemetry.APIKeyRequestsTotal.Inc()

			raw, ok := BearerToken(r)
			if !ok {
				apiKeyUnauthorized(w, logger, "missing API key", ErrMissingToken)
				return
			}

			claims, err := tokens.VerifyAPIKey(raw)
			if err != nil {
				apiKeyUnauthorized(w, logger, "invalid API key", err)
				return
			}

			status, err := keys.CheckKey(r.Context(), claims.APIKeyID)
			if err != nil {
				apiKeyUnauthorized(w, logger, "API key lookup failed", err)
				return
			}
			if !status.Active {
				apiKeyUnauthorized(w, logger, "API key has been revoked", ErrRevoked)
				return
			}

			ctx := WithAPIKeyIdentity(r.Context(), &APIKeyIdentity{
				Claims:       claims,
				RawToken:     raw,
				RateLimitRPS: status.RateLimitRPS,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, logger *slog.Logger, message string, err error) {
	telemetry.AuthFailuresTotal.Inc()
	logger.Warn("session authentication failed", "error", err)
	httpserver.RespondError(w, http.StatusUnauthorized, message)
}

func apiKeyUnauthorized(w http.ResponseWriter, logger *slog.Logger, message string, err error) {
	telemetry.APIKeyAuthFailuresTotal.Inc()
	logger.Warn("API key authentication failed", "error", err)
	httpserver.RespondError(w, http.StatusUnauthorized, message)
}
