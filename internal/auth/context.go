package auth

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const (
	currentUserKey ctxKey = iota
	apiKeyIdentityKey
)

// CurrentUser is the authenticated interactive identity attached to the
// request context by SessionMiddleware.
type CurrentUser struct {
	ID       uuid.UUID
	Email    string
	Username string
	OrgID    *uuid.UUID
}

// APIKeyIdentity is the authenticated machine identity attached to the
// request context by APIKeyMiddleware.
type APIKeyIdentity struct {
	Claims       *APIKeyClaims
	RawToken     string
	RateLimitRPS *int
}

// WithCurrentUser returns a context carrying the given user.
func WithCurrentUser(ctx context.Context, u *CurrentUser) context.Context {
	return context.WithValue(ctx, currentUserKey, u)
}

// UserFromContext extracts the current user, or nil when unauthenticated.
func UserFromContext(ctx context.Context) *CurrentUser {
	u, _ := ctx.Value(currentUserKey).(*CurrentUser)
	return u
}

// WithAPIKeyIdentity returns a context carrying the given API key identity.
func WithAPIKeyIdentity(ctx context.Context, id *APIKeyIdentity) context.Context {
	return context.WithValue(ctx, apiKeyIdentityKey, id)
}

// APIKeyFromContext extracts the API key identity, or nil.
func APIKeyFromContext(ctx context.Context) *APIKeyIdentity {
	id, _ := ctx.Value(apiKeyIdentityKey).(*APIKeyIdentity)
	return id
}
