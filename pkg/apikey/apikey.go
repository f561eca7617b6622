// Package apikey manages scoped API keys for Redis access. The key token is
// a signed JWT stored opaque; revocation is a database flag checked on every
// use.
package apikey

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// CreateRequest is the JSON body for POST /api/organizations/{id}/api-keys.
type CreateRequest struct {
	Name         string     `json:"name" validate:"required,min=1,max=100"`
	Scopes       []string   `json:"scopes" validate:"required,min=1"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	RateLimitRPS *int       `json:"rate_limit_rps,omitempty" validate:"omitempty,gte=1,lte=100000"`
}

// Response is the JSON shape of a single API key (token included: keys are
// JWTs the caller must present verbatim).
type Response struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	KeyToken       string     `json:"key_token"`
	KeyPrefix      string     `json:"key_prefix"`
	UserID         uuid.UUID  `json:"user_id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	Scopes         []string   `json:"scopes"`
	IsActive       bool       `json:"is_active"`
	RateLimitRPS   *int       `json:"rate_limit_rps,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Row represents a row of the api_keys table.
type Row struct {
	ID             uuid.UUID
	Name           string
	KeyToken       string
	KeyPrefix      string
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	Scopes         []string
	IsActive       bool
	RateLimitRPS   *int
	ExpiresAt      pgtype.Timestamptz
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ToResponse converts a Row to its JSON shape.
func (r *Row) ToResponse() Response {
	resp := Response{
		ID:             r.ID,
		Name:           r.Name,
		KeyToken:       r.KeyToken,
		KeyPrefix:      r.KeyPrefix,
		UserID:         r.UserID,
		OrganizationID: r.OrganizationID,
		Scopes:         r.Scopes,
		IsActive:       r.IsActive,
		RateLimitRPS:   r.RateLimitRPS,
		CreatedAt:      r.CreatedAt,
	}
	if resp.Scopes == nil {
		resp.Scopes = []string{}
	}
	if r.ExpiresAt.Valid {
		t := r.ExpiresAt.Time
		resp.ExpiresAt = &t
	}
	return resp
}

// KeyPrefix derives the 12-character display identifier from a key id.
func KeyPrefix(id uuid.UUID) string {
	return "rg_" + strings.ReplaceAll(id.String(), "-", "")[:12]
}
