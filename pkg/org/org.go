// Package org manages organizations, memberships, and role checks.
package org

import (
	"time"

	"github.com/google/uuid"
)

// Membership roles, ordered by privilege.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// IsValidRole reports whether r is a known membership role.
func IsValidRole(r string) bool {
	return r == RoleOwner || r == RoleAdmin || r == RoleMember
}

// Organization is a tenant with quota ceilings.
type Organization struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	Slug              string    `json:"slug"`
	MaxRedisInstances int       `json:"max_redis_instances"`
	MaxMemoryGB       int       `json:"max_memory_gb"`
	MaxAPIKeys        int       `json:"max_api_keys"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Membership links a user to an organization with a role.
type Membership struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	UserID         uuid.UUID `json:"user_id"`
	Role           string    `json:"role"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateRequest is the JSON body for POST /api/organizations.
type CreateRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
	Slug string `json:"slug" validate:"required,min=2,max=63"`
}

// UpdateRequest is the JSON body for PUT /api/organizations/{id}.
type UpdateRequest struct {
	Name *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
}
