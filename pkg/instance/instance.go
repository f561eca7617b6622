// Package instance implements the provisioning coordinator: the only place
// where relational metadata and Kubernetes state are reconciled.
package instance

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Instance statuses.
const (
	StatusPending     = "pending"
	StatusRunning     = "running"
	StatusDevelopment = "development"
	StatusFailed      = "failed"
	StatusTerminating = "terminating"
)

// Health statuses.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
	HealthUnknown   = "unknown"
)

// Memory bounds for a single instance, in bytes.
const (
	MinMemoryBytes = 1 << 20  // 1 MiB
	MaxMemoryBytes = 64 << 30 // 64 GiB
)

// DefaultRedisVersion is used when the request does not pin one.
const DefaultRedisVersion = "7.2"

// DefaultPort is the Redis port every instance listens on.
const DefaultPort = 6379

// CreateRequest is the JSON body for POST
// /api/organizations/{id}/redis-instances.
type CreateRequest struct {
	Name               string  `json:"name" validate:"required,min=1,max=100"`
	Slug               string  `json:"slug" validate:"required,min=2,max=63"`
	MaxMemory          int64   `json:"max_memory" validate:"required,gte=1048576,lte=68719476736"`
	RedisVersion       *string `json:"redis_version,omitempty"`
	PersistenceEnabled *bool   `json:"persistence_enabled,omitempty"`
	BackupEnabled      *bool   `json:"backup_enabled,omitempty"`
}

// Row represents a row of the redis_instances table.
type Row struct {
	ID                 uuid.UUID
	Name               string
	Slug               string
	OrganizationID     uuid.UUID
	APIKeyID           pgtype.UUID
	Port               int
	Domain             string
	Namespace          string
	PodName            string
	ServiceName        string
	RedisVersion       string
	MaxMemory          int64
	CurrentMemory      int64
	PasswordHash       string
	Status             string
	HealthStatus       string
	PersistenceEnabled bool
	BackupEnabled      bool
	LastBackupAt       pgtype.Timestamptz
	DeletedAt          pgtype.Timestamptz
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Response is the canonical JSON shape of an instance.
type Response struct {
	ID                 uuid.UUID  `json:"id"`
	Name               string     `json:"name"`
	Slug               string     `json:"slug"`
	OrganizationID     uuid.UUID  `json:"organization_id"`
	APIKeyID           *uuid.UUID `json:"api_key_id,omitempty"`
	Port               int        `json:"port"`
	Domain             string     `json:"domain"`
	Namespace          string     `json:"namespace"`
	PodName            string     `json:"pod_name"`
	ServiceName        string     `json:"service_name"`
	RedisVersion       string     `json:"redis_version"`
	MaxMemory          int64      `json:"max_memory"`
	CurrentMemory      int64      `json:"current_memory"`
	Status             string     `json:"status"`
	HealthStatus       string     `json:"health_status"`
	PersistenceEnabled bool       `json:"persistence_enabled"`
	BackupEnabled      bool       `json:"backup_enabled"`
	LastBackupAt       *time.Time `json:"last_backup_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ToResponse converts a Row to its JSON shape.
func (r *Row) ToResponse() Response {
	resp := Response{
		ID:                 r.ID,
		Name:               r.Name,
		Slug:               r.Slug,
		OrganizationID:     r.OrganizationID,
		Port:               r.Port,
		Domain:             r.Domain,
		Namespace:          r.Namespace,
		PodName:            r.PodName,
		ServiceName:        r.ServiceName,
		RedisVersion:       r.RedisVersion,
		MaxMemory:          r.MaxMemory,
		CurrentMemory:      r.CurrentMemory,
		Status:             r.Status,
		HealthStatus:       r.HealthStatus,
		PersistenceEnabled: r.PersistenceEnabled,
		BackupEnabled:      r.BackupEnabled,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if r.APIKeyID.Valid {
		id := uuid.UUID(r.APIKeyID.Bytes)
		resp.APIKeyID = &id
	}
	if r.LastBackupAt.Valid {
		t := r.LastBackupAt.Time
		resp.LastBackupAt = &t
	}
	return resp
}

// ConnectionHost returns the upstream host for the proxy plane: domain, then
// service name, then loopback. Development-mode instances always point at
// the shared local Redis.
func (r *Row) ConnectionHost() string {
	if r.Status == StatusDevelopment {
		return "127.0.0.1"
	}
	if r.Domain != "" {
		return r.Domain
	}
	if r.ServiceName != "" {
		return r.ServiceName
	}
	return "127.0.0.1"
}
