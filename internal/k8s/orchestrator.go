// Package k8s applies and tears down the Kubernetes objects backing managed
// Redis instances. The Orchestrator capability may be absent at runtime;
// callers treat a failed constructor as the signal to run in development
// mode.
package k8s

import (
	"context"

	"github.com/google/uuid"
)

// Instance statuses derived from Kubernetes deployment readiness.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusFailed  = "failed"
)

// DeploymentConfig carries everything needed to template the Deployment and
// Service for one Redis instance.
type DeploymentConfig struct {
	Name           string
	Slug           string
	Namespace      string
	OrganizationID uuid.UUID
	InstanceID     uuid.UUID
	RedisVersion   string
	MaxMemory      int64 // bytes
	RedisPassword  string
	Port           int32
}

// DeploymentResult describes the applied objects.
type DeploymentResult struct {
	DeploymentName string
	ServiceName    string
	Namespace      string
	Domain         string
	Port           int32
}

// Orchestrator is the capability of applying Redis workloads to a cluster.
type Orchestrator interface {
	// CreateInstance applies the Deployment and Service for the instance.
	// Apply is idempotent: re-applying an existing instance succeeds.
	CreateInstance(ctx context.Context, cfg DeploymentConfig) (*DeploymentResult, error)

	// DeleteInstance removes the instance's Deployment and Service.
	// Deleting absent objects is not an error.
	DeleteInstance(ctx context.Context, namespace, slug string) error

	// DeploymentStatus reports the instance status derived from deployment
	// readiness: running, pending, or failed.
	DeploymentStatus(ctx context.Context, namespace, slug string) (string, error)
}

// DeploymentName returns the canonical Deployment name for a slug.
func DeploymentName(slug string) string {
	return "redis-" + slug
}

// ServiceName returns the canonical Service name for a slug.
func ServiceName(slug string) string {
	return "redis-" + slug + "-service"
}
