// Package quota enforces per-organization ceilings on Redis instances,
// memory, and API keys. Counters are maintained transactionally so admission
// is a constant-time read.
package quota

import (
	"fmt"

	"github.com/google/uuid"
)

// Limit validation ranges for UpdateLimits.
const (
	MinInstances = 1
	MaxInstances = 1000
	MinMemoryGB  = 1
	MaxMemoryGB  = 10000
	MinAPIKeys   = 1
	MaxAPIKeys   = 1000
)

// warningThreshold is the utilization percentage at which Info carries a
// warning string.
const warningThreshold = 90.0

// Info reports an organization's quota usage.
type Info struct {
	OrganizationID      uuid.UUID `json:"organization_id"`
	MaxInstances        int       `json:"max_instances"`
	CurrentInstances    int       `json:"current_instances"`
	MaxMemoryGB         int       `json:"max_memory_gb"`
	CurrentMemoryMB     int       `json:"current_memory_mb"`
	AvailableMemoryMB   int       `json:"available_memory_mb"`
	MaxAPIKeys          int       `json:"max_api_keys"`
	CurrentAPIKeys      int       `json:"current_api_keys"`
	InstancesPercentage float64   `json:"instances_percentage"`
	MemoryPercentage    float64   `json:"memory_percentage"`
	Warnings            []string  `json:"warnings,omitempty"`
}

// MaxInstancesError reports instance-count admission failure.
type MaxInstancesError struct {
	Current, Max int
}

func (e *MaxInstancesError) Error() string {
	return fmt.Sprintf("maximum instances reached: %d/%d. Please upgrade your plan or delete unused instances", e.Current, e.Max)
}

// MemoryLimitError reports memory admission failure.
type MemoryLimitError struct {
	RequestedMB, AvailableMB, TotalGB int
}

func (e *MemoryLimitError) Error() string {
	return fmt.Sprintf("memory limit exceeded: requested %dMB, available %dMB (%dGB total)", e.RequestedMB, e.AvailableMB, e.TotalGB)
}

// MaxAPIKeysError reports API-key-count admission failure.
type MaxAPIKeysError struct {
	Current, Max int
}

func (e *MaxAPIKeysError) Error() string {
	return fmt.Sprintf("maximum API keys reached: %d/%d", e.Current, e.Max)
}

// UpdateRequest is the JSON body for PUT /api/organizations/{id}/quota.
type UpdateRequest struct {
	MaxInstances *int `json:"max_instances,omitempty"`
	MaxMemoryGB  *int `json:"max_memory_gb,omitempty"`
	MaxAPIKeys   *int `json:"max_api_keys,omitempty"`
}

// Validate checks the requested limits against the allowed ranges.
func (r *UpdateRequest) Validate() error {
	if r.MaxInstances == nil && r.MaxMemoryGB == nil && r.MaxAPIKeys == nil {
		return fmt.Errorf("no limits provided")
	}
	if r.MaxInstances != nil && (*r.MaxInstances < MinInstances || *r.MaxInstances > MaxInstances) {
		return fmt.Errorf("max_instances must be between %d and %d", MinInstances, MaxInstances)
	}
	if r.MaxMemoryGB != nil && (*r.MaxMemoryGB < MinMemoryGB || *r.MaxMemoryGB > MaxMemoryGB) {
		return fmt.Errorf("max_memory_gb must be between %d and %d", MinMemoryGB, MaxMemoryGB)
	}
	if r.MaxAPIKeys != nil && (*r.MaxAPIKeys < MinAPIKeys || *r.MaxAPIKeys > MaxAPIKeys) {
		return fmt.Errorf("max_api_keys must be between %d and %d", MinAPIKeys, MaxAPIKeys)
	}
	return nil
}

// computeInfo fills the derived fields of an Info from its raw counters.
func computeInfo(info Info) Info {
	maxMemoryMB := info.MaxMemoryGB * 1024
	info.AvailableMemoryMB = maxMemoryMB - info.CurrentMemoryMB

	if info.MaxInstances > 0 {
		info.InstancesPercentage = float64(info.CurrentInstances) / float64(info.MaxInstances) * 100.0
	}
	if maxMemoryMB > 0 {
		info.MemoryPercentage = float64(info.CurrentMemoryMB) / float64(maxMemoryMB) * 100.0
	}

	if info.InstancesPercentage >= warningThreshold {
		info.Warnings = append(info.Warnings,
			fmt.Sprintf("instance quota is %.0f%% used (%d/%d)", info.InstancesPercentage, info.CurrentInstances, info.MaxInstances))
	}
	if info.MemoryPercentage >= warningThreshold {
		info.Warnings = append(info.Warnings,
			fmt.Sprintf("memory quota is %.0f%% used (%dMB/%dGB)", info.MemoryPercentage, info.CurrentMemoryMB, info.MaxMemoryGB))
	}

	return info
}
