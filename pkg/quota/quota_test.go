package quota

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestAdmit(t *testing.T) {
	base := Info{
		OrganizationID:   uuid.New(),
		MaxInstances:     5,
		CurrentInstances: 2,
		MaxMemoryGB:      1,
		CurrentMemoryMB:  512,
	}

	t.Run("within limits", func(t *testing.T) {
		if err := admit(base, 256); err != nil {
			t.Errorf("admit() error = %v", err)
		}
	})

	t.Run("instance ceiling", func(t *testing.T) {
		info := base
		info.CurrentInstances = 5
		err := admit(info, 64)
		var maxErr *MaxInstancesError
		if !errors.As(err, &maxErr) {
			t.Fatalf("admit() error = %v, want MaxInstancesError", err)
		}
		if maxErr.Current != 5 || maxErr.Max != 5 {
			t.Errorf("MaxInstancesError = %+v, want 5/5", maxErr)
		}
	})

	t.Run("memory ceiling", func(t *testing.T) {
		err := admit(base, 600)
		var memErr *MemoryLimitError
		if !errors.As(err, &memErr) {
			t.Fatalf("admit() error = %v, want MemoryLimitError", err)
		}
		if memErr.RequestedMB != 600 || memErr.AvailableMB != 512 || memErr.TotalGB != 1 {
			t.Errorf("MemoryLimitError = %+v", memErr)
		}
	})

	t.Run("exact fit admitted", func(t *testing.T) {
		if err := admit(base, 512); err != nil {
			t.Errorf("admit() at exact capacity error = %v", err)
		}
	})
}

func TestComputeInfoPercentagesAndWarnings(t *testing.T) {
	info := computeInfo(Info{
		MaxInstances:     10,
		CurrentInstances: 9,
		MaxMemoryGB:      1,
		CurrentMemoryMB:  256,
	})

	if info.InstancesPercentage != 90.0 {
		t.Errorf("InstancesPercentage = %v, want 90", info.InstancesPercentage)
	}
	if info.MemoryPercentage != 25.0 {
		t.Errorf("MemoryPercentage = %v, want 25", info.MemoryPercentage)
	}
	if info.AvailableMemoryMB != 768 {
		t.Errorf("AvailableMemoryMB = %d, want 768", info.AvailableMemoryMB)
	}

	if len(info.Warnings) != 1 || !strings.Contains(info.Warnings[0], "instance quota") {
		t.Errorf("Warnings = %v, want one instance warning", info.Warnings)
	}
}

func TestComputeInfoNoWarningsBelowThreshold(t *testing.T) {
	info := computeInfo(Info{
		MaxInstances:     10,
		CurrentInstances: 8,
		MaxMemoryGB:      1,
		CurrentMemoryMB:  512,
	})
	if len(info.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", info.Warnings)
	}
}

func TestUpdateRequestValidate(t *testing.T) {
	iv := func(n int) *int { return &n }

	tests := []struct {
		name    string
		req     UpdateRequest
		wantErr bool
	}{
		{"empty", UpdateRequest{}, true},
		{"instances lower bound", UpdateRequest{MaxInstances: iv(1)}, false},
		{"instances upper bound", UpdateRequest{MaxInstances: iv(1000)}, false},
		{"instances zero", UpdateRequest{MaxInstances: iv(0)}, true},
		{"instances too high", UpdateRequest{MaxInstances: iv(1001)}, true},
		{"memory lower bound", UpdateRequest{MaxMemoryGB: iv(1)}, false},
		{"memory upper bound", UpdateRequest{MaxMemoryGB: iv(10000)}, false},
		{"memory zero", UpdateRequest{MaxMemoryGB: iv(0)}, true},
		{"memory too high", UpdateRequest{MaxMemoryGB: iv(10001)}, true},
		{"api keys valid", UpdateRequest{MaxAPIKeys: iv(10)}, false},
		{"api keys too high", UpdateRequest{MaxAPIKeys: iv(1001)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.req.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
