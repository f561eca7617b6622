package instance

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

func TestGeneratePassword(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 16; i++ {
		pw, err := generatePassword()
		if err != nil {
			t.Fatalf("generatePassword() error = %v", err)
		}
		if len(pw) != passwordLength {
			t.Fatalf("password length = %d, want %d", len(pw), passwordLength)
		}
		for _, c := range pw {
			if !strings.ContainsRune(passwordCharset, c) {
				t.Fatalf("password contains %q outside charset", c)
			}
		}
		if seen[pw] {
			t.Fatal("duplicate password generated")
		}
		seen[pw] = true
	}
}

func TestNamespaceFor(t *testing.T) {
	orgID := uuid.MustParse("a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a11")
	got := namespaceFor(orgID)
	want := "redis-a0eebc999c0b4ef8bb6d6bb9bd380a11"
	if got != want {
		t.Errorf("namespaceFor() = %q, want %q", got, want)
	}
}

func TestConnectionHost(t *testing.T) {
	tests := []struct {
		name string
		row  Row
		want string
	}{
		{
			"development mode uses loopback",
			Row{Status: StatusDevelopment, Domain: "dev-cache-1", ServiceName: "redis-cache-1-service"},
			"127.0.0.1",
		},
		{
			"domain preferred",
			Row{Status: StatusRunning, Domain: "redis-cache-1-service.ns.svc.cluster.local", ServiceName: "redis-cache-1-service"},
			"redis-cache-1-service.ns.svc.cluster.local",
		},
		{
			"service name fallback",
			Row{Status: StatusRunning, ServiceName: "redis-cache-1-service"},
			"redis-cache-1-service",
		},
		{
			"loopback fallback",
			Row{Status: StatusPending},
			"127.0.0.1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.row.ConnectionHost(); got != tt.want {
				t.Errorf("ConnectionHost() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToResponseDefaults(t *testing.T) {
	row := Row{
		ID:             uuid.New(),
		Name:           "cache",
		Slug:           "cache-1",
		OrganizationID: uuid.New(),
		Port:           6379,
		Domain:         "dev-cache-1",
		Status:         StatusDevelopment,
		HealthStatus:   HealthUnknown,
	}

	resp := row.ToResponse()
	if resp.APIKeyID != nil {
		t.Error("APIKeyID should be nil for unbound instance")
	}
	if resp.LastBackupAt != nil {
		t.Error("LastBackupAt should be nil when never backed up")
	}

	keyID := uuid.New()
	row.APIKeyID = pgtype.UUID{Bytes: keyID, Valid: true}
	resp = row.ToResponse()
	if resp.APIKeyID == nil || *resp.APIKeyID != keyID {
		t.Errorf("APIKeyID = %v, want %v", resp.APIKeyID, keyID)
	}
}
