package redisproxy

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func testPool() *Pool {
	return NewPool(slog.New(slog.DiscardHandler))
}

func TestNewPoolIsEmpty(t *testing.T) {
	p := testPool()
	if p.ConnectionCount() != 0 {
		t.Errorf("ConnectionCount = %d, want 0", p.ConnectionCount())
	}
	if p.HasInstance("any") {
		t.Error("HasInstance on empty pool = true")
	}
}

func TestGetClientMissing(t *testing.T) {
	p := testPool()
	_, err := p.GetClient("nonexistent-id")
	if !errors.Is(err, ErrNoConnection) {
		t.Errorf("GetClient error = %v, want ErrNoConnection", err)
	}
}

func TestRemoveInstanceIdempotent(t *testing.T) {
	p := testPool()

	// Removing an absent instance must not panic or error.
	p.RemoveInstance("test-instance")
	p.RemoveInstance("test-instance")

	if p.ConnectionCount() != 0 {
		t.Errorf("ConnectionCount = %d, want 0", p.ConnectionCount())
	}
}

func TestHealthCheckMissingInstance(t *testing.T) {
	p := testPool()
	if _, err := p.HealthCheck(context.Background(), "absent"); !errors.Is(err, ErrNoConnection) {
		t.Errorf("HealthCheck error = %v, want ErrNoConnection", err)
	}
}

func TestConnectUnreachableHost(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping retry loop in short mode")
	}

	p := testPool()
	err := p.Connect(context.Background(), "test-id", "invalid-host-that-does-not-exist.local", 6379, "")
	if err == nil {
		t.Fatal("Connect to unreachable host succeeded")
	}
	if !strings.Contains(err.Error(), "failed to connect after 3 attempts") {
		t.Errorf("error = %v, want attempt count in message", err)
	}
	// No client may be retained after a failed connect.
	if p.HasInstance("test-id") {
		t.Error("failed connect left a client in the pool")
	}
}

func TestConnectionURL(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		port     int
		password string
		want     string
	}{
		{"no password", "10.0.0.1", 6379, "", "redis://10.0.0.1:6379"},
		{"with password", "redis-cache-service", 6379, "s3cret", "redis://:s3cret@redis-cache-service:6379"},
		{"password with specials", "127.0.0.1", 6380, "p@ss%word", "redis://:p%40ss%25word@127.0.0.1:6380"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := connectionURL(tt.host, tt.port, tt.password); got != tt.want {
				t.Errorf("connectionURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
