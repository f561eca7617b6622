// Package redisproxy implements the HTTP-to-Redis proxy plane: the upstream
// connection pool, command dispatch, and the /redis route surface.
package redisproxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"

	"github.com/redisgate/redisgate/internal/telemetry"
)

const (
	maxRetryAttempts = 3
	retryDelay       = 1000 * time.Millisecond
)

// ErrNoConnection is returned when no client exists for an instance.
var ErrNoConnection = errors.New("no connection found for instance")

// Pool maps instance IDs to connected Redis clients. Readers (every proxied
// command) share the lock; writers (connect, remove) are rare. go-redis
// clients are internally pooled and safe to use after the lock is released.
type Pool struct {
	mu          sync.RWMutex
	connections map[string]*redis.Client

	logger *slog.Logger
}

// NewPool creates an empty connection pool.
func NewPool(logger *slog.Logger) *Pool {
	return &Pool{
		connections: make(map[string]*redis.Client),
		logger:      logger,
	}
}

// Connect opens a client for the instance, verifies it with PING, and stores
// it in the pool. It retries up to three times with a one-second delay and
// returns the last error when all attempts fail.
func (p *Pool) Connect(ctx context.Context, instanceID, host string, port int, password string) error {
	redisURL := connectionURL(host, port, password)

	p.logger.Info("connecting to redis instance",
		"instance_id", instanceID,
		"host", host,
		"port", port,
	)

	attempt := 0
	client, err := backoff.Retry(ctx, func() (*redis.Client, error) {
		attempt++

		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			// A bad URL never improves with retries.
			return nil, backoff.Permanent(fmt.Errorf("invalid redis URL: %w", err))
		}
		// One connection per instance keeps upstream Redis's per-connection
		// command ordering.
		opts.PoolSize = 1

		client := redis.NewClient(opts)
		pong, err := client.Ping(ctx).Result()
		if err != nil {
			_ = client.Close()
			p.logger.Warn("PING failed",
				"instance_id", instanceID,
				"attempt", attempt,
				"error", err,
			)
			return nil, fmt.Errorf("PING failed: %w", err)
		}
		if pong != "PONG" {
			_ = client.Close()
			return nil, fmt.Errorf("unexpected PING response %q", pong)
		}

		return client, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(retryDelay)),
		backoff.WithMaxTries(maxRetryAttempts),
	)
	if err != nil {
		p.logger.Error("failed to connect",
			"instance_id", instanceID,
			"attempts", maxRetryAttempts,
			"error", err,
		)
		return fmt.Errorf("failed to connect after %d attempts: %w", maxRetryAttempts, err)
	}

	p.mu.Lock()
	if _, ok := p.connections[instanceID]; ok {
		// A concurrent Connect won the race; keep the established client.
		p.mu.Unlock()
		_ = client.Close()
		return nil
	}
	p.connections[instanceID] = client
	count := len(p.connections)
	p.mu.Unlock()

	telemetry.RedisConnectionsActive.Set(float64(count))

	p.logger.Info("connected and verified with PING", "instance_id", instanceID)
	return nil
}

// GetClient returns the client for an instance, or ErrNoConnection.
func (p *Pool) GetClient(instanceID string) (*redis.Client, error) {
	p.mu.RLock()
	client, ok := p.connections[instanceID]
	p.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w %s", ErrNoConnection, instanceID)
	}
	return client, nil
}

// HealthCheck issues a PING on the instance's client.
func (p *Pool) HealthCheck(ctx context.Context, instanceID string) (string, error) {
	client, err := p.GetClient(instanceID)
	if err != nil {
		return "", err
	}

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		return "", fmt.Errorf("PING failed: %w", err)
	}
	return pong, nil
}

// RemoveInstance drops the instance's client and closes it. Idempotent.
func (p *Pool) RemoveInstance(instanceID string) {
	p.mu.Lock()
	client, ok := p.connections[instanceID]
	if ok {
		delete(p.connections, instanceID)
	}
	count := len(p.connections)
	p.mu.Unlock()

	if ok {
		_ = client.Close()
		p.logger.Info("instance removed from pool", "instance_id", instanceID)
	}
	telemetry.RedisConnectionsActive.Set(float64(count))
}

// ReconnectInstance removes any stale client and connects anew.
func (p *Pool) ReconnectInstance(ctx context.Context, instanceID, host string, port int, password string) error {
	p.RemoveInstance(instanceID)
	return p.Connect(ctx, instanceID, host, port, password)
}

// ConnectionCount returns the number of active clients.
func (p *Pool) ConnectionCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.connections)
}

// HasInstance reports whether a client exists for the instance.
func (p *Pool) HasInstance(instanceID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.connections[instanceID]
	return ok
}

// Close drops every client. Used at shutdown.
func (p *Pool) Close() {
	p.mu.Lock()
	for id, client := range p.connections {
		_ = client.Close()
		delete(p.connections, id)
	}
	p.mu.Unlock()
	telemetry.RedisConnectionsActive.Set(0)
}

func connectionURL(host string, port int, password string) string {
	if password != "" {
		return fmt.Sprintf("redis://:%s@%s:%d", url.QueryEscape(password), host, port)
	}
	return fmt.Sprintf("redis://%s:%d", host, port)
}
