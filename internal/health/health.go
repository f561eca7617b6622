// Package health implements the liveness, readiness, and composite health
// surfaces.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redisgate/redisgate/internal/httpserver"
	"github.com/redisgate/redisgate/pkg/redisproxy"
)

// Statuses of the composite health check.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// ComponentHealth describes one probed component.
type ComponentHealth struct {
	Status         string `json:"status"`
	Message        string `json:"message,omitempty"`
	ResponseTimeMS *int64 `json:"response_time_ms,omitempty"`
}

// Response is the detailed health report.
type Response struct {
	Status        string     `json:"status"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	Components    Components `json:"components"`
}

// Components holds the health of individual subsystems.
type Components struct {
	Database  ComponentHealth `json:"database"`
	RedisPool ComponentHealth `json:"redis_pool"`
}

// Service probes the database and the upstream connection pool.
type Service struct {
	db        *pgxpool.Pool
	pool      *redisproxy.Pool
	logger    *slog.Logger
	startedAt time.Time
}

// NewService creates a health Service.
func NewService(db *pgxpool.Pool, pool *redisproxy.Pool, logger *slog.Logger) *Service {
	return &Service{
		db:        db,
		pool:      pool,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// UptimeSeconds returns the process uptime.
func (s *Service) UptimeSeconds() int64 {
	return int64(time.Since(s.startedAt).Seconds())
}

func (s *Service) checkDatabase(ctx context.Context) ComponentHealth {
	start := time.Now()
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Error("database health check failed", "error", err)
		return ComponentHealth{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("database error: %v", err),
		}
	}
	elapsed := time.Since(start).Milliseconds()
	return ComponentHealth{
		Status:         StatusHealthy,
		Message:        "database connection OK",
		ResponseTimeMS: &elapsed,
	}
}

func (s *Service) checkRedisPool() ComponentHealth {
	count := s.pool.ConnectionCount()
	status := StatusHealthy
	if count == 0 {
		status = StatusDegraded
	}
	return ComponentHealth{
		Status:  status,
		Message: fmt.Sprintf("%d active connections", count),
	}
}

// Check performs the full composite health check.
func (s *Service) Check(ctx context.Context) Response {
	db := s.checkDatabase(ctx)
	pool := s.checkRedisPool()

	overall := StatusHealthy
	switch {
	case db.Status == StatusUnhealthy || pool.Status == StatusUnhealthy:
		overall = StatusUnhealthy
	case db.Status == StatusDegraded || pool.Status == StatusDegraded:
		overall = StatusDegraded
	}

	return Response{
		Status:        overall,
		UptimeSeconds: s.UptimeSeconds(),
		Components: Components{
			Database:  db,
			RedisPool: pool,
		},
	}
}

// HandleLiveness serves GET /health/live: 200 whenever the process responds.
func (s *Service) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HandleReadiness serves GET /health/ready: 200 iff the database probe
// succeeds.
func (s *Service) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.logger.Error("readiness check failed", "error", err)
		httpserver.RespondError(w, http.StatusServiceUnavailable, "database not ready")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleHealth serves GET /health with the composite report.
func (s *Service) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := s.Check(r.Context())

	status := http.StatusOK
	if resp.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	httpserver.Respond(w, status, resp)
}
