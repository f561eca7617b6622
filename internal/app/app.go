// Package app wires configuration, infrastructure, and domain handlers into
// the running gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redisgate/redisgate/internal/auth"
	"github.com/redisgate/redisgate/internal/config"
	"github.com/redisgate/redisgate/internal/health"
	"github.com/redisgate/redisgate/internal/httpserver"
	"github.com/redisgate/redisgate/internal/k8s"
	"github.com/redisgate/redisgate/internal/platform"
	"github.com/redisgate/redisgate/internal/telemetry"
	"github.com/redisgate/redisgate/internal/version"
	"github.com/redisgate/redisgate/pkg/apikey"
	"github.com/redisgate/redisgate/pkg/audit"
	"github.com/redisgate/redisgate/pkg/instance"
	"github.com/redisgate/redisgate/pkg/org"
	"github.com/redisgate/redisgate/pkg/quota"
	"github.com/redisgate/redisgate/pkg/ratelimit"
	"github.com/redisgate/redisgate/pkg/redisproxy"
	"github.com/redisgate/redisgate/pkg/user"
)

// gaugeRefreshInterval paces the entity-count gauge sampler.
const gaugeRefreshInterval = 30 * time.Second

// Run is the main application entry point. It connects infrastructure,
// mounts the HTTP surface, and serves until the context is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.Logging.Format, cfg.Logging.Level)
	slog.SetDefault(logger)

	logger.Info("starting redisgate",
		"environment", cfg.Environment,
		"listen", cfg.ListenAddr(),
	)

	// Tracing
	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, "redisgate", version.Version)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	// Database — closed last on shutdown.
	db, err := platform.NewPostgresPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := platform.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewRegistry()

	secret := cfg.Security.JWTSecret
	if secret == "" {
		if !cfg.IsDevelopment() {
			return fmt.Errorf("JWT_SECRET is required outside development")
		}
		secret = auth.GenerateDevSecret()
		logger.Warn("security: using auto-generated dev JWT secret (set JWT_SECRET in production)")
	}
	tokens, err := auth.NewTokenService(secret, time.Duration(cfg.Security.SessionExpiryHours)*time.Hour)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	// Upstream connection pool — dropped before the DB closes.
	connPool := redisproxy.NewPool(logger)
	defer connPool.Close()

	limiter := ratelimit.New(cfg.RateLimit.DefaultRequestsPerSecond, logger)

	// Stores and services.
	userStore := user.NewStore(db)
	orgStore := org.NewStore(db)
	instanceStore := instance.NewStore(db)
	quotaService := quota.NewService(db)

	auditWriter := audit.NewWriter(db, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	apiKeyService := apikey.NewService(db, tokens, quotaService, limiter, logger)

	orchFactory := func() (k8s.Orchestrator, error) {
		return k8s.NewClient(logger)
	}
	provisioner := instance.NewProvisioner(
		db, instanceStore, quotaService, apiKeyService, connPool,
		orchFactory, logger, cfg.Security.BcryptCost,
	)

	healthService := health.NewService(db, connPool, logger)

	// HTTP surface.
	srv := httpserver.NewServer(cfg, logger, metricsReg)

	userHandler := user.NewHandler(logger, userStore, orgStore, tokens, apiKeyService, auditWriter, cfg.Security.BcryptCost)
	orgHandler := org.NewHandler(logger, orgStore, auditWriter)
	quotaHandler := quota.NewHandler(logger, quotaService, orgStore, auditWriter)
	apiKeyHandler := apikey.NewHandler(logger, apiKeyService, orgStore, auditWriter)
	instanceHandler := instance.NewHandler(logger, instanceStore, provisioner, orgStore, auditWriter)
	auditHandler := audit.NewHandler(logger, db)
	proxyHandler := redisproxy.NewHandler(logger, connPool, &targetResolver{store: instanceStore}, limiter)

	sessionAuth := auth.SessionMiddleware(tokens, userStore, logger)
	apiKeyAuth := auth.APIKeyMiddleware(tokens, apiKeyService.Store(), logger)

	// Public surface. Pre-auth endpoints share the default bucket.
	srv.Router.Group(func(r chi.Router) {
		r.Use(limiter.DefaultMiddleware)
		r.Mount("/auth", userHandler.PublicRoutes())
	})
	srv.Router.Get("/health", healthService.HandleHealth)
	srv.Router.Get("/health/live", healthService.HandleLiveness)
	srv.Router.Get("/health/ready", healthService.HandleReadiness)
	srv.Router.Get("/stats", statsHandler(db, logger, userStore, orgStore, instanceStore))

	// Session-authenticated surface.
	srv.Router.Group(func(r chi.Router) {
		r.Use(sessionAuth)
		r.Get("/auth/me", userHandler.HandleMe)
		r.Route("/api/organizations", func(r chi.Router) {
			r.Post("/", orgHandler.HandleCreate)
			r.Get("/", orgHandler.HandleList)
			r.Route("/{orgID}", func(r chi.Router) {
				r.Get("/", orgHandler.HandleGet)
				r.Put("/", orgHandler.HandleUpdate)
				r.Delete("/", orgHandler.HandleDelete)
				r.Delete("/members/{userID}", orgHandler.HandleRemoveMember)
				r.Mount("/quota", quotaHandler.Routes())
				r.Mount("/api-keys", apiKeyHandler.Routes())
				r.Mount("/redis-instances", instanceHandler.Routes())
				r.Mount("/audit-log", auditHandler.Routes())
			})
		})
	})

	// API-key-authenticated proxy surface.
	srv.Router.Group(func(r chi.Router) {
		r.Use(apiKeyAuth)
		r.Mount("/redis", proxyHandler.Routes())
	})

	// Entity-count gauges for /metrics.
	go refreshGauges(ctx, logger, userStore, orgStore, instanceStore)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: time.Duration(cfg.Server.RequestTimeoutSeconds+5) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down gateway")
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.Server.ShutdownGraceSeconds)*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// targetResolver adapts the instance store to the proxy plane's resolver.
type targetResolver struct {
	store *instance.Store
}

func (tr *targetResolver) ResolveTarget(ctx context.Context, instanceID uuid.UUID) (redisproxy.Target, error) {
	row, err := tr.store.Get(ctx, instanceID)
	if err != nil {
		if errors.Is(err, instance.ErrNotFound) {
			return redisproxy.Target{}, redisproxy.ErrInstanceNotFound
		}
		return redisproxy.Target{}, err
	}

	return redisproxy.Target{
		ID:             row.ID,
		OrganizationID: row.OrganizationID,
		Host:           row.ConnectionHost(),
		Port:           row.Port,
		// Upstream credentials are mounted into the workload; the shared
		// development Redis is unauthenticated.
		Password: "",
	}, nil
}

// statsHandler reports entity counts from the metadata store.
func statsHandler(db *pgxpool.Pool, logger *slog.Logger, users *user.Store, orgs *org.Store, instances *instance.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userCount, err := users.Count(ctx)
		if err != nil {
			logger.Error("counting users", "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, "failed to gather stats")
			return
		}
		orgCount, err := orgs.Count(ctx)
		if err != nil {
			logger.Error("counting organizations", "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, "failed to gather stats")
			return
		}
		instanceCount, err := instances.CountActive(ctx)
		if err != nil {
			logger.Error("counting instances", "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, "failed to gather stats")
			return
		}

		httpserver.Respond(w, http.StatusOK, map[string]any{
			"users":           userCount,
			"organizations":   orgCount,
			"redis_instances": instanceCount,
			"database_pool": map[string]any{
				"total_conns": db.Stat().TotalConns(),
				"idle_conns":  db.Stat().IdleConns(),
			},
		})
	}
}

// refreshGauges samples entity counts into the Prometheus gauges.
func refreshGauges(ctx context.Context, logger *slog.Logger, users *user.Store, orgs *org.Store, instances *instance.Store) {
	ticker := time.NewTicker(gaugeRefreshInterval)
	defer ticker.Stop()

	sample := func() {
		sampleCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if n, err := users.Count(sampleCtx); err == nil {
			telemetry.UsersTotal.Set(float64(n))
		} else {
			logger.Debug("sampling user count", "error", err)
		}
		if n, err := orgs.Count(sampleCtx); err == nil {
			telemetry.OrganizationsTotal.Set(float64(n))
		}
		if n, err := instances.CountActive(sampleCtx); err == nil {
			telemetry.RedisInstancesTotal.Set(float64(n))
		}
	}

	sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample()
		}
	}
}
