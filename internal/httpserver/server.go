package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/redisgate/redisgate/internal/config"
	"github.com/redisgate/redisgate/internal/version"
)

// Server holds the HTTP router and its shared middleware chain. Domain
// handlers are mounted by the application after construction.
type Server struct {
	Router  *chi.Mux
	Logger  *slog.Logger
	Metrics *prometheus.Registry
}

// NewServer creates the router with request ID, logging, metrics, recovery,
// CORS, and timeout middleware, plus the Prometheus and version endpoints.
func NewServer(cfg *config.Config, logger *slog.Logger, metricsReg *prometheus.Registry) *Server {
	s := &Server{
		Router:  chi.NewRouter(),
		Logger:  logger,
		Metrics: metricsReg,
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	s.Router.Use(Timeout(time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second))

	if cfg.Metrics.Enabled {
		s.Router.Handle(cfg.Metrics.Path, promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))
	}

	s.Router.Get("/version", s.handleVersion)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{
		"name":        "redisgate",
		"version":     version.Version,
		"commit":      version.Commit,
		"description": "Cloud Redis on Kubernetes HTTP Gateway",
	})
}
