package redisproxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/redisgate/redisgate/internal/auth"
	"github.com/redisgate/redisgate/internal/httpserver"
	"github.com/redisgate/redisgate/internal/telemetry"
	"github.com/redisgate/redisgate/pkg/ratelimit"
)

// Target is the resolved connection endpoint of an instance.
type Target struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Host           string
	Port           int
	Password       string
}

// InstanceResolver looks up an instance's connection target from metadata.
// Implemented by the instance store.
type InstanceResolver interface {
	ResolveTarget(ctx context.Context, instanceID uuid.UUID) (Target, error)
}

// ErrInstanceNotFound is returned by resolvers for unknown or soft-deleted
// instances.
var ErrInstanceNotFound = errors.New("redis instance not found")

// GenericCommandRequest is the JSON body for POST /redis/{instanceID}.
type GenericCommandRequest struct {
	Command string   `json:"command" validate:"required,min=1"`
	Args    []string `json:"args"`
}

// Handler serves the /redis proxy routes.
type Handler struct {
	logger   *slog.Logger
	pool     *Pool
	resolver InstanceResolver
	limiter  *ratelimit.Limiter
}

// NewHandler creates a proxy Handler.
func NewHandler(logger *slog.Logger, pool *Pool, resolver InstanceResolver, limiter *ratelimit.Limiter) *Handler {
	return &Handler{
		logger:   logger,
		pool:     pool,
		resolver: resolver,
		limiter:  limiter,
	}
}

// Routes returns a chi.Router with all proxy routes mounted. The API key
// middleware must already be installed on the parent router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/{instanceID}/ping", h.command("ping"))
	r.Get("/{instanceID}/set/{key}/{value}", h.command("set", "key", "value"))
	r.Get("/{instanceID}/get/{key}", h.command("get", "key"))
	r.Get("/{instanceID}/del/{key}", h.command("del", "key"))
	r.Get("/{instanceID}/incr/{key}", h.command("incr", "key"))
	r.Get("/{instanceID}/decr/{key}", h.command("decr", "key"))
	r.Get("/{instanceID}/exists/{key}", h.command("exists", "key"))
	r.Get("/{instanceID}/expire/{key}/{seconds}", h.command("expire", "key", "seconds"))
	r.Get("/{instanceID}/ttl/{key}", h.command("ttl", "key"))

	r.Get("/{instanceID}/hset/{key}/{field}/{value}", h.command("hset", "key", "field", "value"))
	r.Get("/{instanceID}/hget/{key}/{field}", h.command("hget", "key", "field"))

	r.Get("/{instanceID}/lpush/{key}/{value}", h.command("lpush", "key", "value"))
	r.Get("/{instanceID}/lpop/{key}", h.command("lpop", "key"))

	r.Get("/{instanceID}/sadd/{key}/{member}", h.command("sadd", "key", "member"))
	r.Get("/{instanceID}/smembers/{key}", h.command("smembers", "key"))
	r.Get("/{instanceID}/sismember/{key}/{member}", h.command("sismember", "key", "member"))
	r.Get("/{instanceID}/srem/{key}/{member}", h.command("srem", "key", "member"))

	r.Post("/{instanceID}", h.handleGeneric)

	// Catch-all for unmapped GET paths, kept for client debugging.
	r.Get("/{instanceID}/*", h.handleUnknown)

	return r
}

// command builds a handler that extracts the named URL params as command
// arguments and proxies the call.
func (h *Handler) command(name string, params ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		args := make([]string, 0, len(params))
		for _, p := range params {
			args = append(args, chi.URLParam(r, p))
		}
		h.proxy(w, r, name, args)
	}
}

func (h *Handler) handleGeneric(w http.ResponseWriter, r *http.Request) {
	var req GenericCommandRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	h.proxy(w, r, req.Command, req.Args)
}

func (h *Handler) handleUnknown(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	httpserver.RespondError(w, http.StatusNotFound,
		fmt.Sprintf("unknown Redis command path %q", path))
}

// proxy is the per-request flow: resolve, authorize, rate-limit, borrow a
// client, execute, record.
func (h *Handler) proxy(w http.ResponseWriter, r *http.Request, command string, args []string) {
	identity := auth.APIKeyFromContext(r.Context())
	if identity == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "missing API key")
		return
	}

	instanceID, err := uuid.Parse(chi.URLParam(r, "instanceID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid instance ID")
		return
	}

	target, err := h.resolver.ResolveTarget(r.Context(), instanceID)
	if err != nil {
		if errors.Is(err, ErrInstanceNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "Redis instance not found")
			return
		}
		h.logger.Error("resolving instance", "instance_id", instanceID, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to resolve Redis instance")
		return
	}

	// The key must belong to the instance's organization and carry the
	// command's family scope (or the wildcard).
	claims := identity.Claims
	if claims.OrgID != target.OrganizationID {
		httpserver.RespondError(w, http.StatusForbidden, "API key does not grant access to this instance")
		return
	}
	family := CommandFamily(command)
	if !claims.HasScope(family) && !claims.HasScope(strings.ToLower(command)) {
		httpserver.RespondError(w, http.StatusForbidden,
			fmt.Sprintf("API key scope does not authorize %q", strings.ToLower(command)))
		return
	}

	if !h.limiter.CheckAPIKey(identity.RawToken, identity.RateLimitRPS) {
		httpserver.RespondError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	client, err := h.pool.GetClient(target.ID.String())
	if errors.Is(err, ErrNoConnection) {
		// Lazy connect on first use.
		if err := h.pool.Connect(r.Context(), target.ID.String(), target.Host, target.Port, target.Password); err != nil {
			h.logger.Error("connecting to instance", "instance_id", instanceID, "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		client, err = h.pool.GetClient(target.ID.String())
	}
	if err != nil {
		h.logger.Error("borrowing client", "instance_id", instanceID, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	cmd := strings.ToLower(command)
	start := time.Now()
	result, err := execute(r.Context(), client, cmd, args)
	elapsed := time.Since(start).Seconds()

	telemetry.RedisCommandsTotal.WithLabelValues(cmd).Inc()
	telemetry.RedisCommandDuration.WithLabelValues(cmd).Observe(elapsed)

	if err != nil {
		telemetry.RedisCommandErrorsTotal.WithLabelValues(cmd).Inc()
		if errors.Is(err, errWrongArity) {
			httpserver.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("executing redis command",
			"instance_id", instanceID,
			"command", cmd,
			"error", err,
		)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	httpserver.Respond(w, http.StatusOK, result)
}
