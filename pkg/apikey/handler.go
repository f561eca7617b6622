package apikey

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/redisgate/redisgate/internal/auth"
	"github.com/redisgate/redisgate/internal/httpserver"
	"github.com/redisgate/redisgate/pkg/audit"
	"github.com/redisgate/redisgate/pkg/org"
	"github.com/redisgate/redisgate/pkg/quota"
)

// Handler provides HTTP handlers for the API keys API, mounted under an
// organization scope.
type Handler struct {
	logger  *slog.Logger
	service *Service
	orgs    *org.Store
	audit   *audit.Writer
}

// NewHandler creates an API key Handler.
func NewHandler(logger *slog.Logger, service *Service, orgs *org.Store, audit *audit.Writer) *Handler {
	return &Handler{logger: logger, service: service, orgs: orgs, audit: audit}
}

// Routes returns a chi.Router with API key routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{keyID}", h.handleGet)
	r.Delete("/{keyID}", h.handleRevoke)
	return r
}

// requireMembership resolves and authorizes the org scope; it writes the
// error response itself and returns ok=false on failure.
func (h *Handler) requireMembership(w http.ResponseWriter, r *http.Request) (uuid.UUID, org.Membership, bool) {
	user := auth.UserFromContext(r.Context())

	orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid organization ID")
		return uuid.Nil, org.Membership{}, false
	}

	m, err := h.orgs.GetMembership(r.Context(), orgID, user.ID)
	if err != nil {
		if errors.Is(err, org.ErrNotMember) {
			httpserver.RespondError(w, http.StatusNotFound, "organization not found or access denied")
		} else {
			h.logger.Error("membership lookup", "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, "failed to verify membership")
		}
		return uuid.Nil, org.Membership{}, false
	}

	return orgID, m, true
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	orgID, m, ok := h.requireMembership(w, r)
	if !ok {
		return
	}
	if m.Role != org.RoleAdmin && m.Role != org.RoleOwner {
		httpserver.RespondError(w, http.StatusForbidden, "insufficient permissions to create API keys")
		return
	}

	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	user := auth.UserFromContext(r.Context())
	resp, err := h.service.Create(r.Context(), orgID, user.ID, req)
	if err != nil {
		var maxKeys *quota.MaxAPIKeysError
		if errors.As(err, &maxKeys) {
			httpserver.RespondError(w, http.StatusForbidden, maxKeys.Error())
			return
		}
		if errors.Is(err, quota.ErrOrgNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "organization not found")
			return
		}
		h.logger.Error("creating api key", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to create API key")
		return
	}

	h.audit.LogFromRequest(r, "create", "api_key", resp.ID, nil)
	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := h.requireMembership(w, r)
	if !ok {
		return
	}

	params := httpserver.ParsePageParams(r)
	rows, total, err := h.service.Store().List(r.Context(), orgID, params.Limit, params.Offset)
	if err != nil {
		h.logger.Error("listing api keys", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to list API keys")
		return
	}

	items := make([]Response, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].ToResponse())
	}
	httpserver.Respond(w, http.StatusOK, httpserver.NewPage(items, params, total))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := h.requireMembership(w, r)
	if !ok {
		return
	}

	keyID, err := uuid.Parse(chi.URLParam(r, "keyID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid API key ID")
		return
	}

	row, err := h.service.Store().Get(r.Context(), orgID, keyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "API key not found")
			return
		}
		h.logger.Error("getting api key", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to get API key")
		return
	}

	httpserver.Respond(w, http.StatusOK, row.ToResponse())
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	orgID, m, ok := h.requireMembership(w, r)
	if !ok {
		return
	}
	if m.Role != org.RoleAdmin && m.Role != org.RoleOwner {
		httpserver.RespondError(w, http.StatusForbidden, "insufficient permissions to revoke API keys")
		return
	}

	keyID, err := uuid.Parse(chi.URLParam(r, "keyID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid API key ID")
		return
	}

	if err := h.service.Revoke(r.Context(), orgID, keyID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "API key not found")
			return
		}
		h.logger.Error("revoking api key", "error", err, "key_id", keyID)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to revoke API key")
		return
	}

	h.audit.LogFromRequest(r, "revoke", "api_key", keyID, nil)
	httpserver.RespondMessage(w, http.StatusOK, "API key revoked")
}
