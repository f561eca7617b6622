package quota

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/redisgate/redisgate/internal/auth"
	"github.com/redisgate/redisgate/internal/httpserver"
	"github.com/redisgate/redisgate/pkg/audit"
	"github.com/redisgate/redisgate/pkg/org"
)

// Handler provides HTTP handlers for the quota API.
type Handler struct {
	logger  *slog.Logger
	service *Service
	orgs    *org.Store
	audit   *audit.Writer
}

// NewHandler creates a quota Handler.
func NewHandler(logger *slog.Logger, service *Service, orgs *org.Store, audit *audit.Writer) *Handler {
	return &Handler{logger: logger, service: service, orgs: orgs, audit: audit}
}

// Routes returns a chi.Router with quota routes mounted under an
// organization scope.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleGet)
	r.Put("/", h.handleUpdate)
	return r
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid organization ID")
		return
	}

	if _, err := h.orgs.GetMembership(r.Context(), orgID, user.ID); err != nil {
		if errors.Is(err, org.ErrNotMember) {
			httpserver.RespondError(w, http.StatusNotFound, "organization not found or access denied")
			return
		}
		h.logger.Error("membership lookup", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to verify membership")
		return
	}

	info, err := h.service.GetInfo(r.Context(), orgID)
	if err != nil {
		if errors.Is(err, ErrOrgNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "organization not found")
			return
		}
		h.logger.Error("getting quota info", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to get quota info")
		return
	}

	httpserver.Respond(w, http.StatusOK, info)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid organization ID")
		return
	}

	m, err := h.orgs.GetMembership(r.Context(), orgID, user.ID)
	if err != nil {
		if errors.Is(err, org.ErrNotMember) {
			httpserver.RespondError(w, http.StatusNotFound, "organization not found or access denied")
			return
		}
		h.logger.Error("membership lookup", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to verify membership")
		return
	}
	if m.Role != org.RoleAdmin && m.Role != org.RoleOwner {
		httpserver.RespondError(w, http.StatusForbidden, "insufficient permissions to update quota limits")
		return
	}

	var req UpdateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.UpdateLimits(r.Context(), orgID, req); err != nil {
		if errors.Is(err, ErrOrgNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "organization not found")
			return
		}
		h.logger.Error("updating quota limits", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to update quota limits")
		return
	}

	h.audit.LogFromRequest(r, "update", "quota", orgID, nil)

	info, err := h.service.GetInfo(r.Context(), orgID)
	if err != nil {
		h.logger.Error("getting quota info after update", "error", err)
		httpserver.RespondMessage(w, http.StatusOK, "quota limits updated")
		return
	}
	httpserver.Respond(w, http.StatusOK, info)
}
