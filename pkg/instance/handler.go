package instance

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
	"github.com/redisgate/redisgate/pkg/quota"
)

// Handler provides HTTP handlers for the Redis instances API, mounted under
// an organization scope.
type Handler struct {
	logger      *slog.Logger
	store       *Store
	provisioner *Provisioner
	orgs        *org.Store
	audit       *audit.Writer
}

// NewHandler creates an instance Handler.
func NewHandler(logger *slog.Logger, store *Store, provisioner *Provisioner, orgs *org.Store, audit *audit.Writer) *Handler {
	return &Handler{
		logger:      logger,
		store:       store,
		provisioner: provisioner,
		orgs:        orgs,
		audit:       audit,
	}
}

// Routes returns a chi.Router with instance routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{instanceID}", h.handleGet)
	r.Delete("/{instanceID}", h.handleDelete)
	r.Put("/{instanceID}/status", h.handleRefreshStatus)
	return r
}

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

func (h *Handler) parseInstanceID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "instanceID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid instance ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := h.requireMembership(w, r)
	if !ok {
		return
	}

	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if !org.ValidSlug(req.Slug) {
		httpserver.RespondError(w, http.StatusBadRequest, "slug must be a lowercase URL-safe identifier")
		return
	}

	resp, err := h.provisioner.Create(r.Context(), orgID, req)
	if err != nil {
		var maxInst *quota.MaxInstancesError
		var maxMem *quota.MemoryLimitError
		switch {
		case errors.As(err, &maxInst):
			httpserver.RespondError(w, http.StatusForbidden, maxInst.Error())
		case errors.As(err, &maxMem):
			httpserver.RespondError(w, http.StatusForbidden, maxMem.Error())
		case errors.Is(err, ErrSlugTaken):
			httpserver.RespondError(w, http.StatusConflict, ErrSlugTaken.Error())
		case errors.Is(err, quota.ErrOrgNotFound):
			httpserver.RespondError(w, http.StatusNotFound, "organization not found")
		default:
			h.logger.Error("creating redis instance", "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, "failed to create Redis instance")
		}
		return
	}

	h.audit.LogFromRequest(r, "create", "redis_instance", resp.ID, nil)
	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := h.requireMembership(w, r)
	if !ok {
		return
	}

	params := httpserver.ParsePageParams(r)
	rows, total, err := h.store.List(r.Context(), orgID, params.Limit, params.Offset)
	if err != nil {
		h.logger.Error("listing redis instances", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to list Redis instances")
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
	instanceID, ok := h.parseInstanceID(w, r)
	if !ok {
		return
	}

	row, err := h.store.GetForOrg(r.Context(), orgID, instanceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "Redis instance not found")
			return
		}
		h.logger.Error("getting redis instance", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to get Redis instance")
		return
	}

	httpserver.Respond(w, http.StatusOK, row.ToResponse())
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	orgID, m, ok := h.requireMembership(w, r)
	if !ok {
		return
	}
	if m.Role != org.RoleAdmin && m.Role != org.RoleOwner {
		httpserver.RespondError(w, http.StatusForbidden, "insufficient permissions to delete Redis instances")
		return
	}
	instanceID, ok := h.parseInstanceID(w, r)
	if !ok {
		return
	}

	if err := h.provisioner.Delete(r.Context(), orgID, instanceID); err != nil {
		if errors.Is(err, ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "Redis instance not found")
			return
		}
		h.logger.Error("deleting redis instance", "error", err, "instance_id", instanceID)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to delete Redis instance")
		return
	}

	h.audit.LogFromRequest(r, "delete", "redis_instance", instanceID, nil)
	httpserver.RespondMessage(w, http.StatusOK, "Redis instance deleted successfully")
}

func (h *Handler) handleRefreshStatus(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := h.requireMembership(w, r)
	if !ok {
		return
	}
	instanceID, ok := h.parseInstanceID(w, r)
	if !ok {
		return
	}

	resp, err := h.provisioner.RefreshStatus(r.Context(), orgID, instanceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "Redis instance not found")
			return
		}
		h.logger.Error("refreshing instance status", "error", err, "instance_id", instanceID)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to refresh instance status")
		return
	}

	httpserver.Respond(w, http.StatusOK, resp)
}
