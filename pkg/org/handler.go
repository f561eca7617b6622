package org

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/redisgate/redisgate/internal/auth"
	"github.com/redisgate/redisgate/internal/httpserver"
	"github.com/redisgate/redisgate/pkg/audit"
)

// slugPattern restricts slugs to lowercase URL-safe identifiers.
var slugPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// ValidSlug reports whether s is a lowercase URL-safe identifier.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

// Handler provides HTTP handlers for the organizations API.
type Handler struct {
	logger *slog.Logger
	store  *Store
	audit  *audit.Writer
}

// NewHandler creates an organization Handler.
func NewHandler(logger *slog.Logger, store *Store, audit *audit.Writer) *Handler {
	return &Handler{logger: logger, store: store, audit: audit}
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if !ValidSlug(req.Slug) {
		httpserver.RespondError(w, http.StatusBadRequest, "slug must be a lowercase URL-safe identifier")
		return
	}

	o, err := h.store.Create(r.Context(), req.Name, req.Slug, user.ID)
	if err != nil {
		if errors.Is(err, ErrSlugTaken) {
			httpserver.RespondError(w, http.StatusConflict, "organization with this slug already exists")
			return
		}
		h.logger.Error("creating organization", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to create organization")
		return
	}

	h.audit.LogFromRequest(r, "create", "organization", o.ID, nil)
	httpserver.Respond(w, http.StatusOK, o)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	params := httpserver.ParsePageParams(r)

	items, total, err := h.store.ListForUser(r.Context(), user.ID, params.Limit, params.Offset)
	if err != nil {
		h.logger.Error("listing organizations", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to list organizations")
		return
	}

	httpserver.Respond(w, http.StatusOK, httpserver.NewPage(items, params, total))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	orgID, ok := h.parseOrgID(w, r)
	if !ok {
		return
	}
	if _, err := h.store.GetMembership(r.Context(), orgID, user.ID); err != nil {
		h.respondMembershipError(w, err)
		return
	}

	o, err := h.store.Get(r.Context(), orgID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "organization not found")
			return
		}
		h.logger.Error("getting organization", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to get organization")
		return
	}

	httpserver.Respond(w, http.StatusOK, o)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	orgID, ok := h.parseOrgID(w, r)
	if !ok {
		return
	}

	m, err := h.store.GetMembership(r.Context(), orgID, user.ID)
	if err != nil {
		h.respondMembershipError(w, err)
		return
	}
	if m.Role != RoleAdmin && m.Role != RoleOwner {
		httpserver.RespondError(w, http.StatusForbidden, "insufficient permissions to update organization")
		return
	}

	var req UpdateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if req.Name == nil {
		httpserver.RespondError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	o, err := h.store.UpdateName(r.Context(), orgID, *req.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "organization not found")
			return
		}
		h.logger.Error("updating organization", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to update organization")
		return
	}

	h.audit.LogFromRequest(r, "update", "organization", o.ID, nil)
	httpserver.Respond(w, http.StatusOK, o)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	orgID, ok := h.parseOrgID(w, r)
	if !ok {
		return
	}

	m, err := h.store.GetMembership(r.Context(), orgID, user.ID)
	if err != nil {
		h.respondMembershipError(w, err)
		return
	}
	if m.Role != RoleOwner {
		httpserver.RespondError(w, http.StatusForbidden, "only owners can delete an organization")
		return
	}

	if err := h.store.Deactivate(r.Context(), orgID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "organization not found")
			return
		}
		h.logger.Error("deleting organization", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to delete organization")
		return
	}

	h.audit.LogFromRequest(r, "delete", "organization", orgID, nil)
	httpserver.RespondMessage(w, http.StatusOK, "organization deleted")
}

// HandleRemoveMember deactivates a membership. Owners can remove anyone,
// admins only members, and any member can remove themselves (leave). The
// last active owner can never be removed, keeping every active organization
// owned.
func (h *Handler) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	orgID, ok := h.parseOrgID(w, r)
	if !ok {
		return
	}
	targetID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	caller, err := h.store.GetMembership(r.Context(), orgID, user.ID)
	if err != nil {
		h.respondMembershipError(w, err)
		return
	}

	target, err := h.store.GetMembership(r.Context(), orgID, targetID)
	if err != nil {
		if errors.Is(err, ErrNotMember) {
			httpserver.RespondError(w, http.StatusNotFound, "membership not found")
			return
		}
		h.respondMembershipError(w, err)
		return
	}

	if !canRemoveMember(caller.Role, target.Role, user.ID == targetID) {
		httpserver.RespondError(w, http.StatusForbidden, "insufficient permissions to remove this member")
		return
	}

	if target.Role == RoleOwner {
		owners, err := h.store.CountActiveOwners(r.Context(), orgID)
		if err != nil {
			h.logger.Error("counting owners", "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, "failed to remove member")
			return
		}
		if owners <= 1 {
			httpserver.RespondError(w, http.StatusConflict, "cannot remove the last active owner")
			return
		}
	}

	if err := h.store.DeactivateMembership(r.Context(), orgID, targetID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "membership not found")
			return
		}
		h.logger.Error("removing member", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to remove member")
		return
	}

	h.audit.LogFromRequest(r, "remove_member", "organization", orgID, nil)
	httpserver.RespondMessage(w, http.StatusOK, "member removed")
}

// canRemoveMember decides whether a caller role may remove a target role.
// Self-removal is always allowed subject to the last-owner guard.
func canRemoveMember(callerRole, targetRole string, self bool) bool {
	if self {
		return true
	}
	switch callerRole {
	case RoleOwner:
		return true
	case RoleAdmin:
		return targetRole == RoleMember
	default:
		return false
	}
}

func (h *Handler) parseOrgID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "orgID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid organization ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondMembershipError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotMember) {
		httpserver.RespondError(w, http.StatusNotFound, "organization not found or access denied")
		return
	}
	h.logger.Error("membership lookup", "error", err)
	httpserver.RespondError(w, http.StatusInternalServerError, "failed to verify membership")
}
