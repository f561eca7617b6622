package user

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/redisgate/redisgate/internal/auth"
	"github.com/redisgate/redisgate/internal/httpserver"
	"github.com/redisgate/redisgate/pkg/apikey"
	"github.com/redisgate/redisgate/pkg/audit"
	"github.com/redisgate/redisgate/pkg/org"
)

// Handler provides HTTP handlers for registration, login, and the
// current-user endpoint.
type Handler struct {
	logger     *slog.Logger
	store      *Store
	orgs       *org.Store
	tokens     *auth.TokenService
	apiKeys    *apikey.Service
	audit      *audit.Writer
	bcryptCost int
}

// NewHandler creates a user Handler.
func NewHandler(logger *slog.Logger, store *Store, orgs *org.Store, tokens *auth.TokenService, apiKeys *apikey.Service, audit *audit.Writer, bcryptCost int) *Handler {
	return &Handler{
		logger:     logger,
		store:      store,
		orgs:       orgs,
		tokens:     tokens,
		apiKeys:    apiKeys,
		audit:      audit,
		bcryptCost: bcryptCost,
	}
}

// PublicRoutes returns the unauthenticated /auth routes.
func (h *Handler) PublicRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
	return r
}

// HandleMe serves GET /auth/me behind the session middleware.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	current := auth.UserFromContext(r.Context())

	u, err := h.store.Get(r.Context(), current.ID)
	if err != nil {
		h.logger.Error("fetching current user", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to fetch user")
		return
	}

	httpserver.Respond(w, http.StatusOK, u)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	hash, err := auth.HashPassword(req.Password, h.bcryptCost)
	if err != nil {
		h.logger.Error("hashing password", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to register user")
		return
	}

	u, err := h.store.Create(r.Context(), req.Email, req.Username, hash)
	if err != nil {
		if errors.Is(err, ErrExists) {
			httpserver.RespondError(w, http.StatusConflict, "user already exists with this email or username")
			return
		}
		h.logger.Error("creating user", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to register user")
		return
	}

	h.audit.LogFromRequest(r, "register", "user", u.ID, nil)
	h.logger.Info("user registered", "user_id", u.ID)
	httpserver.Respond(w, http.StatusOK, u)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	u, err := h.store.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.logger.Error("looking up user", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to log in")
		return
	}

	if !u.IsActive {
		httpserver.RespondError(w, http.StatusUnauthorized, "user account is not active")
		return
	}

	if !auth.VerifyPassword(req.Password, u.PasswordHash) {
		h.logger.Warn("login with invalid password", "user_id", u.ID)
		httpserver.RespondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	orgID, err := h.orgs.PrimaryOrgID(r.Context(), u.ID)
	if err != nil {
		h.logger.Error("looking up primary organization", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to log in")
		return
	}

	token, err := h.tokens.IssueSession(u.ID, u.Email, orgID)
	if err != nil {
		h.logger.Error("issuing session token", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to log in")
		return
	}

	// Users with an organization get a full-access API key for Redis
	// operations, issued once and reused on later logins.
	var apiKeyToken *string
	if orgID != nil {
		key, err := h.apiKeys.EnsureLoginKey(r.Context(), *orgID, u.ID, u.Email)
		if err != nil {
			h.logger.Error("ensuring login api key", "error", err)
		} else {
			apiKeyToken = &key
		}
	}

	h.audit.LogFromRequest(r, "login", "user", u.ID, nil)
	h.logger.Info("login successful", "user_id", u.ID)

	httpserver.Respond(w, http.StatusOK, LoginResponse{
		Token:          token,
		User:           u,
		APIKey:         apiKeyToken,
		OrganizationID: orgID,
	})
}
