package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redisgate/redisgate/internal/httpserver"
)

// Record is the JSON shape of one audit log entry.
type Record struct {
	ID         uuid.UUID       `json:"id"`
	UserID     *uuid.UUID      `json:"user_id,omitempty"`
	APIKeyID   *uuid.UUID      `json:"api_key_id,omitempty"`
	Action     string          `json:"action"`
	Resource   string          `json:"resource"`
	ResourceID uuid.UUID       `json:"resource_id"`
	Detail     json.RawMessage `json:"detail"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Handler provides HTTP handlers for the audit log API.
type Handler struct {
	logger *slog.Logger
	pool   *pgxpool.Pool
}

// NewHandler creates an audit log Handler.
func NewHandler(logger *slog.Logger, pool *pgxpool.Pool) *Handler {
	return &Handler{logger: logger, pool: pool}
}

// Routes returns a chi.Router with audit log routes mounted. The router is
// mounted under an organization scope whose membership the caller has
// already established.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid organization ID")
		return
	}

	params := httpserver.ParsePageParams(r)

	items, total, err := h.list(r, orgID, params)
	if err != nil {
		h.logger.Error("listing audit log", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}

	httpserver.Respond(w, http.StatusOK, httpserver.NewPage(items, params, total))
}

func (h *Handler) list(r *http.Request, orgID uuid.UUID, params httpserver.PageParams) ([]Record, int64, error) {
	rows, err := h.pool.Query(r.Context(), `
		SELECT id, user_id, api_key_id, action, resource, resource_id, detail, created_at
		FROM audit_log
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		orgID, params.Limit, params.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var items []Record
	for rows.Next() {
		var rec Record
		var userID, apiKeyID pgtype.UUID
		if err := rows.Scan(&rec.ID, &userID, &apiKeyID, &rec.Action, &rec.Resource, &rec.ResourceID, &rec.Detail, &rec.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning audit row: %w", err)
		}
		if userID.Valid {
			id := uuid.UUID(userID.Bytes)
			rec.UserID = &id
		}
		if apiKeyID.Valid {
			id := uuid.UUID(apiKeyID.Bytes)
			rec.APIKeyID = &id
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating audit rows: %w", err)
	}

	var total int64
	if err := h.pool.QueryRow(r.Context(),
		`SELECT COUNT(*) FROM audit_log WHERE organization_id = $1`, orgID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting audit rows: %w", err)
	}

	return items, total, nil
}
