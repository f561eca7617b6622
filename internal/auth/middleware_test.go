package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeUserLoader struct {
	users    map[uuid.UUID]*CurrentUser
	inactive map[uuid.UUID]bool
}

func (f *fakeUserLoader) LoadActiveUser(_ context.Context, id uuid.UUID) (*CurrentUser, error) {
	if f.inactive[id] {
		return nil, ErrUserNotActive
	}
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s not found", id)
	}
	return u, nil
}

type fakeKeyChecker struct {
	status map[uuid.UUID]KeyStatus
}

func (f *fakeKeyChecker) CheckKey(_ context.Context, id uuid.UUID) (KeyStatus, error) {
	return f.status[id], nil
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestSessionMiddleware(t *testing.T) {
	ts := newTestService(t, time.Hour)
	userID := uuid.New()
	inactiveID := uuid.New()

	loader := &fakeUserLoader{
		users: map[uuid.UUID]*CurrentUser{
			userID: {ID: userID, Email: "alice@example.com", Username: "alice"},
		},
		inactive: map[uuid.UUID]bool{inactiveID: true},
	}

	var captured *CurrentUser
	handler := SessionMiddleware(ts, loader, discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token", func(t *testing.T) {
		captured = nil
		token, _ := ts.IssueSession(userID, "alice@example.com", nil)

		req := httptest.NewRequest("GET", "/api/organizations", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if captured == nil || captured.ID != userID {
			t.Errorf("captured user = %+v, want id %v", captured, userID)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/organizations", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assertUnauthorized(t, rec)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/organizations", nil)
		req.Header.Set("Authorization", "Bearer nonsense")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assertUnauthorized(t, rec)
	})

	t.Run("inactive user", func(t *testing.T) {
		token, _ := ts.IssueSession(inactiveID, "bob@example.com", nil)
		req := httptest.NewRequest("GET", "/api/organizations", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assertUnauthorized(t, rec)
	})

	t.Run("api key token rejected on session route", func(t *testing.T) {
		token, _ := ts.IssueAPIKey(APIKeyClaims{
			APIKeyID: uuid.New(), UserID: userID, OrgID: uuid.New(),
			Scopes: []string{"*"}, KeyPrefix: "rg_x",
		})
		req := httptest.NewRequest("GET", "/api/organizations", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assertUnauthorized(t, rec)
	})
}

func TestAPIKeyMiddleware(t *testing.T) {
	ts := newTestService(t, time.Hour)
	activeKey := uuid.New()
	revokedKey := uuid.New()
	rps := 50

	checker := &fakeKeyChecker{status: map[uuid.UUID]KeyStatus{
		activeKey:  {Active: true, RateLimitRPS: &rps},
		revokedKey: {Active: false},
	}}

	var captured *APIKeyIdentity
	handler := APIKeyMiddleware(ts, checker, discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = APIKeyFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	issue := func(keyID uuid.UUID) string {
		token, err := ts.IssueAPIKey(APIKeyClaims{
			APIKeyID: keyID, UserID: uuid.New(), OrgID: uuid.New(),
			Scopes: []string{"*"}, KeyPrefix: "rg_test",
		})
		if err != nil {
			t.Fatalf("IssueAPIKey() error = %v", err)
		}
		return token
	}

	t.Run("active key", func(t *testing.T) {
		captured = nil
		req := httptest.NewRequest("GET", "/redis/x/ping", nil)
		req.Header.Set("Authorization", "Bearer "+issue(activeKey))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if captured == nil || captured.Claims.APIKeyID != activeKey {
			t.Fatalf("captured identity = %+v", captured)
		}
		if captured.RateLimitRPS == nil || *captured.RateLimitRPS != 50 {
			t.Errorf("RateLimitRPS = %v, want 50", captured.RateLimitRPS)
		}
	})

	t.Run("revoked key", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/redis/x/ping", nil)
		req.Header.Set("Authorization", "Bearer "+issue(revokedKey))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assertUnauthorized(t, rec)
	})

	t.Run("unknown key", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/redis/x/ping", nil)
		req.Header.Set("Authorization", "Bearer "+issue(uuid.New()))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assertUnauthorized(t, rec)
	})
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		wantOK bool
	}{
		{"valid", "Bearer abc.def.ghi", "abc.def.ghi", true},
		{"lowercase scheme", "bearer tok", "tok", true},
		{"missing", "", "", false},
		{"wrong scheme", "Basic dXNlcg==", "", false},
		{"empty token", "Bearer ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, ok := BearerToken(r)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("BearerToken() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func assertUnauthorized(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var body struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshaling body: %v", err)
	}
	if body.Success || body.Error == "" {
		t.Errorf("body = %+v, want failure envelope", body)
	}
}
