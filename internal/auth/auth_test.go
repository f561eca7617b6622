package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("S3cret!Pass", 10)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	if !VerifyPassword("S3cret!Pass", hash) {
		t.Error("correct password rejected")
	}
	if VerifyPassword("wrong-password", hash) {
		t.Error("wrong password accepted")
	}
}

func TestHashPasswordEnforcesMinCost(t *testing.T) {
	// A cost below the floor is raised to it; the resulting hash must still
	// verify.
	hash, err := HashPassword("pw", 4)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if !VerifyPassword("pw", hash) {
		t.Error("hash with raised cost does not verify")
	}
}

func newTestService(t *testing.T, ttl time.Duration) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-0123456789abcdef0123456789", ttl)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	return ts
}

func TestSessionTokenRoundTrip(t *testing.T) {
	ts := newTestService(t, time.Hour)
	userID := uuid.New()
	orgID := uuid.New()

	token, err := ts.IssueSession(userID, "alice@example.com", &orgID)
	if err != nil {
		t.Fatalf("IssueSession() error = %v", err)
	}

	claims, err := ts.VerifySession(token)
	if err != nil {
		t.Fatalf("VerifySession() error = %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("UserID = %v, want %v", claims.UserID, userID)
	}
	if claims.Email != "alice@example.com" {
		t.Errorf("Email = %q", claims.Email)
	}
	if claims.OrgID == nil || *claims.OrgID != orgID {
		t.Errorf("OrgID = %v, want %v", claims.OrgID, orgID)
	}
}

func TestAPIKeyTokenRoundTrip(t *testing.T) {
	ts := newTestService(t, time.Hour)
	keyID := uuid.New()

	token, err := ts.IssueAPIKey(APIKeyClaims{
		APIKeyID:  keyID,
		UserID:    uuid.New(),
		OrgID:     uuid.New(),
		Scopes:    []string{"*"},
		KeyPrefix: "rg_0123456789ab",
	})
	if err != nil {
		t.Fatalf("IssueAPIKey() error = %v", err)
	}

	claims, err := ts.VerifyAPIKey(token)
	if err != nil {
		t.Fatalf("VerifyAPIKey() error = %v", err)
	}
	if claims.APIKeyID != keyID {
		t.Errorf("APIKeyID = %v, want %v", claims.APIKeyID, keyID)
	}
	if !claims.HasScope("set") {
		t.Error("wildcard scope should cover 'set'")
	}
}

func TestVerifyRejectsWrongKind(t *testing.T) {
	ts := newTestService(t, time.Hour)

	session, _ := ts.IssueSession(uuid.New(), "a@b.c", nil)
	if _, err := ts.VerifyAPIKey(session); !errors.Is(err, ErrWrongKind) {
		t.Errorf("VerifyAPIKey(session token) error = %v, want ErrWrongKind", err)
	}

	apiKey, _ := ts.IssueAPIKey(APIKeyClaims{
		APIKeyID: uuid.New(), UserID: uuid.New(), OrgID: uuid.New(),
		Scopes: []string{"*"}, KeyPrefix: "rg_x",
	})
	if _, err := ts.VerifySession(apiKey); !errors.Is(err, ErrWrongKind) {
		t.Errorf("VerifySession(api key token) error = %v, want ErrWrongKind", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	ts := newTestService(t, time.Hour)

	expired := time.Now().Add(-time.Hour)
	token, err := ts.IssueAPIKey(APIKeyClaims{
		APIKeyID: uuid.New(), UserID: uuid.New(), OrgID: uuid.New(),
		Scopes: []string{"*"}, KeyPrefix: "rg_x", ExpiresAt: &expired,
	})
	if err != nil {
		t.Fatalf("IssueAPIKey() error = %v", err)
	}

	if _, err := ts.VerifyAPIKey(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("VerifyAPIKey(expired) error = %v, want ErrExpiredToken", err)
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	ts := newTestService(t, time.Hour)
	other := newTestService(t, time.Hour)
	other.signingKey = []byte("another-secret-another-secret-another")

	token, _ := ts.IssueSession(uuid.New(), "a@b.c", nil)

	if _, err := other.VerifySession(token); !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("VerifySession(wrong key) error = %v, want ErrSignatureInvalid", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	ts := newTestService(t, time.Hour)

	if _, err := ts.VerifySession(""); !errors.Is(err, ErrMissingToken) {
		t.Errorf("empty token error = %v, want ErrMissingToken", err)
	}
	if _, err := ts.VerifySession("not.a.jwt"); !errors.Is(err, ErrMalformedToken) {
		t.Errorf("garbage token error = %v, want ErrMalformedToken", err)
	}
}

func TestAPIKeyScopes(t *testing.T) {
	tests := []struct {
		name   string
		scopes []string
		check  string
		want   bool
	}{
		{"wildcard", []string{"*"}, "hset", true},
		{"exact match", []string{"get", "set"}, "set", true},
		{"no match", []string{"get"}, "del", false},
		{"empty scopes", nil, "get", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := APIKeyClaims{Scopes: tt.scopes}
			if got := c.HasScope(tt.check); got != tt.want {
				t.Errorf("HasScope(%q) = %v, want %v", tt.check, got, tt.want)
			}
		})
	}
}
