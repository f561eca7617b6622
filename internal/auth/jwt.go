package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

const issuer = "redisgate"

// Token kinds. The kind claim is the discriminant between the two shapes.
const (
	KindSession = "session"
	KindAPIKey  = "api_key"
)

// Typed verification failures, narrowed from go-jose errors so the HTTP
// layer can map them without string matching.
var (
	ErrMissingToken     = errors.New("missing token")
	ErrMalformedToken   = errors.New("malformed token")
	ErrExpiredToken     = errors.New("token expired")
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrRevoked          = errors.New("token revoked")
	ErrWrongKind        = errors.New("wrong token kind")
)

// SessionClaims are the custom claims of an interactive session token.
type SessionClaims struct {
	Kind   string     `json:"kind"`
	UserID uuid.UUID  `json:"user_id"`
	Email  string     `json:"email"`
	OrgID  *uuid.UUID `json:"org_id,omitempty"`
}

// APIKeyClaims are the custom claims of a Redis-access API key token.
type APIKeyClaims struct {
	Kind      string     `json:"kind"`
	APIKeyID  uuid.UUID  `json:"api_key_id"`
	UserID    uuid.UUID  `json:"user_id"`
	OrgID     uuid.UUID  `json:"org_id"`
	Scopes    []string   `json:"scopes"`
	KeyPrefix string     `json:"key_prefix"`
	ExpiresAt *time.Time `json:"-"`
}

// HasScope reports whether the key authorizes the given command family.
// The "*" scope authorizes everything.
func (c *APIKeyClaims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == "*" || s == scope {
			return true
		}
	}
	return false
}

// GenerateDevSecret generates a random 32-byte hex-encoded secret for
// development mode.
func GenerateDevSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	return hex.EncodeToString(b)
}

// TokenService issues and verifies both token shapes under a single
// process-wide HMAC-SHA256 secret.
type TokenService struct {
	signingKey []byte
	sessionTTL time.Duration
}

// NewTokenService creates a token service. The secret must be non-empty.
func NewTokenService(secret string, sessionTTL time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret must not be empty")
	}
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &TokenService{
		signingKey: []byte(secret),
		sessionTTL: sessionTTL,
	}, nil
}

// IssueSession creates a signed session token for the given user.
func (ts *TokenService) IssueSession(userID uuid.UUID, email string, orgID *uuid.UUID) (string, error) {
	now := time.Now()
	expiry := now.Add(ts.sessionTTL)
	claims := SessionClaims{
		Kind:   KindSession,
		UserID: userID,
		Email:  email,
		OrgID:  orgID,
	}
	return ts.sign(claims, now, &expiry)
}

// IssueAPIKey creates a signed API key token. A nil expiresAt issues a
// non-expiring key.
func (ts *TokenService) IssueAPIKey(claims APIKeyClaims) (string, error) {
	claims.Kind = KindAPIKey
	return ts.sign(claims, time.Now(), claims.ExpiresAt)
}

func (ts *TokenService) sign(custom any, now time.Time, expiry *time.Time) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: ts.signingKey},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("creating signer: %w", err)
	}

	registered := jwt.Claims{
		Issuer:   issuer,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if expiry != nil {
		registered.Expiry = jwt.NewNumericDate(*expiry)
	}

	token, err := jwt.Signed(signer).Claims(registered).Claims(custom).Serialize()
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}

// VerifySession verifies a session token and returns its claims.
func (ts *TokenService) VerifySession(raw string) (*SessionClaims, error) {
	var claims SessionClaims
	if err := ts.verify(raw, &claims); err != nil {
		return nil, err
	}
	if claims.Kind != KindSession {
		return nil, ErrWrongKind
	}
	return &claims, nil
}

// VerifyAPIKey verifies an API key token and returns its claims.
func (ts *TokenService) VerifyAPIKey(raw string) (*APIKeyClaims, error) {
	var claims APIKeyClaims
	if err := ts.verify(raw, &claims); err != nil {
		return nil, err
	}
	if claims.Kind != KindAPIKey {
		return nil, ErrWrongKind
	}
	return &claims, nil
}

func (ts *TokenService) verify(raw string, custom any) error {
	if raw == "" {
		return ErrMissingToken
	}

	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	var registered jwt.Claims
	if err := tok.Claims(ts.signingKey, &registered, custom); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	err = registered.ValidateWithLeeway(jwt.Expected{
		Issuer: issuer,
		Time:   time.Now(),
	}, 5*time.Second)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrExpired):
		return ErrExpiredToken
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}
