// AngelaMos | 2026
// jwt.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/config"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/core"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/middleware"
)

const (
	tokenTypeSession = "session"
	tokenTypePending = "pending"

	PurposeTOTPVerify = "totp_verify"
	PendingTokenTTL   = 300 * time.Second
)

// JWTManager signs session and pending tokens with HS256. The two kinds
// share a key and are told apart by the "type" and "purpose" claims.
type JWTManager struct {
	key        jwk.Key
	sessionTTL time.Duration
	issuer     string
	audience   string
	now        func() time.Time
}

func NewJWTManager(cfg config.JWTConfig) (*JWTManager, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is empty")
	}

	ttl, err := config.ParseTTL(cfg.ExpiresIn)
	if err != nil {
		return nil, fmt.Errorf("parse jwt expiry: %w", err)
	}

	key, err := jwk.Import([]byte(cfg.Secret))
	if err != nil {
		return nil, fmt.Errorf("import signing key: %w", err)
	}

	return &JWTManager{
		key:        key,
		sessionTTL: ttl,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		now:        time.Now,
	}, nil
}

// SetClock overrides the time source for issuing and verifying.
func (m *JWTManager) SetClock(now func() time.Time) {
	m.now = now
}

func (m *JWTManager) SessionTTL() time.Duration {
	return m.sessionTTL
}

type SessionClaims = middleware.SessionClaims

type PendingClaims struct {
	UserID    string
	Email     string
	TokenID   string
	ExpiresAt time.Time
}

func (m *JWTManager) builder(subject string, ttl time.Duration) *jwt.Builder {
	now := m.now()
	b := jwt.NewBuilder().
		JwtID(uuid.New().String()).
		Subject(subject).
		IssuedAt(now).
		Expiration(now.Add(ttl))
	if m.issuer != "" {
		b = b.Issuer(m.issuer)
	}
	if m.audience != "" {
		b = b.Audience([]string{m.audience})
	}
	return b
}

func (m *JWTManager) sign(token jwt.Token) (string, error) {
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256(), m.key))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return string(signed), nil
}

func (m *JWTManager) IssueSession(claims SessionClaims) (string, error) {
	return m.issueSession(claims, m.sessionTTL)
}

func (m *JWTManager) issueSession(claims SessionClaims, ttl time.Duration) (string, error) {
	token, err := m.builder(claims.UserID, ttl).
		Claim("userId", claims.UserID).
		Claim("email", claims.Email).
		Claim("planId", claims.PlanID).
		Claim("isAdmin", claims.IsAdmin).
		Claim("type", tokenTypeSession).
		Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}
	return m.sign(token)
}

func (m *JWTManager) IssuePending(userID, email string) (string, error) {
	token, err := m.builder(userID, PendingTokenTTL).
		Claim("userId", userID).
		Claim("email", email).
		Claim("purpose", PurposeTOTPVerify).
		Claim("type", tokenTypePending).
		Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}
	return m.sign(token)
}

func (m *JWTManager) parse(tokenString string) (jwt.Token, error) {
	if strings.HasPrefix(tokenString, core.APIKeyPrefix) {
		return nil, fmt.Errorf("verify token: api key presented: %w", core.ErrTokenInvalid)
	}

	opts := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256(), m.key),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(m.now)),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}

	token, err := jwt.Parse([]byte(tokenString), opts...)
	if err != nil {
		if isTokenExpiredError(err) {
			return nil, fmt.Errorf("verify token: %w", core.ErrTokenExpired)
		}
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenInvalid)
	}
	return token, nil
}

// VerifySession rejects pending tokens and anything not signed by this
// manager. Callers must still confirm the user exists.
func (m *JWTManager) VerifySession(
	_ context.Context,
	tokenString string,
) (*SessionClaims, error) {
	token, err := m.parse(tokenString)
	if err != nil {
		return nil, err
	}

	var purpose string
	if token.Get("purpose", &purpose) == nil && purpose != "" {
		return nil, fmt.Errorf("verify token: purpose %q: %w", purpose, core.ErrTokenWrongPurpose)
	}

	var tokenType string
	if err := token.Get("type", &tokenType); err != nil || tokenType != tokenTypeSession {
		return nil, fmt.Errorf("verify token: invalid token type: %w", core.ErrTokenWrongPurpose)
	}

	var claims SessionClaims
	if err := token.Get("userId", &claims.UserID); err != nil || claims.UserID == "" {
		return nil, fmt.Errorf("verify token: missing userId: %w", core.ErrTokenInvalid)
	}
	if err := token.Get("email", &claims.Email); err != nil {
		return nil, fmt.Errorf("verify token: missing email: %w", core.ErrTokenInvalid)
	}
	if err := token.Get("planId", &claims.PlanID); err != nil {
		return nil, fmt.Errorf("verify token: missing planId: %w", core.ErrTokenInvalid)
	}
	if err := token.Get("isAdmin", &claims.IsAdmin); err != nil {
		return nil, fmt.Errorf("verify token: missing isAdmin: %w", core.ErrTokenInvalid)
	}

	return &claims, nil
}

func (m *JWTManager) VerifyPending(tokenString string) (*PendingClaims, error) {
	token, err := m.parse(tokenString)
	if err != nil {
		return nil, err
	}

	var purpose string
	if err := token.Get("purpose", &purpose); err != nil || purpose != PurposeTOTPVerify {
		return nil, fmt.Errorf("verify pending token: %w", core.ErrTokenWrongPurpose)
	}

	var claims PendingClaims
	if err := token.Get("userId", &claims.UserID); err != nil || claims.UserID == "" {
		return nil, fmt.Errorf("verify pending token: missing userId: %w", core.ErrTokenInvalid)
	}
	if err := token.Get("email", &claims.Email); err != nil {
		return nil, fmt.Errorf("verify pending token: missing email: %w", core.ErrTokenInvalid)
	}

	jti, ok := token.JwtID()
	if !ok || jti == "" {
		return nil, fmt.Errorf("verify pending token: missing jti: %w", core.ErrTokenInvalid)
	}
	claims.TokenID = jti

	if exp, ok := token.Expiration(); ok {
		claims.ExpiresAt = exp
	}

	return &claims, nil
}

func isTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "exp") &&
		(strings.Contains(errStr, "not satisfied") || strings.Contains(errStr, "expired"))
}
