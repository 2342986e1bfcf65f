// Package auth verifies bearer tokens and carries the caller identity
// through request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SystemActor is recorded when a request carries no identity.
const SystemActor = "system"

// UserIDHeader lets gateways pass the acting user explicitly.
const UserIDHeader = "X-User-Id"

// Sentinel kinds for authentication errors.
var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Claims is the token payload issued by the auth service.
type Claims struct {
	Sub  string `json:"sub"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator parses HMAC-signed tokens. With an empty secret tokens are
// accepted unverified and only forwarded downstream.
type Authenticator struct {
	hmac     []byte
	required bool
	onError  func(w http.ResponseWriter, r *http.Request, err error)
}

// Option applies a configuration option to the Authenticator.
type Option func(*Authenticator)

// WithRequired rejects requests without a valid token.
func WithRequired(required bool) Option {
	return func(a *Authenticator) { a.required = required }
}

// WithErrorWriter sets how rejected requests are answered.
func WithErrorWriter(fn func(w http.ResponseWriter, r *http.Request, err error)) Option {
	return func(a *Authenticator) {
		if fn != nil {
			a.onError = fn
		}
	}
}

// NewAuthenticator creates an authenticator for secret.
func NewAuthenticator(secret string, opts ...Option) *Authenticator {
	a := &Authenticator{
		hmac: []byte(secret),
		onError: func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetErrorWriter replaces how rejected requests are answered.
func (a *Authenticator) SetErrorWriter(fn func(w http.ResponseWriter, r *http.Request, err error)) {
	if fn != nil {
		a.onError = fn
	}
}

// Verifies reports whether tokens are checked against a secret.
func (a *Authenticator) Verifies() bool { return len(a.hmac) > 0 }

// Issue signs a token for sub, used by tooling and tests.
func (a *Authenticator) Issue(sub, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Sub:  sub,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "distrischool",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.hmac)
}

// Parse verifies tokenStr and returns its claims.
func (a *Authenticator) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	if !a.Verifies() {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
		return claims, nil
	}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.hmac, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Middleware attaches the bearer token and its claims to the request
// context. Invalid tokens are always rejected; missing ones only when the
// authenticator is required.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			if a.required {
				a.onError(w, r, ErrMissingToken)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		raw := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		claims, err := a.Parse(raw)
		if err != nil {
			a.onError(w, r, err)
			return
		}
		ctx := WithToken(r.Context(), raw)
		ctx = WithClaims(ctx, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type ctxKey int

const (
	tokenKey ctxKey = iota
	claimsKey
)

// WithToken stores a raw bearer token for forwarding to other services.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// TokenFrom returns the bearer token stored by WithToken.
func TokenFrom(ctx context.Context) string {
	tok, _ := ctx.Value(tokenKey).(string)
	return tok
}

// WithClaims stores parsed claims.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// ClaimsFrom returns the claims stored by WithClaims.
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok && c != nil
}

// Actor names the caller of r: the X-User-Id header, then the token
// subject, then SystemActor.
func Actor(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(UserIDHeader)); id != "" {
		return id
	}
	if c, ok := ClaimsFrom(r.Context()); ok && c.Sub != "" {
		return c.Sub
	}
	return SystemActor
}
