package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"bankdash/internal/core"
)

// Identity is the verified principal attached to a request.
type Identity struct {
	Subject string
	Email   string
	Role    string
}

type contextKey struct{}

// FromContext returns the identity set by RequireAuth or RequireAdmin.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// RoleLookup resolves a token subject to a registered user.
type RoleLookup interface {
	GetUserByAuthID(ctx context.Context, authProviderID string) (core.User, error)
}

// Middleware verifies bearer tokens against the JWKS cache. When no
// JWKS URL is configured and dev mode is on, requests pass through with
// a synthetic admin identity so the dashboard works locally without an
// identity provider.
type Middleware struct {
	jwks    *JWKSCache
	users   RoleLookup
	devMode bool
}

func NewMiddleware(jwks *JWKSCache, users RoleLookup, devMode bool) *Middleware {
	return &Middleware{jwks: jwks, users: users, devMode: devMode}
}

var devIdentity = Identity{Subject: "dev-user", Email: "dev@localhost", Role: core.RoleAdmin}

func (m *Middleware) bypass() bool {
	return m.devMode && (m.jwks == nil || m.jwks.url == "")
}

// RequireAuth rejects requests without a valid bearer token.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.bypass() {
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), devIdentity)))
			return
		}

		id, err := m.authenticate(r)
		if err != nil {
			slog.WarnContext(r.Context(), "Authentication failed",
				"method", r.Method, "path", r.URL.Path, "error", err)
			writeAuthError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

// RequireAdmin additionally checks the stored role of the token subject.
// An authenticated but unregistered subject is forbidden, not unauthorized.
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.bypass() {
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), devIdentity)))
			return
		}

		id, err := m.authenticate(r)
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, err.Error())
			return
		}

		user, err := m.users.GetUserByAuthID(r.Context(), id.Subject)
		if errors.Is(err, core.ErrNotFound) {
			slog.WarnContext(r.Context(), "Unregistered subject", "subject", id.Subject)
			writeAuthError(w, http.StatusForbidden, "user not registered")
			return
		}
		if err != nil {
			writeAuthError(w, http.StatusInternalServerError, "user lookup failed")
			return
		}
		if user.Role != core.RoleAdmin {
			slog.WarnContext(r.Context(), "Admin access denied",
				"subject", id.Subject, "role", user.Role)
			writeAuthError(w, http.StatusForbidden, "admin access required")
			return
		}

		id.Role = user.Role
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

func (m *Middleware) authenticate(r *http.Request) (Identity, error) {
	token := bearerToken(r)
	if token == "" {
		return Identity{}, errors.New("authorization header required")
	}

	claims, err := m.verify(r.Context(), token)
	if err != nil {
		return Identity{}, err
	}

	id := Identity{Role: core.RoleViewer}
	if sub, ok := claims["sub"].(string); ok {
		id.Subject = sub
	}
	if email, ok := claims["email"].(string); ok {
		id.Email = email
	}
	if id.Subject == "" {
		return Identity{}, errors.New("token missing subject")
	}
	return id, nil
}

func (m *Middleware) verify(ctx context.Context, tokenString string) (jwt.MapClaims, error) {
	keyfunc := func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token missing kid header")
		}
		return m.jwks.Key(ctx, kid)
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, keyfunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err == nil {
		return claims, nil
	}

	// A signature failure right after key rotation is expected once:
	// drop the cache and try again with fresh keys.
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || strings.Contains(err.Error(), "no signing key") {
		m.jwks.Invalidate()
		if _, retryErr := jwt.ParseWithClaims(tokenString, claims, keyfunc,
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithExpirationRequired(),
		); retryErr == nil {
			return claims, nil
		}
	}
	return nil, fmt.Errorf("invalid token: %w", err)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

func withIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   message,
	})
}
