package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"bankdash/internal/core"
)

const testKid = "test-key-1"

type fakeRoleLookup struct {
	users map[string]core.User
}

func (f *fakeRoleLookup) GetUserByAuthID(_ context.Context, authProviderID string) (core.User, error) {
	u, ok := f.users[authProviderID]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return u, nil
}

func newTestKeyAndJWKS(t *testing.T) (*rsa.PrivateKey, *httptest.Server) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		set := jwkSet{Keys: []jwk{{
			Kty: "RSA",
			Kid: testKid,
			N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}}}
		json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(srv.Close)
	return key, srv
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func okHandler() (http.Handler, *bool) {
	called := false
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}), &called
}

func TestRequireAuth(t *testing.T) {
	key, srv := newTestKeyAndJWKS(t)
	mw := NewMiddleware(NewJWKSCache(srv.URL), &fakeRoleLookup{}, false)

	t.Run("valid token passes with identity in context", func(t *testing.T) {
		var got Identity
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = FromContext(r.Context())
		})

		req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, key, jwt.MapClaims{
			"sub":   "auth|alice",
			"email": "alice@example.com",
			"exp":   time.Now().Add(time.Hour).Unix(),
		}))
		rec := httptest.NewRecorder()
		mw.RequireAuth(next).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
		}
		if got.Subject != "auth|alice" || got.Email != "alice@example.com" {
			t.Errorf("identity = %+v", got)
		}
	})

	t.Run("missing header is 401", func(t *testing.T) {
		next, called := okHandler()
		req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
		rec := httptest.NewRecorder()
		mw.RequireAuth(next).ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
		if *called {
			t.Error("handler ran without credentials")
		}

		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("response is not JSON: %v", err)
		}
		if body["success"] != false {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("expired token is 401", func(t *testing.T) {
		next, called := okHandler()
		req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, key, jwt.MapClaims{
			"sub": "auth|alice",
			"exp": time.Now().Add(-time.Hour).Unix(),
		}))
		rec := httptest.NewRecorder()
		mw.RequireAuth(next).ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized || *called {
			t.Errorf("status = %d, called = %v", rec.Code, *called)
		}
	})

	t.Run("wrong signing key is 401", func(t *testing.T) {
		otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		next, called := okHandler()
		req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, otherKey, jwt.MapClaims{
			"sub": "auth|mallory",
			"exp": time.Now().Add(time.Hour).Unix(),
		}))
		rec := httptest.NewRecorder()
		mw.RequireAuth(next).ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized || *called {
			t.Errorf("status = %d, called = %v", rec.Code, *called)
		}
	})
}

func TestRequireAdmin(t *testing.T) {
	key, srv := newTestKeyAndJWKS(t)
	users := &fakeRoleLookup{users: map[string]core.User{
		"auth|admin":  {AuthProviderID: "auth|admin", Role: core.RoleAdmin},
		"auth|viewer": {AuthProviderID: "auth|viewer", Role: core.RoleViewer},
	}}
	mw := NewMiddleware(NewJWKSCache(srv.URL), users, false)

	request := func(sub string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/person-mappings", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, key, jwt.MapClaims{
			"sub": sub,
			"exp": time.Now().Add(time.Hour).Unix(),
		}))
		rec := httptest.NewRecorder()
		next, _ := okHandler()
		mw.RequireAdmin(next).ServeHTTP(rec, req)
		return rec
	}

	t.Run("admin passes", func(t *testing.T) {
		if rec := request("auth|admin"); rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("viewer is 403", func(t *testing.T) {
		if rec := request("auth|viewer"); rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("unregistered subject is 403", func(t *testing.T) {
		if rec := request("auth|stranger"); rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})
}

func TestDevBypass(t *testing.T) {
	mw := NewMiddleware(NewJWKSCache(""), &fakeRoleLookup{}, true)

	var got Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/statistics", nil)
	rec := httptest.NewRecorder()
	mw.RequireAdmin(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got.Subject != "dev-user" || got.Role != core.RoleAdmin {
		t.Errorf("identity = %+v", got)
	}

	t.Run("bypass requires dev mode", func(t *testing.T) {
		strict := NewMiddleware(NewJWKSCache(""), &fakeRoleLookup{}, false)
		next, called := okHandler()
		rec := httptest.NewRecorder()
		strict.RequireAuth(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusUnauthorized || *called {
			t.Errorf("status = %d, called = %v", rec.Code, *called)
		}
	})
}

func TestJWKSCacheInvalidate(t *testing.T) {
	_, srv := newTestKeyAndJWKS(t)
	cache := NewJWKSCache(srv.URL)

	if _, err := cache.Key(context.Background(), testKid); err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}
	cache.Invalidate()
	if _, err := cache.Key(context.Background(), testKid); err != nil {
		t.Fatalf("fetch after invalidate failed: %v", err)
	}
	if _, err := cache.Key(context.Background(), "unknown-kid"); err == nil {
		t.Error("expected error for unknown kid")
	}
}
