// Package auth verifies bearer tokens issued by the identity provider
// and gates handlers by role. Keys are fetched lazily from the
// provider's JWKS endpoint and cached until invalidated.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/avast/retry-go"

	"bankdash/internal/cache"
)

// jwk is the subset of a JSON Web Key needed to build an RSA public key.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

// keyTTL bounds how long a signing key is trusted without refetching,
// so routine rotation is picked up even when old tokens keep verifying.
const keyTTL = time.Hour

// JWKSCache caches the provider's signing keys by key id. The first
// lookup triggers a fetch; keys age out after keyTTL, and Invalidate
// forces a refetch on the next lookup, which handles key rotation.
type JWKSCache struct {
	url    string
	client *http.Client

	mu   sync.Mutex
	keys *cache.LRU[*rsa.PublicKey]
}

func NewJWKSCache(url string) *JWKSCache {
	return &JWKSCache{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		keys:   cache.NewLRU[*rsa.PublicKey](16, keyTTL),
	}
}

// Key returns the public key for kid, fetching the key set if it is not
// cached yet. An unknown kid after a fresh fetch is an error.
func (c *JWKSCache) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if c.url == "" {
		return nil, fmt.Errorf("jwks url not configured")
	}

	// The lock spans the fetch so concurrent misses do not stampede
	// the endpoint.
	c.mu.Lock()
	defer c.mu.Unlock()

	if key, ok := c.keys.Get(kid); ok {
		return key, nil
	}

	keys, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	for id, key := range keys {
		c.keys.Set(id, key)
	}

	key, ok := c.keys.Get(kid)
	if !ok {
		return nil, fmt.Errorf("no signing key for kid %q", kid)
	}
	return key, nil
}

// Invalidate drops the cached key set.
func (c *JWKSCache) Invalidate() {
	c.keys.Clear()
}

func (c *JWKSCache) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	var set jwkSet
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
			if err != nil {
				return err
			}
			resp, err := c.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("jwks endpoint returned %s", resp.Status)
			}
			return json.NewDecoder(resp.Body).Decode(&set)
		},
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			return nil, fmt.Errorf("parse jwk %q: %w", k.Kid, err)
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("jwks contains no usable RSA keys")
	}
	return keys, nil
}

func (k jwk) publicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e <= 1 {
		return nil, fmt.Errorf("invalid public exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
