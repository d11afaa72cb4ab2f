// Package jwks is a test identity provider: it publishes an RSA signing key
// as a JWKS document over httptest and mints RS256 access tokens.
package jwks

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	Audience = "drinks"
	Path     = "/.well-known/jwks.json"
)

type Issuer struct {
	Server *httptest.Server

	mu      sync.RWMutex
	key     *rsa.PrivateKey
	kid     string
	fetches atomic.Int64
}

// NewIssuer starts the JWKS endpoint and closes it when the test ends.
func NewIssuer(t testing.TB) *Issuer {
	t.Helper()
	iss := &Issuer{}
	iss.Rotate(t, "test-key-1")
	iss.Server = httptest.NewServer(http.HandlerFunc(iss.serveJWKS))
	t.Cleanup(iss.Server.Close)
	return iss
}

func (i *Issuer) URL() string    { return i.Server.URL + Path }
func (i *Issuer) Issuer() string { return i.Server.URL + "/" }

// Fetches counts JWKS requests served so far.
func (i *Issuer) Fetches() int64 { return i.fetches.Load() }

func (i *Issuer) KID() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.kid
}

// Rotate replaces the published signing key.
func (i *Issuer) Rotate(t testing.TB, kid string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	i.mu.Lock()
	i.key, i.kid = key, kid
	i.mu.Unlock()
}

// Token mints a valid access token carrying the given permissions.
func (i *Issuer) Token(t testing.TB, permissions ...string) string {
	t.Helper()
	if permissions == nil {
		permissions = []string{}
	}
	return i.Sign(t, i.Claims(permissions...))
}

// Claims returns a valid claim set that callers may tweak before Sign.
func (i *Issuer) Claims(permissions ...string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":         i.Issuer(),
		"aud":         Audience,
		"sub":         "auth0|barista",
		"iat":         now.Unix(),
		"exp":         now.Add(time.Hour).Unix(),
		"permissions": permissions,
	}
}

// Sign signs claims with the current key and kid.
func (i *Issuer) Sign(t testing.TB, claims jwt.Claims) string {
	t.Helper()
	i.mu.RLock()
	key, kid := i.key, i.kid
	i.mu.RUnlock()
	return SignWith(t, key, kid, claims)
}

// SignWith signs claims with an arbitrary key, e.g. one the issuer never published.
func SignWith(t testing.TB, key *rsa.PrivateKey, kid string, claims jwt.Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	s, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func (i *Issuer) serveJWKS(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != Path {
		http.NotFound(w, r)
		return
	}
	i.fetches.Add(1)
	i.mu.RLock()
	pub, kid := i.key.PublicKey, i.kid
	i.mu.RUnlock()

	doc := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"use": "sig",
			"alg": "RS256",
			"kid": kid,
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(doc)
}
