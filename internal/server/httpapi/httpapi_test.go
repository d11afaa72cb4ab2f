package httpapi

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdelrahman543873/coffeshop/internal/logging"
	"github.com/abdelrahman543873/coffeshop/internal/server/auth"
	"github.com/abdelrahman543873/coffeshop/internal/server/repository/sqlite"
	"github.com/abdelrahman543873/coffeshop/internal/server/service"
	"github.com/abdelrahman543873/coffeshop/internal/testsupport/jwks"
)

var allPermissions = []string{
	auth.PermGetDrinksDetail, auth.PermPostDrinks, auth.PermPatchDrinks, auth.PermDeleteDrinks,
}

type testEnv struct {
	handler http.Handler
	issuer  *jwks.Issuer
	repo    *sqlite.Repository
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	repo, err := sqlite.New("file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	iss := jwks.NewIssuer(t)
	keys, err := auth.NewKeySet(context.Background(), auth.KeySetConfig{URL: iss.URL()})
	require.NoError(t, err)
	t.Cleanup(keys.Close)
	verifier := auth.NewVerifier(keys, auth.VerifierConfig{Issuer: iss.Issuer(), Audience: jwks.Audience})
	if opts.MaxRequestBytes == 0 {
		opts.MaxRequestBytes = 1 << 20
	}
	h := NewRouter(service.NewServices(repo), verifier, discardLogger(), opts)
	return &testEnv{handler: h, issuer: iss, repo: repo}
}

func (e *testEnv) token(t *testing.T, perms ...string) string {
	t.Helper()
	return "Bearer " + e.issuer.Token(t, perms...)
}

func (e *testEnv) do(t *testing.T, method, path string, body any, authz string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func assertEnvelope(t *testing.T, rr *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	require.Equal(t, status, rr.Code, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	body := decode(t, rr)
	assert.Equal(t, false, body["success"])
	assert.EqualValues(t, status, body["error"])
	assert.Equal(t, message, body["message"])
}

func latteBody() map[string]any {
	return map[string]any{"drink": map[string]any{
		"id":    7,
		"title": "Latte",
		"recipe": []map[string]any{
			{"name": "espresso", "color": "brown", "parts": 1},
			{"name": "milk", "color": "white", "parts": 3},
		},
	}}
}

func TestListDrinksEmptyIsNotFound(t *testing.T) {
	env := newTestEnv(t, Options{})
	assertEnvelope(t, env.do(t, http.MethodGet, "/drinks", nil, ""), http.StatusNotFound, "resource not found")
}

func TestDrinkLifecycle(t *testing.T) {
	env := newTestEnv(t, Options{})
	tok := env.token(t, allPermissions...)

	rr := env.do(t, http.MethodPost, "/drinks", latteBody(), tok)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	created := decode(t, rr)
	assert.Equal(t, true, created["success"])
	drinks := created["drinks"].([]any)
	require.Len(t, drinks, 1)
	assert.EqualValues(t, 7, drinks[0].(map[string]any)["id"])
	assert.Equal(t, "Latte", drinks[0].(map[string]any)["title"])

	rr = env.do(t, http.MethodGet, "/drinks", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	summary := decode(t, rr)["drinks"].([]any)
	require.Len(t, summary, 1)
	assert.NotContains(t, summary[0].(map[string]any), "recipe")

	rr = env.do(t, http.MethodGet, "/drinks-detail", nil, tok)
	require.Equal(t, http.StatusOK, rr.Code)
	detail := decode(t, rr)["drinks"].([]any)
	require.Len(t, detail, 1)
	assert.Len(t, detail[0].(map[string]any)["recipe"], 2)

	rr = env.do(t, http.MethodPatch, "/drinks/7", map[string]any{"drink": map[string]any{"title": "Mocha"}}, tok)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode(t, rr)["drinks"].([]any)[0].(map[string]any)
	assert.EqualValues(t, 7, updated["id"])
	assert.Equal(t, "Mocha", updated["title"])
	assert.Len(t, updated["recipe"], 2)

	rr = env.do(t, http.MethodDelete, "/drinks/7", nil, tok)
	require.Equal(t, http.StatusOK, rr.Code)
	deleted := decode(t, rr)
	assert.Equal(t, true, deleted["success"])
	assert.EqualValues(t, 7, deleted["delete"])

	assertEnvelope(t, env.do(t, http.MethodDelete, "/drinks/7", nil, tok), http.StatusNotFound, "resource not found")
	assertEnvelope(t, env.do(t, http.MethodGet, "/drinks", nil, ""), http.StatusNotFound, "resource not found")
}

func TestCreateAssignsIDWhenOmitted(t *testing.T) {
	env := newTestEnv(t, Options{})
	body := map[string]any{"drink": map[string]any{
		"title":  "Water",
		"recipe": []map[string]any{{"name": "water", "color": "blue", "parts": 1}},
	}}
	rr := env.do(t, http.MethodPost, "/drinks", body, env.token(t, auth.PermPostDrinks))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	d := decode(t, rr)["drinks"].([]any)[0].(map[string]any)
	assert.Greater(t, d["id"].(float64), float64(0))
}

func TestCreateDuplicateIsNotFound(t *testing.T) {
	env := newTestEnv(t, Options{})
	tok := env.token(t, auth.PermPostDrinks)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/drinks", latteBody(), tok).Code)
	assertEnvelope(t, env.do(t, http.MethodPost, "/drinks", latteBody(), tok), http.StatusNotFound, "resource not found")
}

func TestUpdateTitleConflict(t *testing.T) {
	env := newTestEnv(t, Options{})
	tok := env.token(t, auth.PermPostDrinks, auth.PermPatchDrinks)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/drinks", latteBody(), tok).Code)
	other := map[string]any{"drink": map[string]any{
		"id": 8, "title": "Mocha",
		"recipe": []map[string]any{{"name": "chocolate", "color": "brown", "parts": 1}},
	}}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/drinks", other, tok).Code)

	rr := env.do(t, http.MethodPatch, "/drinks/8", map[string]any{"drink": map[string]any{"title": "Latte"}}, tok)
	assertEnvelope(t, rr, http.StatusConflict, "conflict")
}

func TestUpdateMissingDrink(t *testing.T) {
	env := newTestEnv(t, Options{})
	tok := env.token(t, auth.PermPatchDrinks)
	rr := env.do(t, http.MethodPatch, "/drinks/99", map[string]any{"drink": map[string]any{"title": "Ghost"}}, tok)
	assertEnvelope(t, rr, http.StatusNotFound, "resource not found")
}

func TestNonNumericIDIsNotFound(t *testing.T) {
	env := newTestEnv(t, Options{})
	tok := env.token(t, allPermissions...)
	for _, path := range []string{"/drinks/abc", "/drinks/0", "/drinks/-3"} {
		assertEnvelope(t, env.do(t, http.MethodDelete, path, nil, tok), http.StatusNotFound, "resource not found")
	}
}

func TestAuthenticationFailures(t *testing.T) {
	env := newTestEnv(t, Options{})
	expired := env.issuer.Claims(auth.PermPostDrinks)
	expired["exp"] = int64(1)

	cases := map[string]string{
		"missing":      "",
		"no scheme":    env.issuer.Token(t, auth.PermPostDrinks),
		"basic":        "Basic dXNlcjpwYXNz",
		"extra parts":  env.token(t, auth.PermPostDrinks) + " extra",
		"garbage":      "Bearer not.a.jwt",
		"expired":      "Bearer " + env.issuer.Sign(t, expired),
		"unknown kid":  "Bearer " + jwks.SignWith(t, mustKey(t), "rogue", env.issuer.Claims(auth.PermPostDrinks)),
		"wrong issuer": "Bearer " + env.issuer.Sign(t, withClaim(env.issuer.Claims(auth.PermPostDrinks), "iss", "https://evil/")),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			assertEnvelope(t, env.do(t, http.MethodPost, "/drinks", latteBody(), header), http.StatusUnauthorized, "unauthorized")
		})
	}
	assertEnvelope(t, env.do(t, http.MethodGet, "/drinks", nil, ""), http.StatusNotFound, "resource not found")
}

func TestPermissionDeniedLeavesStoreUntouched(t *testing.T) {
	env := newTestEnv(t, Options{})
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/drinks", latteBody(), env.token(t, auth.PermPostDrinks)).Code)

	tok := env.token(t, auth.PermGetDrinksDetail)
	assertEnvelope(t, env.do(t, http.MethodDelete, "/drinks/7", nil, tok), http.StatusForbidden, "forbidden")
	assertEnvelope(t, env.do(t, http.MethodPatch, "/drinks/7", map[string]any{"drink": map[string]any{"title": "X"}}, tok), http.StatusForbidden, "forbidden")

	list, err := env.repo.ListDrinks(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Latte", list[0].Title)

	assertEnvelope(t, env.do(t, http.MethodGet, "/drinks-detail", nil, env.token(t)), http.StatusForbidden, "forbidden")
}

func TestBodyValidation(t *testing.T) {
	env := newTestEnv(t, Options{})
	tok := env.token(t, auth.PermPostDrinks)

	cases := map[string]any{
		"not json":      "{",
		"no drink":      map[string]any{"title": "Latte"},
		"empty title":   map[string]any{"drink": map[string]any{"title": " ", "recipe": []map[string]any{{"name": "milk", "parts": 1}}}},
		"long title":    map[string]any{"drink": map[string]any{"title": strings.Repeat("a", 81), "recipe": []map[string]any{{"name": "milk", "parts": 1}}}},
		"no recipe":     map[string]any{"drink": map[string]any{"title": "Latte"}},
		"zero parts":    map[string]any{"drink": map[string]any{"title": "Latte", "recipe": []map[string]any{{"name": "milk", "parts": 0}}}},
		"recipe string": map[string]any{"drink": map[string]any{"title": "Latte", "recipe": "milk"}},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			assertEnvelope(t, env.do(t, http.MethodPost, "/drinks", body, tok), http.StatusUnprocessableEntity, "unprocessable")
		})
	}
}

func TestBodyTooLarge(t *testing.T) {
	env := newTestEnv(t, Options{MaxRequestBytes: 64})
	body := map[string]any{"drink": map[string]any{"title": strings.Repeat("x", 200)}}
	assertEnvelope(t, env.do(t, http.MethodPost, "/drinks", body, env.token(t, auth.PermPostDrinks)),
		http.StatusRequestEntityTooLarge, "payload too large")
}

func TestUnknownRouteAndMethod(t *testing.T) {
	env := newTestEnv(t, Options{})
	assertEnvelope(t, env.do(t, http.MethodGet, "/coffee", nil, ""), http.StatusNotFound, "resource not found")
	assertEnvelope(t, env.do(t, http.MethodPut, "/drinks", nil, ""), http.StatusMethodNotAllowed, "method not allowed")
}

func TestKeySetOutageIsServiceUnavailable(t *testing.T) {
	h := NewRouter(service.NewServices(nil), stubVerifier{err: auth.ErrKeySetUnavailable}, discardLogger(), Options{})
	req := httptest.NewRequest(http.MethodGet, "/drinks-detail", nil)
	req.Header.Set("Authorization", "Bearer x.y.z")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assertEnvelope(t, rr, http.StatusServiceUnavailable, "service unavailable")
}

func TestHealthAndOpenAPI(t *testing.T) {
	env := newTestEnv(t, Options{})
	rr := env.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode(t, rr)["status"])

	rr = env.do(t, http.MethodGet, "/openapi.yaml", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "/drinks-detail:")
}

func TestRequestIDAndCORS(t *testing.T) {
	env := newTestEnv(t, Options{CORSOrigins: []string{"http://localhost:8100"}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(logging.RequestIDHeader, "abc-123")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", rr.Header().Get(logging.RequestIDHeader))

	rr = env.do(t, http.MethodGet, "/health", nil, "")
	assert.NotEmpty(t, rr.Header().Get(logging.RequestIDHeader))

	req = httptest.NewRequest(http.MethodOptions, "/drinks", nil)
	req.Header.Set("Origin", "http://localhost:8100")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	assert.Equal(t, "http://localhost:8100", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

type stubVerifier struct {
	ac  auth.AuthContext
	err error
}

func (s stubVerifier) Verify(context.Context, string) (auth.AuthContext, error) {
	return s.ac, s.err
}

func mustKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func withClaim(c jwt.MapClaims, name string, value any) jwt.MapClaims {
	c[name] = value
	return c
}
