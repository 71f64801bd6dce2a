package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/faucetdb/keygate/internal/config"
	"github.com/faucetdb/keygate/internal/model"
	"github.com/faucetdb/keygate/internal/service"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

const testMasterKey = "test-master-key-for-integration-tests"

// testEnv holds all the shared state for integration tests.
type testEnv struct {
	server *Server
	store  *config.Store
	keys   *service.KeyService
}

// newTestEnv creates a fresh test environment with an in-memory store, a
// master key, and a fully wired Server.
func newTestEnv(t *testing.T, opts ...func(*Config)) *testEnv {
	t.Helper()

	store, err := config.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	keys := service.NewKeyService(store, testMasterKey)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	srv := New(cfg, store, keys, logger)

	return &testEnv{server: srv, store: store, keys: keys}
}

// do executes an HTTP request against the test server and returns the recorder.
// headers is an optional map of header key-value pairs.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

// doMaster executes an HTTP request authenticated with the master key.
func (e *testEnv) doMaster(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, body, map[string]string{
		"Authorization": "Bearer " + testMasterKey,
	})
}

// doAPIKey executes an HTTP request authenticated with an API key.
func (e *testEnv) doAPIKey(t *testing.T, method, path string, body io.Reader, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, body, map[string]string{
		"X-API-Key": apiKey,
	})
}

func jsonBody(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("jsonBody: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func assertContentType(t *testing.T, rr *httptest.ResponseRecorder, want string) {
	t.Helper()
	got := rr.Header().Get("Content-Type")
	if got != want {
		t.Errorf("Content-Type = %q, want %q", got, want)
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

// createKey creates a key through the API with the master key.
func (e *testEnv) createKey(t *testing.T, actions []string, indexes []string) model.Key {
	t.Helper()
	rr := e.doMaster(t, "POST", "/keys", jsonBody(t, map[string]interface{}{
		"actions":   actions,
		"indexes":   indexes,
		"expiresAt": nil,
	}))
	assertStatus(t, rr, http.StatusCreated)
	var key model.Key
	decodeJSON(t, rr, &key)
	return key
}

// ---------------------------------------------------------------------------
// Health check tests
// ---------------------------------------------------------------------------

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/healthz", nil, nil)
	assertStatus(t, rr, http.StatusOK)
	assertContentType(t, rr, "application/json")

	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want %q", resp["status"], "ok")
	}
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/readyz", nil, nil)
	assertStatus(t, rr, http.StatusOK)
	assertContentType(t, rr, "application/json")

	var resp map[string]interface{}
	decodeJSON(t, rr, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want %q", resp["status"], "ok")
	}
	checks, ok := resp["checks"].(map[string]interface{})
	if !ok {
		t.Fatal("expected checks to be a map")
	}
	if checks["store"] != "ok" {
		t.Errorf("store check = %v", checks["store"])
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestReadyz_StoreDown(t *testing.T) {
	env := newTestEnv(t)
	srv := New(DefaultConfig(), failingPinger{}, env.keys, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest("GET", "/readyz", nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	assertStatus(t, rr, http.StatusServiceUnavailable)
	var resp map[string]interface{}
	decodeJSON(t, rr, &resp)
	if resp["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", resp["status"])
	}
}

// ---------------------------------------------------------------------------
// Authentication tests
// ---------------------------------------------------------------------------

func TestKeysEndpoints_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)

	endpoints := []struct {
		method string
		path   string
	}{
		{"GET", "/keys"},
		{"POST", "/keys"},
		{"GET", "/keys/abc"},
		{"PATCH", "/keys/abc"},
		{"DELETE", "/keys/abc"},
	}
	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			rr := env.do(t, ep.method, ep.path, nil, nil)
			assertStatus(t, rr, http.StatusUnauthorized)
		})
	}
}

func TestKeysEndpoints_InvalidKey(t *testing.T) {
	env := newTestEnv(t)
	rr := env.doAPIKey(t, "GET", "/keys", nil, strings.Repeat("x", 64))
	assertStatus(t, rr, http.StatusUnauthorized)

	var resp model.ErrorResponse
	decodeJSON(t, rr, &resp)
	if resp.Error.Type != "invalid_api_key" {
		t.Errorf("type = %q, want invalid_api_key", resp.Error.Type)
	}
}

func TestKeysEndpoints_ScopedKey(t *testing.T) {
	env := newTestEnv(t)
	reader := env.createKey(t, []string{"keys.get"}, []string{"*"})

	// keys.get allows reads
	rr := env.doAPIKey(t, "GET", "/keys", nil, reader.ID)
	assertStatus(t, rr, http.StatusOK)
	rr = env.doAPIKey(t, "GET", "/keys/"+reader.ID, nil, reader.ID)
	assertStatus(t, rr, http.StatusOK)

	// but not writes
	rr = env.doAPIKey(t, "POST", "/keys", jsonBody(t, map[string]interface{}{
		"actions": []string{"*"}, "indexes": []string{"*"}, "expiresAt": nil,
	}), reader.ID)
	assertStatus(t, rr, http.StatusForbidden)

	rr = env.doAPIKey(t, "DELETE", "/keys/"+reader.ID, nil, reader.ID)
	assertStatus(t, rr, http.StatusForbidden)
}

func TestKeysEndpoints_WildcardKey(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createKey(t, []string{"*"}, []string{"*"})

	rr := env.do(t, "POST", "/keys", jsonBody(t, map[string]interface{}{
		"actions": []string{"search"}, "indexes": []string{"movies"}, "expiresAt": nil,
	}), map[string]string{"Authorization": "Bearer " + admin.ID})
	assertStatus(t, rr, http.StatusCreated)
}

func TestKeysEndpoints_ExpiredKey(t *testing.T) {
	env := newTestEnv(t)

	// Insert directly so the expiry can be in the past.
	past := time.Now().UTC().Add(-time.Minute)
	key := &model.Key{
		ID:        strings.Repeat("a", 64),
		Actions:   []model.Action{model.ActionAll},
		Indexes:   []string{"*"},
		ExpiresAt: &past,
		CreatedAt: past.Add(-time.Hour),
		UpdatedAt: past.Add(-time.Hour),
	}
	if err := env.store.CreateKey(context.Background(), key); err != nil {
		t.Fatalf("CreateKey: %v", err)
	}

	rr := env.doAPIKey(t, "GET", "/keys", nil, key.ID)
	assertStatus(t, rr, http.StatusUnauthorized)
}

func TestKeysEndpoints_NoMasterKey(t *testing.T) {
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	srv := New(DefaultConfig(), store, service.NewKeyService(store, ""), slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest("GET", "/keys", nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	assertStatus(t, rr, http.StatusOK)
}

// ---------------------------------------------------------------------------
// Full workflow: create -> list -> update -> use -> delete
// ---------------------------------------------------------------------------

func TestFullWorkflow(t *testing.T) {
	env := newTestEnv(t)

	// Create
	rr := env.doMaster(t, "POST", "/keys", jsonBody(t, map[string]interface{}{
		"description": "ci deploy key",
		"actions":     []string{"keys.get", "documents.add"},
		"indexes":     []string{"products"},
		"expiresAt":   "2099-12-31 23:59:59",
	}))
	assertStatus(t, rr, http.StatusCreated)
	var created model.Key
	decodeJSON(t, rr, &created)
	if created.ExpiresAt == nil || created.ExpiresAt.Format(time.RFC3339) != "2099-12-31T23:59:59Z" {
		t.Errorf("expiresAt = %v", created.ExpiresAt)
	}

	// List
	rr = env.doMaster(t, "GET", "/keys", nil)
	assertStatus(t, rr, http.StatusOK)
	var list model.KeyListResponse
	decodeJSON(t, rr, &list)
	if list.Meta.Total != 1 || len(list.Resource) != 1 || list.Resource[0].ID != created.ID {
		t.Errorf("list = %+v", list)
	}

	// Update: clear expiry
	rr = env.doMaster(t, "PATCH", "/keys/"+created.ID, strings.NewReader(`{"expiresAt":null}`))
	assertStatus(t, rr, http.StatusOK)
	var updated model.Key
	decodeJSON(t, rr, &updated)
	if updated.ExpiresAt != nil {
		t.Errorf("expiresAt = %v, want nil", updated.ExpiresAt)
	}
	if updated.Description == nil || *updated.Description != "ci deploy key" {
		t.Errorf("description changed: %v", updated.Description)
	}

	// Use the key itself
	rr = env.doAPIKey(t, "GET", "/keys/"+created.ID, nil, created.ID)
	assertStatus(t, rr, http.StatusOK)

	// Delete
	rr = env.doMaster(t, "DELETE", "/keys/"+created.ID, nil)
	assertStatus(t, rr, http.StatusNoContent)

	// Deleted key no longer authenticates
	rr = env.doAPIKey(t, "GET", "/keys", nil, created.ID)
	assertStatus(t, rr, http.StatusUnauthorized)
}

// ---------------------------------------------------------------------------
// Error format and routing
// ---------------------------------------------------------------------------

func TestErrorResponseFormat(t *testing.T) {
	env := newTestEnv(t)

	rr := env.doMaster(t, "POST", "/keys", jsonBody(t, map[string]interface{}{
		"actions": []string{"search"}, "indexes": []string{"*"},
	}))
	assertStatus(t, rr, http.StatusBadRequest)
	assertContentType(t, rr, "application/json")

	var resp model.ErrorResponse
	decodeJSON(t, rr, &resp)
	if resp.Error.Code != http.StatusBadRequest {
		t.Errorf("error.code = %d", resp.Error.Code)
	}
	if resp.Error.Type != "missing_parameter" {
		t.Errorf("error.type = %q", resp.Error.Type)
	}
	if resp.Error.Message != "`expiresAt` field is mandatory." {
		t.Errorf("error.message = %q", resp.Error.Message)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	rr := env.doMaster(t, "PUT", "/keys", nil)
	assertStatus(t, rr, http.StatusMethodNotAllowed)
}

func TestNotFoundRoute(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "GET", "/nowhere", nil, nil)
	assertStatus(t, rr, http.StatusNotFound)
	assertContentType(t, rr, "application/json")
}

func TestOpenAPISpec(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.APIKeyHeader = "X-Keygate-Key" })

	rr := env.do(t, "GET", "/openapi.json", nil, nil)
	assertStatus(t, rr, http.StatusOK)

	var doc map[string]interface{}
	decodeJSON(t, rr, &doc)
	paths, _ := doc["paths"].(map[string]interface{})
	if paths["/keys"] == nil || paths["/keys/{keyId}"] == nil {
		t.Errorf("paths = %v", paths)
	}
	if !strings.Contains(rr.Body.String(), "X-Keygate-Key") {
		t.Error("spec should advertise the configured key header")
	}
}

func TestCORSHeaders(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "OPTIONS", "/keys", nil, map[string]string{
		"Origin":                         "http://localhost:3000",
		"Access-Control-Request-Method":  "GET",
		"Access-Control-Request-Headers": "Authorization,Content-Type,X-API-Key",
	})

	if rr.Code < 200 || rr.Code >= 300 {
		t.Errorf("CORS preflight status = %d, want 2xx", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected Access-Control-Allow-Origin header")
	}
}

func TestRequestBodyTooLarge(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.MaxBodySize = 64 })

	big := `{"description":"` + strings.Repeat("x", 256) + `","actions":["*"],"indexes":["*"],"expiresAt":null}`
	rr := env.doMaster(t, "POST", "/keys", strings.NewReader(big))
	assertStatus(t, rr, http.StatusBadRequest)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Host = "127.0.0.1"
		c.Port = 0
		c.ShutdownTimeout = time.Second
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.server.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancel")
	}
}

func TestRun_ListenError(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Host = "127.0.0.1"
		c.Port = -1
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := env.server.Run(ctx); err == nil {
		t.Fatal("expected a listen error for an invalid port")
	}
}
