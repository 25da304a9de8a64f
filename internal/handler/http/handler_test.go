package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bilzee/dms-sync/internal/config"
	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/internal/ratelimit"
	"github.com/bilzee/dms-sync/internal/service"
	"github.com/bilzee/dms-sync/internal/store"
	"github.com/bilzee/dms-sync/internal/utils"
	"github.com/bilzee/dms-sync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSignKey = "handler-test-sign-key"
	testIssuer  = "dms-sync-test"
	testUser    = "officer-1"
	testVersion = "1.4.0"
	testHashKey = "handler-test-hash-key"
)

// ─────────────────────────────────────────────
// Fixture
// ─────────────────────────────────────────────

func testConfig() config.StructuredConfig {
	return config.StructuredConfig{
		App: config.App{
			TokenSignKey:  testSignKey,
			TokenIssuer:   testIssuer,
			TokenDuration: time.Hour,
			Version:       testVersion,
		},
		Server: config.Server{
			RequestTimeout: 5 * time.Second,
			MaxBodyBytes:   1 << 20,
		},
		Sync: config.Sync{
			MaxBatchSize:      config.DefaultMaxBatchSize,
			DefaultPullWindow: config.DefaultPullWindow,
			DefaultPullLimit:  config.DefaultPullLimit,
			MaxPullLimit:      config.DefaultMaxPullLimit,
		},
		RateLimit: config.RateLimit{
			Window:     time.Minute,
			PushMax:    config.DefaultPushPerWindow,
			PullMax:    config.DefaultPullPerWindow,
			ResolveMax: config.DefaultResolvePerWindow,
			QueryMax:   config.DefaultQueryPerWindow,
		},
	}
}

// apiFixture is the full router over in-memory storage. testUser is granted
// e-1, e-2 and e-3.
type apiFixture struct {
	storages *store.Storages
	services *service.Services
	handler  *Handler
	router   http.Handler
}

func newAPIFixture(t *testing.T, mutate ...func(*config.StructuredConfig)) *apiFixture {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	storages := store.NewMemoryStorages()
	services, err := service.NewServices(storages, cfg, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, services.AccessService.Grant(context.Background(), testUser, "e-1", "e-2", "e-3"))

	h, err := NewHandler(services, ratelimit.NewInMemory(), cfg, logger.Nop())
	require.NoError(t, err)

	return &apiFixture{
		storages: storages,
		services: services,
		handler:  h,
		router:   h.Init(),
	}
}

func (f *apiFixture) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := f.services.AuthService.CreateToken(context.Background(), userID)
	require.NoError(t, err)
	return token.SignedString
}

// request builds a request authenticated as testUser. body is sent as is
// when it is a string and JSON encoded otherwise.
func (f *apiFixture) request(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+f.token(t, testUser))
	req.Header.Set(utils.ClientIDHeader, "device-"+t.Name())
	return req
}

func (f *apiFixture) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return f.serve(f.request(t, method, path, body))
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func createChange(offlineID, entityUUID, payload string) models.Change {
	return models.Change{
		EntityType:      models.EntityTypeAssessment,
		Action:          models.ActionCreate,
		Payload:         json.RawMessage(payload),
		OfflineClientID: offlineID,
		DeclaredVersion: 1,
		EntityUUID:      entityUUID,
	}
}

func updateChange(offlineID, entityUUID string, declared int64, payload string) models.Change {
	ch := createChange(offlineID, entityUUID, payload)
	ch.Action = models.ActionUpdate
	ch.DeclaredVersion = declared
	return ch
}

// ─────────────────────────────────────────────
// NewHandler
// ─────────────────────────────────────────────

func TestNewHandler_StoresDependencies(t *testing.T) {
	svc := &service.Services{}
	limiter := ratelimit.NewInMemory()

	h, err := NewHandler(svc, limiter, testConfig(), logger.Nop())

	require.NoError(t, err)
	assert.Same(t, svc, h.services)
	assert.Equal(t, limiter, h.limiter)
	assert.NotNil(t, h.codec)
	assert.Empty(t, h.hashKey)
}

func TestNewHandler_KeepsHashKey(t *testing.T) {
	cfg := testConfig()
	cfg.App.HashKey = testHashKey

	h, err := NewHandler(&service.Services{}, ratelimit.NewInMemory(), cfg, logger.Nop())

	require.NoError(t, err)
	assert.Equal(t, testHashKey, h.hashKey)
}

// ─────────────────────────────────────────────
// Init: route registration
// ─────────────────────────────────────────────

func TestInit_RegistersAllRoutes(t *testing.T) {
	f := newAPIFixture(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/sync/push"},
		{http.MethodGet, "/api/sync/pull"},
		{http.MethodPost, "/api/sync/conflicts/resolve"},
		{http.MethodGet, "/api/sync/conflicts"},
		{http.MethodGet, "/api/sync/conflicts/export"},
		{http.MethodGet, "/api/sync/conflicts/summary"},
		{http.MethodGet, "/api/sync/conflicts/some-id"},
		{http.MethodGet, "/api/version"},
	}

	for _, tc := range routes {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			rec := f.serve(req)

			// Unauthenticated requests to protected routes get 401, which
			// still proves the route exists.
			assert.NotEqual(t, http.StatusNotFound, rec.Code)
			assert.NotEqual(t, http.StatusMethodNotAllowed, rec.Code)
		})
	}
}

func TestInit_ProtectedRoutesRequireAuth(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.serve(httptest.NewRequest(http.MethodGet, "/api/sync/pull", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody[models.ErrorResponse](t, rec)
	assert.Equal(t, ErrEmptyAuthorizationHeader.Error(), body.Error)
}

func TestInit_UnknownRouteReturns404(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.serve(httptest.NewRequest(http.MethodGet, "/api/nonexistent", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInit_WrongMethodReturns404(t *testing.T) {
	f := newAPIFixture(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/version"},
		{http.MethodGet, "/api/sync/push"},
		{http.MethodDelete, "/api/sync/conflicts/some-id"},
	} {
		rec := f.serve(f.request(t, tc.method, tc.path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestInit_TraceIDEchoed(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	req.Header.Set(traceIDHeader, "trace-abc")
	rec := f.serve(req)

	assert.Equal(t, "trace-abc", rec.Header().Get(traceIDHeader))
}

// ─────────────────────────────────────────────
// GET /api/version
// ─────────────────────────────────────────────

func TestGetServerVersion_PlainText(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.serve(httptest.NewRequest(http.MethodGet, "/api/version", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testVersion, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

func TestGetServerVersion_Gzipped(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := f.serve(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	assert.Equal(t, testVersion, gunzip(t, rec.Body.Bytes()))
}
