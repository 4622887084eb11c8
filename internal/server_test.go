package internal

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/worldtattoorating/backend/internal/auth"
	"github.com/worldtattoorating/backend/internal/config"
	"github.com/worldtattoorating/backend/internal/contact"
	"github.com/worldtattoorating/backend/internal/registration"
	"github.com/worldtattoorating/backend/internal/session_guard"
	"github.com/worldtattoorating/backend/internal/telemetry/metrics"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// INFO: https://github.com/go-redis/redis/issues/1029
		goleak.IgnoreTopFunction(
			"github.com/go-redis/redis/v8/internal/pool.(*ConnPool).reaper",
		),
	)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	dataDir := t.TempDir()
	cfg := &config.Config{
		Environment:                 "development",
		MessagesFilePath:            filepath.Join(dataDir, "messages.json"),
		RegistrantsFilePath:         filepath.Join(dataDir, "registrants.json"),
		LoginRateLimitAllowedPerMin: 15,
		AdminPathPrefix:             "/admin",
	}

	contactStore, err := contact.NewFileStore(cfg.MessagesFilePath, true)
	require.NoError(t, err)
	registrationStore, err := registration.NewFileStore(cfg.RegistrantsFilePath, true)
	require.NoError(t, err)

	db, _ := redismock.NewClientMock()
	t.Cleanup(func() { _ = db.Close() })

	metricsManager := metrics.NewTestManager()
	guard := session_guard.NewGuard(session_guard.Config{}, nil, metricsManager)
	t.Cleanup(guard.Shutdown)

	return &Server{
		versionInfo:       "test-version",
		config:            cfg,
		contactStore:      contactStore,
		registrationStore: registrationStore,
		redisClient:       db,
		authService:       auth.NewAuthService(&auth.Admin{Username: "admin"}, auth.DefaultTTL, db),
		loginChecker:      auth.NewLoginChecker(auth.DefaultTTL, db),
		guard:             guard,
		metricsManager:    metricsManager,
	}
}

func TestServer_Router_Root(t *testing.T) {
	server := newTestServer(t)
	router := server.routerSetup()

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "I'm OK, thanks ;)", rr.Body.String())

	// headers from the middleware chain
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "no-store, no-cache, must-revalidate, private", rr.Header().Get("Cache-Control"))
}

func TestServer_Router_UnknownPath(t *testing.T) {
	server := newTestServer(t)
	router := server.routerSetup()

	req := httptest.NewRequest("GET", "/no/such/route", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"error":"Ruta no encontrada"}`, rr.Body.String())
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_Router_PublicContactForm(t *testing.T) {
	server := newTestServer(t)
	router := server.routerSetup()

	reqBody := `{"nombre":"A","email":"a@b.com","mensaje":"hola"}`
	req := httptest.NewRequest("POST", "/api/messages", bytes.NewBufferString(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	// goes through the whole middleware chain without a token
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestServer_Router_AdminRoutesGated(t *testing.T) {
	server := newTestServer(t)
	router := server.routerSetup()

	gatedRequests := []struct {
		method string
		path   string
	}{
		{"GET", "/api/messages"},
		{"PATCH", "/api/messages/123"},
		{"DELETE", "/api/messages/123"},
		{"GET", "/api/registrations/tatuadores"},
		{"POST", "/api/registrations/tatuadores/123/accept"},
		{"GET", "/api/stats"},
	}

	for _, gated := range gatedRequests {
		req := httptest.NewRequest(gated.method, gated.path, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "%s %s", gated.method, gated.path)
	}
}

func TestServer_Router_SessionStatusPublic(t *testing.T) {
	server := newTestServer(t)
	router := server.routerSetup()

	req := httptest.NewRequest("GET", "/a/session/status", nil)
	req.Header.Set("X-WTR-TOKEN", "whatever")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), string(session_guard.StateLoggedOut))
}
