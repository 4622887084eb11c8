package session_guard

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/worldtattoorating/backend/internal/telemetry/metrics"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*Guard, *mux.Router) {
	t.Helper()
	config := testConfig()
	config.IdleTimeout = time.Hour
	guard := NewGuard(config, nil, metrics.NewTestManager())
	t.Cleanup(guard.Shutdown)

	router := mux.NewRouter()
	NewHandler(guard).SetupRoutes(router.PathPrefix("/a").Subrouter())
	return guard, router
}

func sendSignal(t *testing.T, router *mux.Router, token, signal, path string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(signalRequest{Signal: signal, Path: path})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/a/session/signal", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-WTR-TOKEN", token)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandler_Signal(t *testing.T) {
	guard, router := newTestHandler(t)
	guard.Start("token1")

	rr := sendSignal(t, router, "token1", SignalActivity, "")
	require.Equal(t, http.StatusOK, rr.Code)

	var status Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, StateLoggedIn, status.State)
	assert.Empty(t, status.Reason)

	rr = sendSignal(t, router, "token1", SignalManual, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, StateLoggedOut, status.State)
	assert.Equal(t, ReasonManual, status.Reason)
	assert.Equal(t, "Sesión cerrada exitosamente", status.Message)
}

func TestHandler_Signal_Errors(t *testing.T) {
	guard, router := newTestHandler(t)
	guard.Start("token1")

	// missing token
	rr := sendSignal(t, router, "", SignalActivity, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// unknown signal
	rr = sendSignal(t, router, "token1", "poke", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// broken body
	req := httptest.NewRequest("POST", "/a/session/signal", bytes.NewBufferString("{nope"))
	req.Header.Set("X-WTR-TOKEN", "token1")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandler_Status(t *testing.T) {
	guard, router := newTestHandler(t)
	guard.Start("token1")

	req := httptest.NewRequest("GET", "/a/session/status", nil)
	req.Header.Set("X-WTR-TOKEN", "token1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var status Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, StateLoggedIn, status.State)
	require.NotNil(t, status.LoginAt)

	// a token the guard never saw reads as logged out
	req = httptest.NewRequest("GET", "/a/session/status", nil)
	req.Header.Set("X-WTR-TOKEN", "stranger")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, StateLoggedOut, status.State)
}
