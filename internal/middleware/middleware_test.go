package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/worldtattoorating/backend/internal/telemetry/metrics"

	"github.com/go-redis/redis_rate/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorsMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/messages", nil)
	req.Header.Set("Origin", "https://somewhere.example.com")
	rr := httptest.NewRecorder()
	Cors()(handler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), "X-WTR-TOKEN")
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}

func TestNoCacheMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/messages", nil)
	rr := httptest.NewRecorder()
	NoCache()(handler).ServeHTTP(rr, req)

	assert.Equal(t, "no-store, no-cache, must-revalidate, private", rr.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", rr.Header().Get("Pragma"))
	assert.Equal(t, "-1", rr.Header().Get("Expires"))
}

func TestPanicRecovery(t *testing.T) {
	metricsManager, registry := metrics.NewTestManagerAndRegistry()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest("GET", "/api/messages", nil)
	rr := httptest.NewRecorder()
	require.NotPanics(t, func() {
		PanicRecovery(metricsManager)(handler).ServeHTTP(rr, req)
	})

	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "backend_test_server_handle_request_panic" {
			found = true
			require.Len(t, mf.GetMetric(), 1)
			assert.Equal(t, float64(1), mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found, "panic counter not gathered")
}

func TestRequestMetrics(t *testing.T) {
	metricsManager := metrics.NewTestManager()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest("GET", "/api/messages", nil)
	rr := httptest.NewRecorder()
	RequestMetrics(metricsManager)(handler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusTeapot, rr.Code)
}

type testRateLimiter struct {
	allowed int
}

func (rl *testRateLimiter) Allow(_ context.Context, _ string, _ redis_rate.Limit) (*redis_rate.Result, error) {
	return &redis_rate.Result{Allowed: rl.allowed}, nil
}

func TestRateLimit(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/a/login", nil)
	rr := httptest.NewRecorder()
	RateLimit(&testRateLimiter{allowed: 1}, "login", 10, metrics.NewTestManager())(handler).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	RateLimit(&testRateLimiter{allowed: 0}, "login", 10, metrics.NewTestManager())(handler).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooEarly, rr.Code)
}

func TestDrainAndCloseRequest(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/api/messages", nil)
	rr := httptest.NewRecorder()
	DrainAndCloseRequest()(handler).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}
