package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inference "github.com/bryanwahyu/tomvto/internal/domain/inference"
	predictions "github.com/bryanwahyu/tomvto/internal/domain/predictions"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(GetClientFromContext(r.Context())))
})

func TestRateLimiter(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return now }
	rl.lastPrune = now

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"), "burst exhausted")
	assert.True(t, rl.Allow("b"), "buckets are per key")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"), "one token refilled")

	now = now.Add(idleTTL + pruneInterval)
	rl.Allow("c")
	rl.mu.Lock()
	assert.NotContains(t, rl.visitors, "a")
	assert.NotContains(t, rl.visitors, "b")
	assert.Contains(t, rl.visitors, "c")
	rl.mu.Unlock()
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Parallel()

	h := RateLimitMiddleware(NewRateLimiter(0.001, 1))(okHandler)

	do := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.0.0.7:51234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do("/api/statistics").Code)
	rec := do("/api/statistics")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limited")

	assert.Equal(t, http.StatusOK, do("/health").Code, "ops paths are never limited")
}

func TestAPIKeyAuth(t *testing.T) {
	t.Parallel()

	h := APIKeyAuth(map[string]string{"dashboard": "s3cret"})(okHandler)

	tests := []struct {
		name       string
		path       string
		method     string
		header     string
		value      string
		wantStatus int
		wantClient string
	}{
		{"x-api-key", "/api/predictions", http.MethodGet, "X-API-Key", "s3cret", http.StatusOK, "dashboard"},
		{"bearer", "/api/predictions", http.MethodGet, "Authorization", "Bearer s3cret", http.StatusOK, "dashboard"},
		{"raw authorization", "/api/predictions", http.MethodGet, "Authorization", "s3cret", http.StatusOK, "dashboard"},
		{"wrong key", "/api/predictions", http.MethodGet, "X-API-Key", "nope", http.StatusUnauthorized, ""},
		{"missing key", "/api/predictions", http.MethodGet, "", "", http.StatusUnauthorized, ""},
		{"health is open", "/health", http.MethodGet, "", "", http.StatusOK, ""},
		{"preflight is open", "/api/predictions", http.MethodOptions, "", "", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantClient, rec.Body.String())
			}
		})
	}

	t.Run("disabled without keys", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		APIKeyAuth(nil)(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/predictions", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestValidators(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateRecordID("3f0c2a8e-1b7d-4c3e-9a55-0e6b2f1d4c77"))
	assert.NoError(t, ValidateRecordID("1718000000000"))
	assert.Error(t, ValidateRecordID(""))
	assert.Error(t, ValidateRecordID("../etc/passwd"))
	assert.Error(t, ValidateRecordID(string(make([]byte, 65))))

	assert.NoError(t, ValidateImageDataURI("data:image/jpeg;base64,/9j/4AAQ"))
	assert.NoError(t, ValidateImageDataURI("data:image/svg+xml;base64,PHN2Zz4="))
	assert.EqualError(t, ValidateImageDataURI(""), "no image provided")
	assert.Error(t, ValidateImageDataURI("https://example.com/seed.png"))

	assert.Equal(t, "abc", SanitizeString(" a\x00b\x07c "))

	assert.Equal(t, 10, ValidateLimit(0, 10))
	assert.Equal(t, 10, ValidateLimit(50, 10))
	assert.Equal(t, 3, ValidateLimit(3, 10))
}

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	ok := CheckerFunc(func(context.Context) error { return nil })
	down := CheckerFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name       string
		checkers   map[string]HealthChecker
		wantStatus string
		wantCode   int
	}{
		{"all healthy", map[string]HealthChecker{"storage": ok, "ml_service": ok}, "healthy", http.StatusOK},
		{"optional down", map[string]HealthChecker{"storage": ok, "ml_service": down}, "degraded", http.StatusOK},
		{"required down", map[string]HealthChecker{"storage": down, "ml_service": down}, "unhealthy", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			HealthHandler(tt.checkers, "ml_service")(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.wantCode, rec.Code)

			var body HealthStatus
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.Len(t, body.Checks, len(tt.checkers))
		})
	}
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/predictions/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/predictions/abc", nil))
	assert.InDelta(t, 1, testutil.ToFloat64(m.requestsTotal.WithLabelValues(http.MethodGet, "/api/predictions/{id}", "404")), 0)

	m.ObserveStore("append", nil, time.Millisecond)
	m.ObserveStore("delete", predictions.ErrNotFound, time.Millisecond)
	m.ObserveStore("append", predictions.ErrStorageUnavailable, time.Millisecond)
	assert.InDelta(t, 1, testutil.ToFloat64(m.storeOpsTotal.WithLabelValues("append", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.storeOpsTotal.WithLabelValues("delete", "not_found")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.storeOpsTotal.WithLabelValues("append", "storage_unavailable")), 0)

	m.ObserveCall("detect_multi", inference.ErrServiceUnavailable, time.Second)
	m.ObserveCall("detect_multi", &inference.ServiceError{Status: 500}, time.Second)
	m.ObserveFallback("predict_single")
	assert.InDelta(t, 1, testutil.ToFloat64(m.mlCallsTotal.WithLabelValues("detect_multi", "unavailable")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.mlCallsTotal.WithLabelValues("detect_multi", "service_error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.mlFallbacks.WithLabelValues("predict_single")), 0)
}
