package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/freight-exchange/pkg/logger"
)

func okHandler(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

func TestEndpointLimiterKeysByRouteTemplate(t *testing.T) {
	limiter := NewEndpointRateLimiterMiddleware(100, 100, logger.NewNop())
	limiter.SetLimit("POST:/offers/{id}/comments", 1, 0.001)

	r := mux.NewRouter()
	r.Use(limiter.Middleware)
	r.HandleFunc("/offers/{id}/comments", okHandler).Methods(http.MethodPost)

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/offers/off-1/comments", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/offers/off-2/comments", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "5", second.Header().Get("Retry-After"))
	assert.Contains(t, second.Body.String(), `"code":"RATE_LIMITED"`)

	limits := limiter.GetAllLimits()
	require.Contains(t, limits, "POST:/offers/{id}/comments")
	assert.Equal(t, 1.0, limits["POST:/offers/{id}/comments"]["max_tokens"])
}

func TestRateLimiterPerIP(t *testing.T) {
	m := NewRateLimiterMiddleware(&RateLimiterConfig{
		GlobalMaxTokens: 100, GlobalMaxRate: 100, GlobalMinRate: 10, GlobalThreshold: 0.8,
		IPMaxTokens: 1, IPRefillRate: 0.001,
		TrustForwardedFor: true,
	}, logger.NewNop())
	defer m.Stop()

	h := m.Middleware(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/offers", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	other := httptest.NewRequest(http.MethodGet, "/api/v1/offers", nil)
	other.RemoteAddr = "198.51.100.2:5555"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGracefulDegradationShedsAfterFailures(t *testing.T) {
	gd := NewGracefulDegradation(logger.NewNop(), "/api/v1/health")
	failing := gd.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	for i := 0; i < 10; i++ {
		failing.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/offers", nil))
	}

	rec := httptest.NewRecorder()
	failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/offers", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	health := httptest.NewRecorder()
	gd.Middleware(http.HandlerFunc(okHandler)).ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, health.Code)

	gd.Reset()
	assert.Equal(t, "closed", gd.GetMetrics()["state"])
}
