package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/vaidashi/freight-exchange/pkg/circuitbreaker"
	"github.com/vaidashi/freight-exchange/pkg/logger"
)

// GracefulDegradation sheds non-essential traffic while the API keeps failing
type GracefulDegradation struct {
	breaker         *circuitbreaker.CircuitBreaker
	logger          logger.Logger
	essentialPrefix []string
}

// NewGracefulDegradation opens after 10 server errors and probes again after 30s.
// Requests under essentialPrefixes are never shed.
func NewGracefulDegradation(logger logger.Logger, essentialPrefixes ...string) *GracefulDegradation {
	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.CircuitBreakerConfig{
		FailureThreshold: 10,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 5,
	})

	return &GracefulDegradation{
		breaker:         breaker,
		logger:          logger,
		essentialPrefix: essentialPrefixes,
	}
}

// Middleware returns the http middleware
func (gd *GracefulDegradation) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gd.isEssential(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if !gd.breaker.Allow() {
			gd.logger.Warn("Circuit is open, request rejected",
				"path", r.URL.Path,
				"method", r.Method,
				"state", gd.breaker.GetState())
			reject(w, http.StatusServiceUnavailable, 30, "DEGRADED", "Service is temporarily unavailable. Please try again later.")
			return
		}

		sw := NewStatusWriter(w)
		next.ServeHTTP(sw, r)

		switch code := sw.Status(); {
		case code >= 500:
			gd.breaker.Failure()
		case code < 400:
			gd.breaker.Success()
		}
	})
}

func (gd *GracefulDegradation) isEssential(path string) bool {
	for _, prefix := range gd.essentialPrefix {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// StatusWriter records the status code written by a handler
type StatusWriter struct {
	http.ResponseWriter
	status int
}

// NewStatusWriter wraps w, defaulting to 200
func NewStatusWriter(w http.ResponseWriter) *StatusWriter {
	return &StatusWriter{ResponseWriter: w, status: http.StatusOK}
}

// WriteHeader captures the status code and passes it to the wrapped ResponseWriter
func (sw *StatusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// Status returns the recorded status
func (sw *StatusWriter) Status() int {
	return sw.status
}

// GetMetrics returns metrics about the circuit breaker
func (gd *GracefulDegradation) GetMetrics() map[string]interface{} {
	return gd.breaker.GetMetrics()
}

// Reset closes the circuit breaker
func (gd *GracefulDegradation) Reset() {
	gd.breaker.Reset()
}
