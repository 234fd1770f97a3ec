package api

import (
	"net/http"

	apperrors "github.com/vaidashi/freight-exchange/pkg/errors"
)

// getRateLimitsHandler returns the current rate limit settings and metrics
func (s *Server) getRateLimitsHandler(w http.ResponseWriter, r *http.Request) {
	s.respondOK(w, map[string]interface{}{
		"global_metrics":  s.rateLimiter.GetMetrics(),
		"endpoint_limits": s.endpointRateLimiter.GetAllLimits(),
	})
}

// setEndpointRateLimitHandler sets the bucket for one "METHOD:/route/template"
func (s *Server) setEndpointRateLimitHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint   string  `json:"endpoint"`
		MaxTokens  float64 `json:"max_tokens"`
		RefillRate float64 `json:"refill_rate"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondWithError(w, r, err)
		return
	}

	fields := map[string]string{}
	if req.Endpoint == "" {
		fields["endpoint"] = "is required"
	}
	if req.MaxTokens <= 0 {
		fields["max_tokens"] = "must be greater than zero"
	}
	if req.RefillRate <= 0 {
		fields["refill_rate"] = "must be greater than zero"
	}
	if len(fields) > 0 {
		s.respondWithError(w, r, apperrors.NewValidationError("validation failed", fields).WithCode("VALIDATION_FAILED"))
		return
	}

	s.endpointRateLimiter.SetLimit(req.Endpoint, req.MaxTokens, req.RefillRate)
	s.logger.Info("Endpoint rate limit updated",
		"endpoint", req.Endpoint,
		"maxTokens", req.MaxTokens,
		"refillRate", req.RefillRate)

	s.respondOK(w, map[string]interface{}{
		"message":     "Rate limit updated successfully",
		"endpoint":    req.Endpoint,
		"max_tokens":  req.MaxTokens,
		"refill_rate": req.RefillRate,
	})
}
