package api

import (
	"net/http"

	apperrors "github.com/vaidashi/freight-exchange/pkg/errors"
)

// getCircuitBreakerStatusHandler reports the API breaker and, when export is
// configured, the document renderer breaker
func (s *Server) getCircuitBreakerStatusHandler(w http.ResponseWriter, r *http.Request) {
	breakers := map[string]interface{}{
		"api": s.gracefulDegradation.GetMetrics(),
	}
	if s.deps.Documents != nil {
		breakers["document_renderer"] = s.deps.Documents.Breaker().GetMetrics()
	}

	s.respondOK(w, breakers)
}

// resetCircuitBreakerHandler closes one breaker (?name=api|document_renderer) or all of them
func (s *Server) resetCircuitBreakerHandler(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")

	switch name {
	case "":
		s.gracefulDegradation.Reset()
		if s.deps.Documents != nil {
			s.deps.Documents.Breaker().Reset()
		}
	case "api":
		s.gracefulDegradation.Reset()
	case "document_renderer":
		if s.deps.Documents == nil {
			s.respondWithError(w, r, apperrors.NewNotFoundError("document export is not configured").WithCode("NOT_FOUND"))
			return
		}
		s.deps.Documents.Breaker().Reset()
	default:
		s.respondWithError(w, r, apperrors.NewNotFoundError("unknown circuit breaker").WithCode("NOT_FOUND"))
		return
	}

	s.logger.Info("Circuit breaker reset", "name", name, "admin", sessionFrom(r).UserID)
	s.respondOK(w, map[string]string{
		"message": "Circuit breaker reset successfully",
	})
}

// eventStatsHandler reports what the event consumer has seen
func (s *Server) eventStatsHandler(w http.ResponseWriter, r *http.Request) {
	counts, err := s.deps.Outbox.CountByStatus(r.Context())
	if err != nil {
		s.respondWithError(w, r, apperrors.NewInternalError("outbox store failed").WithCause(err))
		return
	}

	data := map[string]interface{}{
		"consumer_enabled": s.deps.Events != nil,
		"outbox":           counts,
		"sessions":         s.deps.Sessions.GetMetrics(),
	}
	if s.deps.Events != nil {
		data["consumer"] = s.deps.Events.Stats()
	}
	s.respondOK(w, data)
}
