package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/vaidashi/freight-exchange/internal/models"
	apperrors "github.com/vaidashi/freight-exchange/pkg/errors"
	"github.com/vaidashi/freight-exchange/pkg/middleware"
)

type contextKey int

const sessionKey contextKey = iota

// sessionFrom returns the session placed by authed. Handlers behind authed
// can rely on it being non-nil.
func sessionFrom(r *http.Request) *models.Session {
	s, _ := r.Context().Value(sessionKey).(*models.Session)
	return s
}

// authed resolves the bearer token to a session through the session cache
func (s *Server) authed(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.respondWithError(w, r, apperrors.NewUnauthorizedError("missing bearer token").WithCode("UNAUTHORIZED"))
			return
		}

		claims, err := s.deps.Tokens.Verify(token)
		if err != nil {
			s.respondWithError(w, r, apperrors.NewUnauthorizedError("invalid or expired token").WithCode("INVALID_TOKEN").WithCause(err))
			return
		}

		session, err := s.deps.Sessions.Get(r.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				err = apperrors.NewUnauthorizedError("unknown user").WithCode("INVALID_TOKEN")
			}
			s.respondWithError(w, r, err)
			return
		}

		if !session.IsActive {
			s.respondWithError(w, r, apperrors.NewForbiddenError("account is disabled").WithCode("ACCOUNT_DISABLED"))
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, session)))
	})
}

// adminOnly is authed plus the platform admin role
func (s *Server) adminOnly(next http.HandlerFunc) http.Handler {
	return s.authed(func(w http.ResponseWriter, r *http.Request) {
		if !sessionFrom(r).IsAdmin() {
			s.respondWithError(w, r, apperrors.NewForbiddenError("admin access required").WithCode("FORBIDDEN"))
			return
		}
		next(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// loggingMiddleware logs every request with its status and duration
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := middleware.NewStatusWriter(w)

		next.ServeHTTP(sw, r)

		s.logger.Info("Request processed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.Status(),
			"duration", time.Since(start),
			"remoteAddr", r.RemoteAddr,
		)
	})
}

// recoverMiddleware turns a handler panic into a 500 envelope
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("Handler panicked", "panic", rec, "method", r.Method, "path", r.URL.Path)
				s.respondWithError(w, r, apperrors.NewInternalError("handler panicked"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	s.respondWithError(w, r, apperrors.NewNotFoundError("route not found").WithCode("NOT_FOUND"))
}

func (s *Server) methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusMethodNotAllowed, ApiResponse{
		Success: false,
		Error:   "method not allowed",
		Code:    "METHOD_NOT_ALLOWED",
	})
}
