package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	apperrors "github.com/vaidashi/freight-exchange/pkg/errors"
)

// maxBodySize caps JSON request bodies
const maxBodySize = 1 << 20

// ApiResponse is the envelope of every response
type ApiResponse struct {
	Success bool              `json:"success"`
	Data    interface{}       `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// respondWithJSON sends a JSON response
func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

func (s *Server) respondOK(w http.ResponseWriter, data interface{}) {
	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data})
}

func (s *Server) respondCreated(w http.ResponseWriter, data interface{}) {
	s.respondWithJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: data})
}

// respondWithError maps err onto the envelope. Internal errors are reported
// generically; their detail is already in the log.
func (s *Server) respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.StatusCode(err)
	body := ApiResponse{Success: false, Error: err.Error(), Code: errorCode(err)}

	if app, ok := apperrors.AsAppError(err); ok {
		body.Details = app.Fields
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path)
		if status == http.StatusInternalServerError {
			body.Error = "internal server error"
		}
	}

	s.respondWithJSON(w, status, body)
}

func errorCode(err error) string {
	if app, ok := apperrors.AsAppError(err); ok && app.Code != "" {
		return app.Code
	}

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, apperrors.ErrInvalidInput):
		return "VALIDATION_FAILED"
	case errors.Is(err, apperrors.ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, apperrors.ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, apperrors.ErrConflict):
		return "CONFLICT"
	case errors.Is(err, apperrors.ErrServiceUnavailable):
		return "SERVICE_UNAVAILABLE"
	case errors.Is(err, apperrors.ErrTimeout):
		return "TIMEOUT"
	}
	return "INTERNAL"
}

// decodeJSON reads a bounded JSON body into dst
func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()

	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.NewInvalidInputError("request body is required").WithCode("INVALID_JSON")
		}
		return apperrors.NewInvalidInputError("invalid request payload").WithCode("INVALID_JSON").WithCause(err)
	}
	return nil
}

// queryInt parses an optional non-negative integer query parameter
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apperrors.NewValidationError("invalid query parameter", map[string]string{
			key: fmt.Sprintf("must be a non-negative integer, got %q", raw),
		})
	}
	return v, nil
}

// page reads limit and offset
func page(r *http.Request) (limit, offset int, err error) {
	if limit, err = queryInt(r, "limit", 0); err != nil {
		return 0, 0, err
	}
	if limit > 100 {
		limit = 100
	}
	if offset, err = queryInt(r, "offset", 0); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}
