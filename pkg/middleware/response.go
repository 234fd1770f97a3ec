package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// errorBody mirrors the API envelope so clients see one error shape
type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

func reject(w http.ResponseWriter, status int, retryAfter int, code, message string) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Success: false, Error: message, Code: code})
}
