// Package api provides shared HTTP helpers and health endpoints for the
// LawAid API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// DefaultMaxRequestBodySize bounds JSON request bodies (1MB).
const DefaultMaxRequestBodySize = 1 << 20

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// DecodeJSON reads a size-limited JSON body into v. The returned status is
// the one to report on failure.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) (int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, DefaultMaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, fmt.Errorf("request body too large")
		}
		return http.StatusBadRequest, fmt.Errorf("invalid request body")
	}
	return http.StatusOK, nil
}
