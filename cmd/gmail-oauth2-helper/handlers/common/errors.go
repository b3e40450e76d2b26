// Package common holds the JSON response helpers shared by the HTTP handlers
package common

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Error codes returned in JSON error bodies
const (
	ErrorCodeNotFound            = "not_found"
	ErrorCodeMissingRefreshToken = "missing_refresh_token"
	ErrorCodeUpstream            = "upstream_error"
	ErrorCodeServer              = "server_error"
)

// ErrorResponse is the JSON error body, shaped like an OAuth2 error response
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// SetJSONHeaders sets headers for JSON responses. Token material must never
// be cached.
func SetJSONHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
}

// WriteJSON sends v with the given status
func WriteJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		WriteJSONError(w, err)
		return
	}
	SetJSONHeaders(w)
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}

// WriteError sends a standardized error response
func WriteError(w http.ResponseWriter, status int, code string, description string) {
	WriteJSON(w, status, ErrorResponse{
		Error:            code,
		ErrorDescription: strings.TrimSpace(description),
	})
}

// WriteJSONError handles JSON encoding failures with a standardized response
func WriteJSONError(w http.ResponseWriter, err error) {
	SetJSONHeaders(w)
	w.WriteHeader(http.StatusInternalServerError)

	// Written by hand since encoding just failed
	w.Write([]byte(`{"error":"server_error","error_description":"Failed to encode response"}`))
}
