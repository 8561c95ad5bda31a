package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	apperrors "github.com/carbon-tracker/internal/errors"
	"github.com/carbon-tracker/internal/logging"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// MessageResponse is a bare confirmation body
type MessageResponse struct {
	Message string `json:"message"`
}

// Common error codes
const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodePayloadTooLarge   = "PAYLOAD_TOO_LARGE"
)

const genericErrorMessage = "An internal error occurred"

// maxJSONBodyBytes bounds JSON request bodies
const maxJSONBodyBytes = 1 << 20

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string) {
	respondJSON(w, statusCode, ErrorResponse{Message: message, Code: code})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondServiceError maps a service error to a response. Server-side causes
// are logged and never returned to the client.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	catErr := apperrors.Categorize(err)
	if catErr.StatusCode >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithError(err).WithField("category", catErr.Category).Error("Request failed")
		respondError(w, catErr.StatusCode, catErr.Code, genericErrorMessage)
		return
	}
	respondError(w, catErr.StatusCode, catErr.Code, catErr.Message)
}

// parseJSONBody parses JSON request body.
func parseJSONBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// respondBadBody reports an undecodable request body
func respondBadBody(w http.ResponseWriter) {
	respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body")
}

// queryInt parses an optional integer query parameter
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewInvalidParameterError(name, "must be an integer")
	}
	return v, nil
}

// emptyIfNil keeps list responses encoding as [] rather than null
func emptyIfNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
