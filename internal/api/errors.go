package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/marcus/hearth/internal/remote"
)

// Error code constants for structured API error responses. Store failures
// carry the store's own codes (see remote.Code*).
const (
	ErrCodeBadRequest   = remote.CodeBadRequest
	ErrCodeNotFound     = "not_found"
	ErrCodeInternal     = remote.CodeInternal
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeRateLimited  = remote.CodeRateLimited
	ErrCodeUnavailable  = remote.CodeUnavailable
)

// APIError represents a structured error returned by the API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError for JSON serialization.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// writeError writes a JSON error response with the given HTTP status code.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error: APIError{Code: code, Message: message},
	}); err != nil {
		slog.Error("write error response", "err", err)
	}
}

// writeJSON writes a JSON response with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("write json response", "err", err)
	}
}

// storeStatus maps a store error code to its HTTP status.
func storeStatus(code string) int {
	switch code {
	case remote.CodeUniqueViolation, remote.CodeForeignKeyViolation:
		return http.StatusConflict
	case remote.CodeNotNullViolation, remote.CodeCheckViolation, remote.CodeUndefinedColumn, remote.CodeBadRequest:
		return http.StatusBadRequest
	case remote.CodePermissionDenied:
		return http.StatusForbidden
	case remote.CodeUndefinedTable, remote.CodeNoRows:
		return http.StatusNotFound
	case remote.CodeRateLimited:
		return http.StatusTooManyRequests
	case remote.CodeUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeStoreError writes err as the API error body. Errors the store did not
// classify are logged and reported as internal.
func writeStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var se *remote.Error
	if errors.As(err, &se) {
		writeError(w, storeStatus(se.Code), se.Code, se.Message)
		return
	}
	logFor(r.Context()).Error(op, "err", err)
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, op+" failed")
}
