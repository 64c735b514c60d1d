// ABOUTME: JSON error responses shared by console pages and the view API.
// ABOUTME: Every failure carries a machine-readable code next to the HTTP status.

package errors

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every JSON error.
//
//	{"code":"dispatch_in_flight","message":"...","status":409}
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Details string `json:"details,omitempty"` // e.g. missing argument names or a dispatch id
}

// WriteError writes an error response with the given status and code.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	write(w, ErrorResponse{Code: code, Message: message, Status: status})
}

// WriteErrorWithDetails also sets Details.
func WriteErrorWithDetails(w http.ResponseWriter, status int, code, message, details string) {
	write(w, ErrorResponse{Code: code, Message: message, Status: status, Details: details})
}

func write(w http.ResponseWriter, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	json.NewEncoder(w).Encode(resp)
}

// Error codes
const (
	// Request problems (4xx)
	ErrInvalidRequest   = "invalid_request"
	ErrInvalidBody      = "invalid_request_body"
	ErrMissingField     = "missing_field"
	ErrNotFound         = "not_found"
	ErrForbidden        = "forbidden"
	ErrUnknownResource  = "unknown_resource"
	ErrMissingArgument  = "missing_argument"
	ErrDispatchInFlight = "dispatch_in_flight"

	// Console or upstream failures (5xx)
	ErrInternal           = "internal_error"
	ErrDatabaseError      = "database_error"
	ErrServiceUnavailable = "service_unavailable"
	ErrDispatchFailed     = "dispatch_failed"
)
