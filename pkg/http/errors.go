package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wardenhq/warden/internal/models"
)

// ErrorResponse is the constant-shape JSON body for every error. The shape
// never varies with the failure reason, so responses are not an oracle for
// which check failed.
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable error code
	Message string `json:"message"` // human-readable message
}

// WriteError writes a JSON error response with the given status code.
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: errorCode, Message: message})
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}

// WriteJSON writes a successful JSON response.
func WriteJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteDomainError maps a sentinel error to its HTTP response. Auth-family
// failures collapse to the same generic 401 so the response never reveals
// which layer rejected the request.
func WriteDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrRateLimited):
		WriteTooManyRequests(w, "Too many requests")
	case errors.Is(err, models.ErrLocked),
		errors.Is(err, models.ErrAuthFailed),
		errors.Is(err, models.ErrSessionInvalid),
		errors.Is(err, models.ErrSessionExpired):
		WriteUnauthorized(w, "Authentication failed")
	case errors.Is(err, models.ErrMFAInvalid),
		errors.Is(err, models.ErrMFAExpired):
		WriteUnauthorized(w, "Invalid or expired code")
	case errors.Is(err, models.ErrMFAResendTooSoon):
		WriteTooManyRequests(w, "Code already sent, wait before requesting another")
	case errors.Is(err, models.ErrMFANotConfigured):
		WriteNotFound(w, "Channel not configured")
	case errors.Is(err, models.ErrMFADispatchFailed):
		WriteInternalError(w, "Failed to deliver code")
	case errors.Is(err, models.ErrRemoteExecDisabled):
		WriteForbidden(w, "Remote execution is disabled")
	case errors.Is(err, models.ErrTokenUnknown),
		errors.Is(err, models.ErrTokenAlreadyUsed):
		WriteUnauthorized(w, "Invalid stream token")
	case errors.Is(err, models.ErrBadRequest):
		WriteBadRequest(w, "Invalid request")
	case errors.Is(err, models.ErrNotFound):
		WriteNotFound(w, "Not found")
	default:
		WriteInternalError(w, "Internal server error")
	}
}
