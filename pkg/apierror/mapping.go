package apierror

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"go-admin-portal/internal/model"
)

// FromError classifies err into the API error returned to clients. The
// second result is false when err is unknown and was mapped to a generic 500.
func FromError(err error) (*APIError, bool) {
	if apiErr, ok := As(err); ok {
		return apiErr, true
	}

	switch {
	case errors.Is(err, model.ErrInvalidCredentials):
		return New("INVALID_CREDENTIALS", "Invalid email or password", "", http.StatusUnauthorized), true
	case errors.Is(err, model.ErrInactiveUser):
		return New("INACTIVE_USER", "User account is inactive", "", http.StatusUnauthorized), true
	case errors.Is(err, model.ErrTokenExpired):
		return New("TOKEN_EXPIRED", "Token has expired", "", http.StatusUnauthorized), true
	case errors.Is(err, model.ErrTokenReused):
		return New("TOKEN_REUSED", "Session was revoked; sign in again", "", http.StatusUnauthorized), true
	case errors.Is(err, model.ErrTokenInvalid):
		return New("TOKEN_INVALID", "Token is invalid", "", http.StatusUnauthorized), true
	case errors.Is(err, model.ErrCSRFMismatch):
		return New("CSRF_MISMATCH", "CSRF token missing or invalid", "", http.StatusForbidden), true
	case errors.Is(err, model.ErrCSRFExpired):
		return New("CSRF_EXPIRED", "CSRF token has expired", "", http.StatusForbidden), true
	case errors.Is(err, model.ErrPermissionDenied):
		return New("PERMISSION_DENIED", "You do not have access to this page", "", http.StatusForbidden), true
	case errors.Is(err, model.ErrNotAdmin):
		return New("NOT_ADMIN", "Administrator role required", "", http.StatusForbidden), true
	case errors.Is(err, model.ErrSelfLockout):
		return New("SELF_LOCKOUT", "Change would leave no administrator with user management access", "", http.StatusForbidden), true
	case errors.Is(err, model.ErrRateLimited):
		return New("RATE_LIMITED", "Too many requests", "", http.StatusTooManyRequests), true
	case errors.Is(err, model.ErrNotFound):
		return New("NOT_FOUND", "Resource not found", "", http.StatusNotFound), true
	case errors.Is(err, model.ErrUserAlreadyExists):
		return New("ALREADY_EXISTS", "User already exists", "", http.StatusConflict), true
	case errors.Is(err, model.ErrInvalidInput):
		return New("BAD_REQUEST", "Invalid input", err.Error(), http.StatusBadRequest), true
	}

	return New("INTERNAL_ERROR", "Unexpected server error", "", http.StatusInternalServerError), false
}

// Write renders err as the standard failure envelope. Unclassified errors are
// logged and never leak their text to the client.
func Write(w http.ResponseWriter, err error) {
	apiErr, known := FromError(err)
	if !known {
		slog.Error("unhandled error", "error", err)
	}

	var limited *model.RateLimitError
	if errors.As(err, &limited) {
		w.Header().Set("Retry-After", strconv.Itoa(limited.RetryAfterSeconds()))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error: &model.APIError{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Details: apiErr.Details,
		},
	})
}
