package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Credential errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveUser       = errors.New("user is inactive")

	// Token errors
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenInvalid     = errors.New("token invalid")
	ErrTokenReused      = errors.New("refresh token reused")
	ErrRotationConflict = errors.New("refresh token already rotated")

	// Request integrity errors
	ErrCSRFMismatch = errors.New("csrf token mismatch")
	ErrCSRFExpired  = errors.New("csrf token expired")
	ErrRateLimited  = errors.New("rate limited")

	// Authorization errors
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotAdmin         = errors.New("administrator role required")
	ErrSelfLockout      = errors.New("change would remove the last administrator with user management access")

	// Lookup errors
	ErrNotFound          = errors.New("not found")
	ErrUserAlreadyExists = errors.New("user already exists")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)

// RateLimitError carries how long the caller must wait before the window resets.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// RetryAfterSeconds rounds up to whole seconds, minimum one.
func (e *RateLimitError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}

	return secs
}
