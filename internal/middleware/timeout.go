package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"go-admin-portal/internal/model"
)

// Timeout bounds handler run time. The buffered response of a timed-out
// request is discarded and replaced with the standard error envelope.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	body, _ := json.Marshal(model.APIResponse{
		Success: false,
		Error:   &model.APIError{Code: "REQUEST_TIMEOUT", Message: "request timed out"},
	})

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, string(body))
	}
}
