package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS allows credentialed requests from the configured origins only; the
// refresh cookie is never sent to a wildcard origin.
func CORS(origins []string) func(http.Handler) http.Handler {
	handler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", CSRFHeader, requestIDHeader},
		ExposedHeaders:   []string{"Retry-After", AccessTokenHeader, requestIDHeader},
		MaxAge:           3600,
		AllowCredentials: len(origins) > 0,
	})

	return handler.Handler
}
