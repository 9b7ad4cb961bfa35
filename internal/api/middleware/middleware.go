// Package middleware specializes the shared HTTP middleware for the JSON
// API: failures are written in the API error format.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/mcoot/escaperoom/internal/api/apierr"
	"github.com/mcoot/escaperoom/internal/middleware"
)

// Recovery answers a panicking handler with INTERNAL_ERROR
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return middleware.Recovery(logger, func(w http.ResponseWriter, _ *http.Request, _ any) {
		apierr.WriteError(w, apierr.NewInternalError())
	})
}

// RateLimit answers requests over the limit with RATE_LIMITED
func RateLimit(rl *middleware.RateLimiter) func(http.Handler) http.Handler {
	return middleware.RateLimit(rl, func(w http.ResponseWriter, _ *http.Request) {
		apierr.WriteError(w, apierr.NewRateLimitedError())
	})
}
