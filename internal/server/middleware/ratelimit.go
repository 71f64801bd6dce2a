package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit returns an HTTP middleware that limits requests per IP address
// to the specified number per minute. Uses a sliding window algorithm.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}

// RateLimitByKey limits requests per authenticated key to the specified
// number per minute. It must run after RequireAction. The master key and
// unauthenticated requests fall back to the client IP.
func RateLimitByKey(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if p := GetPrincipal(r.Context()); p != nil && p.KeyID != "" {
				return "key:" + p.KeyID, nil
			}
			return httprate.KeyByIP(r)
		}),
	)
}
