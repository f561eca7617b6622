package ratelimit

import (
	"net/http"

	"github.com/redisgate/redisgate/internal/httpserver"
)

// DefaultMiddleware guards pre-authentication traffic with the shared
// default bucket. Refusals map to 429.
func (l *Limiter) DefaultMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.CheckDefault() {
			httpserver.RespondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
