package middleware

import (
	"log"
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimit rejects requests beyond limit with 429. One bucket is shared by
// every caller of the wrapped routes.
func RateLimit(limit rate.Limit, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(limit, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				log.Printf("ERROR [middleware.RateLimit] %s %s throttled", r.Method, r.URL.Path)
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
