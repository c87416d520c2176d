package ratelimit

import (
	"log"
	"net/http"
)

// rejectionBody is the fixed response sent when a client is rate limited
const rejectionBody = `{"error":"Rate limit exceeded","message":"Too many requests. Please try again later."}`

// Middleware returns an http middleware applying the limiter to every request
// it wraps. Denied requests receive a 429 with a fixed JSON body and the
// wrapped handler is never invoked.
func Middleware(limiter *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := ClientIdentity(r)
			if !limiter.Allow(r.Context(), identity) {
				log.Printf("Rate limit exceeded for client: %s", identity)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				if _, err := w.Write([]byte(rejectionBody)); err != nil {
					log.Printf("Error writing rate limit response: %v", err)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
