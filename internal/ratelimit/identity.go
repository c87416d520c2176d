package ratelimit

import (
	"net/http"
	"strings"
)

// ClientIdentity resolves the rate-limiting identity for a request.
// Resolution order: explicit API key header, first hop of X-Forwarded-For,
// X-Real-IP, then the raw connection address. First non-empty wins.
func ClientIdentity(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get("X-API-Key")); apiKey != "" {
		return "api:" + apiKey
	}

	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return "ip:" + first
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return "ip:" + realIP
	}

	return "ip:" + r.RemoteAddr
}
