package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// UnknownClient is the bucket shared by every request whose origin cannot be
// determined. All such clients are limited together.
const UnknownClient = "unknown"

// ClientID resolves the identifier a request is rate limited under: the
// first X-Forwarded-For entry, then X-Real-IP, then the socket address.
func ClientID(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	if r.RemoteAddr != "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err == nil && host != "" {
			return host
		}

		return r.RemoteAddr
	}

	return UnknownClient
}

// RejectFunc writes the response for a rate limited request. retryAfter is
// how long until the client's oldest request leaves the window.
type RejectFunc func(w http.ResponseWriter, r *http.Request,
	retryAfter time.Duration)

// Middleware limits each client to limit requests per window. Requests
// over the limit get a Retry-After header and are handed to reject.
func (l *Limiter) Middleware(limit int, window time.Duration,
	reject RejectFunc) func(http.Handler) http.Handler {

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter,
			r *http.Request) {

			id := ClientID(r)
			if l.Allow(id, limit, window) {
				next.ServeHTTP(w, r)
				return
			}

			_, resetAt := l.Remaining(id, limit, window)
			retryAfter := resetAt.Sub(l.now())
			if retryAfter < 0 {
				retryAfter = 0
			}

			secs := int(math.Ceil(retryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(secs))

			reject(w, r, retryAfter)
		})
	}
}
