package handlers

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/playmates/backend/internal/auth"
)

// RateLimiter is the minimal interface required to guard sensitive endpoints.
type RateLimiter interface {
	Allow(key string) bool
}

// retryAfterLimiter is implemented by limiters that can tell a rejected caller when to retry.
type retryAfterLimiter interface {
	RetryAfter(key string) time.Duration
}

// allowRequest keys anonymous endpoints by client IP.
func allowRequest(w http.ResponseWriter, limiter RateLimiter, r *http.Request, scope string) bool {
	if limiter == nil {
		return true
	}
	return allowKey(w, limiter, rateLimitKey(scope, clientIP(r)))
}

// allowUser keys authenticated endpoints by the caller, falling back to the client IP.
func allowUser(w http.ResponseWriter, limiter RateLimiter, r *http.Request, scope string) bool {
	if limiter == nil {
		return true
	}
	key := auth.UserIDFromContext(r.Context())
	if key == "" {
		key = clientIP(r)
	}
	return allowKey(w, limiter, rateLimitKey(scope, key))
}

// allowKey sets Retry-After on rejection when the limiter knows the wait.
func allowKey(w http.ResponseWriter, limiter RateLimiter, key string) bool {
	if limiter.Allow(key) {
		return true
	}
	if ra, ok := limiter.(retryAfterLimiter); ok {
		if wait := ra.RetryAfter(key); wait > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		}
	}
	return false
}

func rateLimitKey(scope, key string) string {
	if scope == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", scope, key)
}

func clientIP(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
