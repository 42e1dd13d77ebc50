package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"prism/internal/httputil"
)

const rateLimiterCleanupInterval = 5 * time.Minute

// RateLimiter implements fixed-window per-IP request counting. Each IP gets
// a counter that resets when its window expires; cleanup of expired windows
// happens inline during Allow calls.
type RateLimiter struct {
	mu          sync.Mutex
	visitors    map[string]*window
	limit       int
	interval    time.Duration
	lastCleanup time.Time
	now         func() time.Time
}

// window holds the request count for a single IP within the current window.
type window struct {
	count   int
	startAt time.Time
}

// NewRateLimiter creates a rate limiter allowing `limit` requests per
// `interval` from each client IP.
func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		visitors:    make(map[string]*window),
		limit:       limit,
		interval:    interval,
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

// Allow records a request from ip and reports whether it fits in the current
// window. When it does not, the second return value is the time remaining
// until the window resets.
func (rl *RateLimiter) Allow(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	if now.Sub(rl.lastCleanup) > rateLimiterCleanupInterval {
		for k, w := range rl.visitors {
			if now.Sub(w.startAt) > rl.interval {
				delete(rl.visitors, k)
			}
		}
		rl.lastCleanup = now
	}

	w, exists := rl.visitors[ip]
	if !exists || now.Sub(w.startAt) >= rl.interval {
		rl.visitors[ip] = &window{count: 1, startAt: now}
		return true, 0
	}

	if w.count >= rl.limit {
		return false, rl.interval - now.Sub(w.startAt)
	}

	w.count++
	return true, 0
}

// RateLimit returns middleware that rejects requests over the per-IP limit
// with 429 and a Retry-After header.
func RateLimit(rl *RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			ok, retryAfter := rl.Allow(ip)
			if !ok {
				logger.Warn("rate limit exceeded",
					"ip", ip,
					"path", r.URL.Path,
					"method", r.Method,
				)
				seconds := int(retryAfter.Seconds())
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				httputil.RespondError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the client IP from the request.
//
// X-Forwarded-For is checked first (first IP is the client), then X-Real-IP.
// Header values are validated with net.ParseIP so arbitrary strings cannot
// become rate limiter keys. Falls back to RemoteAddr, then "unknown".
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		raw := xff
		if first, _, ok := strings.Cut(xff, ","); ok {
			raw = first
		}
		if ip := net.ParseIP(strings.TrimSpace(raw)); ip != nil {
			return ip.String()
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
			return ip.String()
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && ip != "" {
		return ip
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
