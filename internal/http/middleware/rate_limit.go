package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/litebrick/consult-bookings/internal/http/response"
	"github.com/litebrick/consult-bookings/pkg/logger"
)

// Counter is the fixed-window store behind the limiter (postgres.RateLimitRepo in production).
type Counter interface {
	Hit(ctx context.Context, key string, window time.Duration, now time.Time) (int, error)
}

// RateLimitConfig defines rate limiting parameters
type RateLimitConfig struct {
	Requests int           // Max requests per window
	Window   time.Duration // Time window duration
	Prefix   string        // Distinguishes limiters sharing one counter table
	KeyFunc  func(r *http.Request) []string
	SkipFunc func(r *http.Request) bool
	Now      func() time.Time
}

type RateLimiter struct {
	counter Counter
	config  RateLimitConfig
}

func NewRateLimiter(counter Counter, config RateLimitConfig) *RateLimiter {
	if config.KeyFunc == nil {
		config.KeyFunc = ClientIPKeyFunc
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &RateLimiter{counter: counter, config: config}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.config.SkipFunc != nil && rl.config.SkipFunc(r) {
				next.ServeHTTP(w, r)
				return
			}

			for _, key := range rl.config.KeyFunc(r) {
				count, ok := rl.allow(r.Context(), key)
				if !ok {
					w.Header().Set("Retry-After", strconv.Itoa(int(rl.config.Window.Seconds())))
					response.RateLimit(w, "Too many requests. Try again later.")
					return
				}
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.Requests))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(rl.config.Requests-count, 0)))
			}

			next.ServeHTTP(w, r)
		})
	}
}

// allow fails open: a counter outage must not take bookings down with it.
func (rl *RateLimiter) allow(ctx context.Context, key string) (int, bool) {
	sum := sha256.Sum256([]byte(rl.config.Prefix + key))
	count, err := rl.counter.Hit(ctx, hex.EncodeToString(sum[:]), rl.config.Window, rl.config.Now())
	if err != nil {
		logger.WarnContext(ctx, "rate limit counter unavailable", "error", err)
		return 0, true
	}
	return count, count <= rl.config.Requests
}

func ClientIPKeyFunc(r *http.Request) []string {
	if ip := getClientIP(r); ip != "" {
		return []string{"ip:" + ip}
	}
	return nil
}

// getClientIP keys on the connection address. Forwarding headers are client-controlled; when
// the service runs behind a trusted proxy, chi's middleware.RealIP rewrites RemoteAddr first.
func getClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
