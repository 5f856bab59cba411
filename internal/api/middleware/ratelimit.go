package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures per-IP rate limiting for API endpoints.
type RateLimitConfig struct {
	// Rate is the number of requests allowed per second per IP.
	Rate rate.Limit
	// Burst is the maximum burst size per IP.
	Burst int
	// CleanupInterval is how often stale entries are removed.
	CleanupInterval time.Duration
	// MaxAge is how long an idle limiter is kept before eviction.
	MaxAge time.Duration
}

// DefaultRateLimitConfig returns defaults for general API rate limiting:
// 20 requests/second with burst of 40.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Rate:            rate.Limit(20),
		Burst:           40,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

// AuthRateLimitConfig returns stricter limits for the login endpoint:
// 5 requests/second with burst of 10 to mitigate brute-force attempts.
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Rate:            rate.Limit(5),
		Burst:           10,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

// ipLimitEntry tracks a per-IP rate limiter and when it was last used.
type ipLimitEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter provides per-IP rate limiting for HTTP endpoints.
type IPRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*ipLimitEntry
	cfg     RateLimitConfig
	stopCh  chan struct{}
}

// NewIPRateLimiter creates a per-IP rate limiter and starts background
// cleanup.
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	rl := &IPRateLimiter{
		entries: make(map[string]*ipLimitEntry),
		cfg:     cfg,
		stopCh:  make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow checks whether a request from the given IP is allowed.
func (rl *IPRateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.entries[ip]
	if !ok {
		entry = &ipLimitEntry{
			limiter: rate.NewLimiter(rl.cfg.Rate, rl.cfg.Burst),
		}
		rl.entries[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

// Stop terminates the background cleanup goroutine.
func (rl *IPRateLimiter) Stop() {
	close(rl.stopCh)
}

func (rl *IPRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *IPRateLimiter) cleanup() {
	cutoff := time.Now().Add(-rl.cfg.MaxAge)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, entry := range rl.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.entries, ip)
		}
	}
}

// Middleware returns the rate-limiting HTTP middleware. The client IP is
// taken from the request's RemoteAddr after chi's RealIP has resolved
// forwarding headers.
func (rl *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !rl.Allow(ip) {
			slog.Debug("rate limit exceeded", "ip", ip, "path", r.URL.Path)
			writeEnvelopeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
