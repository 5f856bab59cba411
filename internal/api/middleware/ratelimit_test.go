package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func tightConfig(burst int) RateLimitConfig {
	return RateLimitConfig{
		Rate:            rate.Limit(1),
		Burst:           burst,
		CleanupInterval: time.Hour,
		MaxAge:          time.Hour,
	}
}

func TestIPRateLimiterAllowsBurstThenDenies(t *testing.T) {
	rl := NewIPRateLimiter(tightConfig(3))
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d denied within burst", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("request beyond burst was allowed")
	}
	// Another IP keeps its own bucket.
	if !rl.Allow("10.0.0.2") {
		t.Error("fresh IP denied")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewIPRateLimiter(tightConfig(1))
	defer rl.Stop()

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:1234"

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want %d", rr.Code, http.StatusOK)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want %d", rr.Code, http.StatusTooManyRequests)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestRateLimiterCleanupEvictsStaleEntries(t *testing.T) {
	cfg := tightConfig(1)
	cfg.MaxAge = time.Millisecond
	rl := NewIPRateLimiter(cfg)
	defer rl.Stop()

	rl.Allow("10.0.0.9")
	time.Sleep(5 * time.Millisecond)
	rl.cleanup()

	rl.mu.Lock()
	_, ok := rl.entries["10.0.0.9"]
	rl.mu.Unlock()
	if ok {
		t.Error("stale entry survived cleanup")
	}
}
