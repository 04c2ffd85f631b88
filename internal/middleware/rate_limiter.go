package middleware

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/paintcrew/fieldtime/internal/multitenancy"
)

// RateLimiter enforces per-principal (companyId:uid) rate limits, the §5
// resource-exhausted boundary every mutating operation is subject to.
//
// Uses a fixed one-minute window per key: the count resets on the first
// request more than a minute after the window opened, and stale windows are
// garbage-collected periodically.
type RateLimiter struct {
	mu       sync.RWMutex
	windows  map[string]*rateLimitWindow
	defaults RateLimitConfig
	logger   *log.Logger
}

// RateLimitConfig defines the rate limiting thresholds.
type RateLimitConfig struct {
	MaxCallsPerMinute int
	BurstSize         int
}

type rateLimitWindow struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a new rate limiter with the given defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.MaxCallsPerMinute == 0 {
		cfg.MaxCallsPerMinute = 120
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = cfg.MaxCallsPerMinute * 2
	}

	rl := &RateLimiter{
		windows:  make(map[string]*rateLimitWindow),
		defaults: cfg,
		logger:   log.New(log.Writer(), "[rate-limit] ", log.LstdFlags),
	}

	go rl.cleanup()

	return rl
}

// Allow checks if a request from the given key (companyId:uid) should be
// allowed. Returns true if within limits.
//
// Uses a read-first pattern: only acquires the write lock when a new
// window must be created or the prior one has expired. Existing-window
// checks use RLock to reduce contention under high concurrency; the
// occasional race on count++ is acceptable since this is a soft limit.
func (rl *RateLimiter) Allow(key string) bool {
	now := time.Now()

	rl.mu.RLock()
	window, exists := rl.windows[key]
	if exists && now.Sub(window.windowStart) <= time.Minute {
		window.count++
		count := window.count
		rl.mu.RUnlock()

		if count > rl.defaults.BurstSize {
			rl.logger.Printf("rate limit exceeded (burst): key=%s count=%d limit=%d",
				key, count, rl.defaults.BurstSize)
			return false
		}
		if count > rl.defaults.MaxCallsPerMinute {
			return false
		}
		return true
	}
	rl.mu.RUnlock()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	window, exists = rl.windows[key]
	if exists && now.Sub(window.windowStart) <= time.Minute {
		window.count++
		return window.count <= rl.defaults.BurstSize
	}

	rl.windows[key] = &rateLimitWindow{
		count:       1,
		windowStart: now,
	}
	return true
}

// Middleware returns an HTTP middleware that enforces rate limiting, keyed
// by the resolved Principal's companyId:uid. It must run after
// PrincipalMiddleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "anonymous:anonymous"
		if p, ok := multitenancy.PrincipalFrom(r.Context()); ok {
			key = p.CompanyID + ":" + p.UID
		}

		if !rl.Allow(key) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"code":"resource-exhausted","message":"rate limit exceeded","retry_after_seconds":60}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// cleanup periodically removes expired windows to prevent memory leaks.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()
		for key, window := range rl.windows {
			if now.Sub(window.windowStart) > 2*time.Minute {
				delete(rl.windows, key)
			}
		}
		rl.mu.Unlock()
	}
}

// Stats returns current rate limiter statistics.
func (rl *RateLimiter) Stats() map[string]interface{} {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	return map[string]interface{}{
		"active_windows":    len(rl.windows),
		"max_calls_per_min": rl.defaults.MaxCallsPerMinute,
		"burst_size":        rl.defaults.BurstSize,
	}
}
