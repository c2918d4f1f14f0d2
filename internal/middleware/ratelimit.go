package middleware

import (
	"net/http"
	"sync"
	"time"
)

// RateLimiter is a per-client token bucket. The connect flow fans out into
// polling-driven status requests from the web client, so the limit is per
// client IP rather than global.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*bucket
	rate    int
	window  time.Duration

	cleanupTick *time.Ticker
	stopCleanup chan struct{}
}

type bucket struct {
	tokens     int
	lastUpdate time.Time
}

// NewRateLimiter creates a limiter allowing rate requests per window.
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		clients:     make(map[string]*bucket),
		rate:        rate,
		window:      window,
		cleanupTick: time.NewTicker(5 * time.Minute),
		stopCleanup: make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// cleanup drops buckets that have been idle for over an hour.
func (rl *RateLimiter) cleanup() {
	for {
		select {
		case <-rl.cleanupTick.C:
			rl.mu.Lock()
			now := time.Now()
			for key, b := range rl.clients {
				if now.Sub(b.lastUpdate) > time.Hour {
					delete(rl.clients, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCleanup:
			return
		}
	}
}

// Stop stops the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.cleanupTick.Stop()
	close(rl.stopCleanup)
}

// Allow reports whether a request from key should proceed.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.clients[key]
	if !ok {
		b = &bucket{tokens: rl.rate, lastUpdate: time.Now()}
		rl.clients[key] = b
	}

	now := time.Now()
	elapsed := now.Sub(b.lastUpdate)

	if elapsed >= rl.window {
		b.tokens = rl.rate
		b.lastUpdate = now
	} else if refill := int(float64(rl.rate) * elapsed.Seconds() / rl.window.Seconds()); refill > 0 {
		b.tokens = min(b.tokens+refill, rl.rate)
		b.lastUpdate = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}

	return false
}

// GetClientKey extracts a client identifier from the request, preferring
// proxy headers over RemoteAddr.
func GetClientKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}

// RateLimitMiddleware creates a middleware that rate limits requests.
func RateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(GetClientKey(r)) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error": "rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
