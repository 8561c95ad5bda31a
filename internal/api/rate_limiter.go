package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// authPathPrefix marks the routes that get the stricter limit
const authPathPrefix = "/api/auth"

// limiterIdleTTL is how long a client's limiter is kept after its last request
const limiterIdleTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanoseconds
}

// RateLimiter manages per-client rate limiting for API requests
type RateLimiter struct {
	limiters map[string]*clientLimiter
	mu       sync.RWMutex

	// Requests per second per client
	defaultLimit rate.Limit
	authLimit    rate.Limit

	// Burst size (number of requests that can be made in a burst)
	burstSize int

	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter creates a new rate limiter. Auth routes get their own,
// usually lower, limit since they send email and check passwords.
func NewRateLimiter(rps, authRPS float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 10
	}
	return &RateLimiter{
		limiters:     make(map[string]*clientLimiter),
		defaultLimit: rate.Limit(rps),
		authLimit:    rate.Limit(authRPS),
		burstSize:    burst,
		idleTTL:      limiterIdleTTL,
		now:          time.Now,
	}
}

// getLimiter returns the rate limiter for a client and route class
func (rl *RateLimiter) getLimiter(clientKey string, auth bool) *rate.Limiter {
	key := clientKey
	limit := rl.defaultLimit
	if auth {
		key = "auth:" + clientKey
		limit = rl.authLimit
	}

	now := rl.now()

	rl.mu.RLock()
	entry, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if exists {
		entry.lastSeen.Store(now.UnixNano())
		return entry.limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check in case another goroutine created it
	if entry, exists := rl.limiters[key]; exists {
		entry.lastSeen.Store(now.UnixNano())
		return entry.limiter
	}

	rl.evictIdle(now)

	entry = &clientLimiter{limiter: rate.NewLimiter(limit, rl.burstSize)}
	entry.lastSeen.Store(now.UnixNano())
	rl.limiters[key] = entry

	return entry.limiter
}

// evictIdle drops limiters unused for idleTTL, at most once per idleTTL.
// The caller holds the write lock.
func (rl *RateLimiter) evictIdle(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.idleTTL {
		return
	}
	rl.lastSweep = now

	cutoff := now.Add(-rl.idleTTL).UnixNano()
	for key, entry := range rl.limiters {
		if entry.lastSeen.Load() < cutoff {
			delete(rl.limiters, key)
		}
	}
}

// Len returns the number of clients currently tracked
func (rl *RateLimiter) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.limiters)
}

// clientIP returns the remote host without its port
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware creates a middleware that enforces rate limiting
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := strings.HasPrefix(r.URL.Path, authPathPrefix)
			limiter := rl.getLimiter(clientIP(r), auth)

			if !limiter.Allow() {
				respondError(w, http.StatusTooManyRequests, ErrCodeRateLimitExceeded, "Too many requests, please try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
