package security

import (
	"fmt"
	"sync"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
)

// RateLimiter is a sliding-window limiter keyed by an arbitrary string
// identifier (e.g. a Cloudflare zone ID), built on reproxy's tollbooth
// throttling pattern but repurposed away from HTTP middleware: callers
// check a plain identifier instead of an *http.Request.
type RateLimiter struct {
	mu      sync.Mutex
	limiter *limiter.Limiter
}

// NewRateLimiter creates a limiter allowing maxCalls per window, using a
// monotonic sliding window (not wall-clock) as tollbooth's expirable cache
// does internally.
func NewRateLimiter(maxCalls int, window time.Duration) *RateLimiter {
	ttl := window
	lim := tollbooth.NewLimiter(float64(maxCalls)/window.Seconds(), &limiter.ExpirableOptions{DefaultExpirationTTL: ttl})
	lim.SetBurst(maxCalls)
	return &RateLimiter{limiter: lim}
}

// DefaultCloudflareRateLimiter matches the spec default: 100 calls per 60s,
// keyed by the Cloudflare zone/token identifier.
func DefaultCloudflareRateLimiter() *RateLimiter {
	return NewRateLimiter(100, 60*time.Second)
}

// Allow registers a call attempt for key and reports whether it is within
// the rate limit. Access is serialized: the rate-limiter state is shared
// process-wide and must not race across goroutines calling the same key.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.limiter.LimitReached(key)
}

// CheckRateLimit returns an error if key has exceeded the configured rate,
// matching the C4 contract: "exceeding the limit fails the source."
func (r *RateLimiter) CheckRateLimit(key string) error {
	if !r.Allow(key) {
		return fmt.Errorf("rate limit exceeded for %q", key)
	}
	return nil
}
