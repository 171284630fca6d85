package platform

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RateLimiter spaces requests so one busy account cannot burn the platform's
// per-token quota. It is a simple interval limiter shared by all clients in a
// pool.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	logger   zerolog.Logger
}

// DefaultRequestInterval keeps us under the platform's 45 requests / 3s
// per-token quota with headroom for parallel workers.
const DefaultRequestInterval = 100 * time.Millisecond

// NewRateLimiter creates a rate limiter with the default interval.
func NewRateLimiter(logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{interval: DefaultRequestInterval, logger: logger}
}

// Wait blocks until the next request slot or until ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	now := time.Now()
	next := r.last.Add(r.interval)
	if next.Before(now) {
		next = now
	}
	r.last = next
	r.mu.Unlock()

	delay := time.Until(next)
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
