package platform

import "time"

// RetryConfig bounds in-call retries on transient platform failures. The task
// queue has its own, coarser retry loop on top of this.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig retries twice with exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
	}
}

// delay returns the backoff before the given attempt (1-based).
func (c RetryConfig) delay(attempt int) time.Duration {
	d := c.BaseDelay << (attempt - 1)
	if d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}
