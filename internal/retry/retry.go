// Package retry provides the exponential backoff schedule used by the
// request scheduler.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Config holds backoff configuration.
type Config struct {
	// MaxAttempts is the maximum number of execution attempts per request.
	MaxAttempts int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// CapDelay is the upper bound on the backoff delay before jitter.
	CapDelay time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		CapDelay:    30 * time.Second,
	}
}

// Delay returns the backoff delay after the given attempt (1-based):
// min(BaseDelay * 2^attempt, CapDelay) scaled by a random factor in
// [0.5, 1.5) to avoid synchronized retries.
func (c Config) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	backoff := c.BaseDelay
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= c.CapDelay {
			break
		}
	}
	if backoff > c.CapDelay {
		backoff = c.CapDelay
	}
	factor := 0.5 + rand.Float64()
	return time.Duration(float64(backoff) * factor)
}

// Sleep waits for d or until the context is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
