// Package backoff provides retry delay strategies. Strategies are stateless and
// safe for concurrent use.
package backoff

import (
	"context"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry n (1-indexed). Retry 1 is
	// the first retry after the initial failure.
	Delay(retry int) time.Duration
}

// Constant always returns the same delay regardless of the retry number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	if c == nil || c.Interval < 0 {
		return 0
	}
	return c.Interval
}

// Func adapts a plain function to a Strategy.
type Func func(retry int) time.Duration

// Delay calls f.
func (f Func) Delay(retry int) time.Duration {
	return f(retry)
}

// Wait blocks for d or until ctx is done, whichever comes first.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
