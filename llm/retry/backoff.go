// Package retry implements the local retry budget applied by each adapter
// around its upstream calls: exponential backoff with jitter, retrying only
// transient failures. Permanent 4xx errors surface immediately; retrying a
// malformed request wastes quota and cannot succeed.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/tradementor/llmcore/llm"
)

// Policy configures the backoff schedule.
type Policy struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // delay before the first retry
	MaxDelay    time.Duration // delay cap
	Multiplier  float64
	Jitter      bool
}

// DefaultPolicy is the adapter-level budget: 3 attempts, ~2s base delay,
// 10s cap.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// DoWithResult runs fn, retrying per policy while the error is retryable
// (see llm.IsRetryable). The last error is returned once the budget is
// exhausted or a non-retryable error occurs.
func DoWithResult[T any](ctx context.Context, p *Policy, logger *zap.Logger, fn func() (T, error)) (T, error) {
	var zero T
	if p == nil {
		p = DefaultPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := p.delay(attempt - 1)
			logger.Debug("retrying upstream call",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !llm.IsRetryable(err) {
			return zero, err
		}
	}
	return zero, lastErr
}

// Do is DoWithResult for functions without a result value.
func Do(ctx context.Context, p *Policy, logger *zap.Logger, fn func() error) error {
	_, err := DoWithResult(ctx, p, logger, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// delay computes the backoff before retry number n (1-based).
func (p *Policy) delay(n int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(n-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter {
		// ±25% to avoid synchronized retries across callers.
		d += (rand.Float64()*2 - 1) * d * 0.25
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
