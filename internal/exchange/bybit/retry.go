package bybit

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryConfig holds configuration for retrying idempotent reads. Order
// placement and modification are never retried.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    2,
		InitialDelay:  300 * time.Millisecond,
		MaxDelay:      3 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// retryRead executes a read with retry logic on retryable venue errors
func (c *Client) retryRead(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == c.retry.MaxRetries || !IsRetryableError(err) {
			break
		}

		timer := time.NewTimer(c.retry.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

// delay calculates the wait before the next attempt with exponential backoff
func (rc RetryConfig) delay(attempt int) time.Duration {
	delay := time.Duration(float64(rc.InitialDelay) * math.Pow(rc.BackoffFactor, float64(attempt)))
	if delay > rc.MaxDelay {
		delay = rc.MaxDelay
	}
	if rc.JitterEnabled {
		delay += time.Duration(float64(delay) * 0.1 * (2*rand.Float64() - 1))
	}
	return delay
}
