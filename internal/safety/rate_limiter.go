package safety

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds the venue request budget
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// DefaultRateLimitConfig stays well inside Bybit's per-UID budget
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: 8, Burst: 4}
}

// RateLimiter keeps separate token buckets for reads and writes, so polling
// never queues an order behind it.
type RateLimiter struct {
	reads  *rate.Limiter
	writes *rate.Limiter
}

// NewRateLimiter creates a limiter; a non-positive rate disables limiting
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		return &RateLimiter{
			reads:  rate.NewLimiter(rate.Inf, 0),
			writes: rate.NewLimiter(rate.Inf, 0),
		}
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &RateLimiter{
		reads:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		writes: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}
}

// WaitRead blocks until a read request is allowed or ctx is done
func (rl *RateLimiter) WaitRead(ctx context.Context) error {
	return rl.reads.Wait(ctx)
}

// WaitWrite blocks until a write request is allowed or ctx is done
func (rl *RateLimiter) WaitWrite(ctx context.Context) error {
	return rl.writes.Wait(ctx)
}
