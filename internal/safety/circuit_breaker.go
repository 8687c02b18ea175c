package safety

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	boterrors "github.com/ducminhle1904/confluence-bot/internal/errors"
	"github.com/ducminhle1904/confluence-bot/internal/exchange"
	"github.com/ducminhle1904/confluence-bot/internal/logger"
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures"` // consecutive failures before opening
	Interval    time.Duration `mapstructure:"interval"`     // closed-state counter reset, 0 never resets
	Timeout     time.Duration `mapstructure:"timeout"`      // open time before a half-open trial
}

// DefaultCircuitBreakerConfig returns the venue breaker defaults
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures: 5,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
	}
}

// NewCircuitBreaker builds a gobreaker that only counts infrastructure
// failures. Venue rejections and validation errors are answers, not outages.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig, log *logger.Logger) *gobreaker.CircuitBreaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = DefaultCircuitBreakerConfig().MaxFailures
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: cfg.Interval,
		Timeout:  cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !countsAsOutage(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warning("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})
}

// countsAsOutage reports whether err says the venue is unreachable or
// unhealthy rather than rejecting one request
func countsAsOutage(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var exErr *exchange.ExchangeError
	if errors.As(err, &exErr) {
		return exErr.IsRetryable
	}
	var botErr *boterrors.BotError
	if errors.As(err, &botErr) {
		// a venue code means the venue answered
		if botErr.Code != "" || botErr.Category == boterrors.ErrorCategoryValidation {
			return false
		}
	}
	return true
}

// breakerError maps gobreaker refusals onto the exchange error set
func breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return exchange.ErrCircuitOpen
	}
	return err
}
