package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/richxcame/ride-dispatch/pkg/logger"
	"go.uber.org/zap"
)

// RetryConfig defines the configuration for retry behavior
type RetryConfig struct {
	// MaxAttempts includes the initial attempt.
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	// EnableJitter applies full jitter to each backoff.
	EnableJitter bool
	// RetryableChecker decides whether err is worth another attempt.
	// Nil retries everything except context and breaker errors.
	RetryableChecker func(error) bool
}

// DefaultRetryConfig returns a sensible default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
		EnableJitter:      true,
	}
}

// Retry executes fn with exponential backoff until it succeeds, returns a
// non-retryable error, or attempts run out.
func Retry[T any](ctx context.Context, config RetryConfig, operationName string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			recordRetryOutcome(operationName, attempt-1, false)
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.InfoContext(ctx, "operation succeeded after retry",
					zap.Int("attempt", attempt),
					zap.String("operation", operationName),
				)
			}
			recordRetryOutcome(operationName, attempt, true)
			return result, nil
		}
		lastErr = err

		if !shouldRetry(err, config) || attempt == config.MaxAttempts {
			recordRetryOutcome(operationName, attempt, false)
			return zero, err
		}

		backoff := calculateBackoff(attempt, config)
		logger.DebugContext(ctx, "retrying operation after backoff",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.String("operation", operationName),
			zap.Error(err),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			recordRetryOutcome(operationName, attempt, false)
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, lastErr
}

func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	multiplier := config.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2
	}
	backoff := float64(config.InitialBackoff) * math.Pow(multiplier, float64(attempt-1))
	if config.MaxBackoff > 0 && backoff > float64(config.MaxBackoff) {
		backoff = float64(config.MaxBackoff)
	}

	duration := time.Duration(backoff)
	if config.EnableJitter && duration > 0 {
		duration = time.Duration(rand.Int63n(int64(duration)))
	}
	return duration
}

func shouldRetry(err error, config RetryConfig) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	if config.RetryableChecker != nil {
		return config.RetryableChecker(err)
	}
	return true
}
