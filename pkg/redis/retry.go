package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/richxcame/ride-dispatch/pkg/resilience"
)

var retryConfig = resilience.RetryConfig{
	MaxAttempts:       3,
	InitialBackoff:    50 * time.Millisecond,
	MaxBackoff:        time.Second,
	BackoffMultiplier: 2.0,
	EnableJitter:      true,
	RetryableChecker:  isRedisRetryable,
}

func withRetry[T any](ctx context.Context, operation string, fn func(context.Context) (T, error)) (T, error) {
	return resilience.Retry(ctx, retryConfig, operation, fn)
}

// isRedisRetryable reports whether err is a transient connection or server
// state error.
func isRedisRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// a missing key is an answer, not a failure
	if errors.Is(err, redis.Nil) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"pool timeout",
		"unexpected eof",
		"server closed",
		"loading",
		"tryagain",
		"masterdown",
	} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
