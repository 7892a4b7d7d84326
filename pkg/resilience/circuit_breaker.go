package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/richxcame/ride-dispatch/pkg/config"
	"github.com/richxcame/ride-dispatch/pkg/logger"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned when the breaker refuses a request because it is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Operation represents a call wrapped by the circuit breaker.
type Operation func(ctx context.Context) (interface{}, error)

// Settings defines runtime options for the circuit breaker.
type Settings struct {
	Name             string
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
	// IsSuccessful classifies errors that must not count towards tripping,
	// such as a lookup that legitimately found nothing.
	IsSuccessful func(err error) bool
}

// SettingsFromConfig resolves the breaker tuning for a named dependency.
func SettingsFromConfig(cfg config.CircuitBreakerConfig, name string) Settings {
	s := cfg.SettingsFor(name)
	return Settings{
		Name:             name,
		Interval:         time.Duration(s.IntervalSeconds) * time.Second,
		Timeout:          time.Duration(s.TimeoutSeconds) * time.Second,
		FailureThreshold: uint32(s.FailureThreshold),
		SuccessThreshold: uint32(s.SuccessThreshold),
	}
}

// CircuitBreaker wraps gobreaker with logging and metrics.
type CircuitBreaker struct {
	name    string
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreaker constructs a breaker that trips after FailureThreshold
// consecutive failures.
func NewCircuitBreaker(settings Settings) *CircuitBreaker {
	name := nextBreakerName(settings.Name)
	threshold := settings.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	breakerSettings := gobreaker.Settings{
		Name:     name,
		Timeout:  settings.Timeout,
		Interval: settings.Interval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			recordBreakerStateChange(name, from, to)
		},
		IsSuccessful: settings.IsSuccessful,
	}

	if settings.SuccessThreshold > 0 {
		breakerSettings.MaxRequests = settings.SuccessThreshold
	}

	recordBreakerState(name, gobreaker.StateClosed)
	return &CircuitBreaker{
		name:    name,
		breaker: gobreaker.NewCircuitBreaker(breakerSettings),
	}
}

// Execute runs the supplied operation through the breaker. A nil breaker
// calls the operation directly.
func (c *CircuitBreaker) Execute(ctx context.Context, operation Operation) (interface{}, error) {
	if operation == nil {
		return nil, errors.New("operation cannot be nil")
	}

	if c == nil || c.breaker == nil {
		return operation(ctx)
	}

	recordBreakerRequest(c.name)
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return operation(ctx)
	})
	if err == nil {
		return result, nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		recordBreakerRejection(c.name)
		return nil, ErrCircuitOpen
	}

	recordBreakerFailure(c.name)
	return nil, err
}

// Allow reports whether the breaker would allow a request without executing it.
func (c *CircuitBreaker) Allow() bool {
	if c == nil || c.breaker == nil {
		return true
	}
	return c.breaker.State() != gobreaker.StateOpen
}

// Name returns the breaker's metric label.
func (c *CircuitBreaker) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}
