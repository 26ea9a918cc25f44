package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eugene-kirzhanov/vkcup21/pkg/logger"
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
	// IsExcluded marks errors that say nothing about upstream health, such as
	// an empty result. They are returned but do not count as failures.
	IsExcluded func(err error) bool
}

// BuildSettings converts config-style numbers into breaker Settings.
func BuildSettings(name string, intervalSeconds, timeoutSeconds, failureThreshold, successThreshold int) Settings {
	return Settings{
		Name:             name,
		Interval:         time.Duration(intervalSeconds) * time.Second,
		Timeout:          time.Duration(timeoutSeconds) * time.Second,
		FailureThreshold: uint32(max(failureThreshold, 0)),
		SuccessThreshold: uint32(max(successThreshold, 0)),
	}
}

// CircuitBreaker wraps gobreaker with defaults suitable for our services.
type CircuitBreaker struct {
	name    string
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreaker constructs a breaker with logging and metrics. Callers
// decide how to degrade on ErrCircuitOpen.
func NewCircuitBreaker(settings Settings) *CircuitBreaker {
	name := nextBreakerName(settings.Name)

	readyToTrip := func(counts gobreaker.Counts) bool {
		threshold := settings.FailureThreshold
		if threshold == 0 {
			threshold = 5
		}
		return counts.ConsecutiveFailures >= threshold
	}

	breakerSettings := gobreaker.Settings{
		Name:        name,
		Timeout:     settings.Timeout,
		Interval:    settings.Interval,
		ReadyToTrip: readyToTrip,
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			return settings.IsExcluded != nil && settings.IsExcluded(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			recordBreakerStateChange(name, from, to)
			logger.Get().Info("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
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

// Name returns the breaker name used in logs and metrics.
func (c *CircuitBreaker) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// Execute runs the supplied operation through the breaker.
func (c *CircuitBreaker) Execute(ctx context.Context, operation Operation) (interface{}, error) {
	if operation == nil {
		return nil, errors.New("operation cannot be nil")
	}

	if c == nil || c.breaker == nil {
		return operation(ctx)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return operation(ctx)
	})
	if err == nil {
		recordBreakerCall(c.name, callSucceeded)
		return result, nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		recordBreakerCall(c.name, callRejected)
		return nil, ErrCircuitOpen
	}

	recordBreakerCall(c.name, callFailed)
	return nil, err
}

// Allow reports whether the breaker would allow a request without executing it.
func (c *CircuitBreaker) Allow() bool {
	if c == nil || c.breaker == nil {
		return true
	}
	return c.breaker.State() != gobreaker.StateOpen
}

// Call runs operation through breaker and returns its typed result. A nil
// breaker calls operation directly.
func Call[T any](ctx context.Context, breaker *CircuitBreaker, operation func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result, err := breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return operation(ctx)
	})
	if err != nil {
		return zero, err
	}
	return typedResult[T](breaker.Name(), result)
}

func typedResult[T any](name string, result interface{}) (T, error) {
	var zero T
	if result == nil {
		return zero, nil
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker %q: unexpected result type %T", name, result)
	}
	return typed, nil
}
