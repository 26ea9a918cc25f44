package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/eugene-kirzhanov/vkcup21/pkg/logger"
	"go.uber.org/zap"
)

// RetryConfig defines the configuration for retry behavior
type RetryConfig struct {
	// MaxAttempts includes the initial attempt
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	// EnableJitter spreads retries of concurrent callers
	EnableJitter bool
	// RetryableChecker decides whether an error is worth another attempt.
	// Nil retries everything except cancellation and an open breaker.
	RetryableChecker func(error) bool
}

// DefaultRetryConfig suits interactive upstream calls where the user is waiting.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
		EnableJitter:      true,
	}
}

// Retry executes the given operation with exponential backoff retry logic
func Retry(ctx context.Context, config RetryConfig, operation Operation) (interface{}, error) {
	return RetryWithName(ctx, config, operation, "unknown")
}

// RetryWithName executes the operation with retry logic and records metrics with the given operation name
func RetryWithName(ctx context.Context, config RetryConfig, operation Operation, operationName string) (interface{}, error) {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	startTime := time.Now()
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			RecordRetryOperation(operationName, time.Since(startTime).Seconds(), attempt, false)
			return nil, err
		}

		result, err := operation(ctx)
		if err == nil {
			RecordRetryAttempt(operationName, true)
			RecordRetryOperation(operationName, time.Since(startTime).Seconds(), attempt, true)
			if attempt > 1 {
				logger.Get().Info("operation succeeded after retry",
					zap.Int("attempt", attempt),
					zap.String("operation", operationName),
				)
			}
			return result, nil
		}

		RecordRetryAttempt(operationName, false)
		lastErr = err

		if !shouldRetry(err, config) {
			RecordRetryOperation(operationName, time.Since(startTime).Seconds(), attempt, false)
			return nil, err
		}
		if attempt == config.MaxAttempts {
			logger.Get().Warn("operation failed after all retry attempts",
				zap.Error(err),
				zap.Int("attempts", attempt),
				zap.String("operation", operationName),
			)
			break
		}

		backoff := calculateBackoff(attempt, config)
		RecordRetryBackoff(operationName, backoff.Seconds())
		logger.Get().Debug("retrying operation after backoff",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.String("operation", operationName),
			zap.Error(err),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			RecordRetryOperation(operationName, time.Since(startTime).Seconds(), attempt, false)
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	RecordRetryOperation(operationName, time.Since(startTime).Seconds(), config.MaxAttempts, false)
	return nil, lastErr
}

// calculateBackoff returns initial * multiplier^(attempt-1), capped and optionally jittered.
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
		// full jitter
		duration = time.Duration(rand.Int63n(int64(duration)))
	}
	return duration
}

func shouldRetry(err error, config RetryConfig) bool {
	if err == nil {
		return false
	}
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

// IsRetryableHTTPStatus reports whether a response status is transient:
// 408, 429 and the 5xx gateway family.
func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
