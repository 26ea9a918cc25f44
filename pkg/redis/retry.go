package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/eugene-kirzhanov/vkcup21/pkg/resilience"
	"github.com/redis/go-redis/v9"
)

// RetryableOperation executes a Redis operation with retry logic for transient failures
func RetryableOperation[T any](ctx context.Context, operation func(context.Context) (T, error), operationName string) (T, error) {
	config := resilience.DefaultRetryConfig()
	config.InitialBackoff = 50 * time.Millisecond
	config.MaxBackoff = time.Second
	config.RetryableChecker = isRedisRetryable

	result, err := resilience.RetryWithName(ctx, config, func(ctx context.Context) (interface{}, error) {
		return operation(ctx)
	}, operationName)
	if err != nil {
		var zero T
		return zero, err
	}

	return result.(T), nil
}

// RetryableSet sets a key-value pair with retry logic
func (c *Client) RetryableSet(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	_, err := RetryableOperation(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.SetWithExpiration(ctx, key, value, expiration)
	}, "redis.set")
	return err
}

// RetryableGet gets a value by key with retry logic
func (c *Client) RetryableGet(ctx context.Context, key string) (string, error) {
	return RetryableOperation(ctx, func(ctx context.Context) (string, error) {
		return c.GetString(ctx, key)
	}, "redis.get")
}

var retryableMessages = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"pool timeout",
	"server closed",
	"unexpected eof",
	"loading",
	"busy",
	"tryagain",
}

// isRedisRetryable retries connection-level failures only. A missing key is
// an answer, not a failure.
func isRedisRetryable(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, m := range retryableMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
