package redis

import (
	"context"
	"time"
)

// ClientInterface defines the Redis operations used by the cache layer
type ClientInterface interface {
	SetWithExpiration(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	GetString(ctx context.Context, key string) (string, error)
	RetryableSet(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	RetryableGet(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)
