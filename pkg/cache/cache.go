package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/eugene-kirzhanov/vkcup21/pkg/logger"
	redisclient "github.com/eugene-kirzhanov/vkcup21/pkg/redis"
	"go.uber.org/zap"
)

// ErrMiss is returned by Get when the key is not cached.
var ErrMiss = errors.New("cache miss")

// Manager handles caching operations with JSON serialization
type Manager struct {
	redis redisclient.ClientInterface
}

// NewManager creates a new cache manager
func NewManager(redis redisclient.ClientInterface) *Manager {
	return &Manager{redis: redis}
}

// Get retrieves a cached value and unmarshals it into result. Connection
// failures are retried with a short backoff.
func (m *Manager) Get(ctx context.Context, key string, result interface{}) error {
	data, err := m.redis.RetryableGet(ctx, key)
	if redisclient.IsNil(err) {
		return ErrMiss
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(data), result); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

// Set marshals and caches a value with expiration
func (m *Manager) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	return m.redis.RetryableSet(ctx, key, string(data), ttl)
}

// Delete removes keys from cache
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	return m.redis.Delete(ctx, keys...)
}

// GetOrLoad returns the cached value for key, or calls load and caches its
// result. Cache failures are logged and never fail the call. A load error is
// returned as is and nothing is cached.
func GetOrLoad[T any](ctx context.Context, m *Manager, key string, ttl time.Duration, load func(ctx context.Context) (T, error)) (T, error) {
	var cached T
	if m == nil {
		return load(ctx)
	}

	err := m.Get(ctx, key, &cached)
	if err == nil {
		cacheLookups.WithLabelValues("hit").Inc()
		return cached, nil
	}
	if errors.Is(err, ErrMiss) {
		cacheLookups.WithLabelValues("miss").Inc()
	} else {
		cacheLookups.WithLabelValues("error").Inc()
		logger.WithContext(ctx).Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}

	if err := m.Set(ctx, key, value, ttl); err != nil {
		logger.WithContext(ctx).Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}

// CacheKeys defines common cache key patterns
type CacheKeys struct{}

var Keys = CacheKeys{}

// ReverseGeocode returns the cache key for a geocoded coordinate
func (k CacheKeys) ReverseGeocode(latitude, longitude float64, language string) string {
	return fmt.Sprintf("geocode:reverse:%s:%.6f,%.6f", language, latitude, longitude)
}

// NearbyPlaces returns the cache key for places around an H3 cell
func (k CacheKeys) NearbyPlaces(cell string, radiusMeters int, language string) string {
	return fmt.Sprintf("places:nearby:%s:%s:%d", language, cell, radiusMeters)
}
