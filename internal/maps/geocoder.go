package maps

import (
	"context"
	"errors"
	"time"

	"github.com/eugene-kirzhanov/vkcup21/pkg/cache"
	"github.com/eugene-kirzhanov/vkcup21/pkg/resilience"
)

// Geocoder implements taxi.GeoCoder with cached reverse geocoding.
type Geocoder struct {
	client  *Client
	cache   *cache.Manager
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
}

// NewGeocoder creates a geocoder. cache and breaker may be nil.
func NewGeocoder(client *Client, cacheManager *cache.Manager, ttl time.Duration, breaker *resilience.CircuitBreaker) *Geocoder {
	return &Geocoder{client: client, cache: cacheManager, ttl: ttl, breaker: breaker}
}

// ReverseGeoCode returns the most specific formatted address for the
// coordinate, or an empty title when Google knows nothing there.
func (g *Geocoder) ReverseGeoCode(ctx context.Context, latitude, longitude float64) (string, error) {
	key := cache.Keys.ReverseGeocode(latitude, longitude, g.client.Language())

	title, err := cache.GetOrLoad(ctx, g.cache, key, g.ttl, func(ctx context.Context) (string, error) {
		return resilience.Call(ctx, g.breaker, func(ctx context.Context) (string, error) {
			resp, err := g.client.ReverseGeocode(ctx, latitude, longitude)
			if err != nil {
				return "", err
			}
			for _, result := range resp.Results {
				if result.FormattedAddress != "" {
					return result.FormattedAddress, nil
				}
			}
			return "", ErrNoResults
		})
	})
	if errors.Is(err, ErrNoResults) {
		return "", nil
	}
	return title, err
}
