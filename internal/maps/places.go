package maps

import (
	"context"
	"errors"
	"time"

	"github.com/eugene-kirzhanov/vkcup21/internal/geo"
	"github.com/eugene-kirzhanov/vkcup21/internal/taxi"
	"github.com/eugene-kirzhanov/vkcup21/pkg/cache"
	"github.com/eugene-kirzhanov/vkcup21/pkg/resilience"
	"github.com/uber/h3-go/v4"
)

// FixSource supplies device fixes. geo.Feed implements it.
type FixSource interface {
	Latest() *taxi.Position
	Updates(ctx context.Context) <-chan taxi.Position
}

// PlacesProvider implements taxi.NearbyPlacesProvider around the device's
// current position.
type PlacesProvider struct {
	client       *Client
	fixes        FixSource
	cache        *cache.Manager
	ttl          time.Duration
	radiusMeters int
	breaker      *resilience.CircuitBreaker
}

// NewPlacesProvider creates a provider bound to one device's fixes.
func NewPlacesProvider(client *Client, fixes FixSource, cacheManager *cache.Manager, ttl time.Duration, radiusMeters int, breaker *resilience.CircuitBreaker) *PlacesProvider {
	return &PlacesProvider{
		client:       client,
		fixes:        fixes,
		cache:        cacheManager,
		ttl:          ttl,
		radiusMeters: radiusMeters,
		breaker:      breaker,
	}
}

// FindNearbyPlaces waits for the first device fix, then lists up to limit
// places around it. Results are shared by every fix in the same H3 cell and
// are searched from the cell centre.
func (p *PlacesProvider) FindNearbyPlaces(ctx context.Context, limit int) ([]taxi.Place, error) {
	fix, err := p.waitForFix(ctx)
	if err != nil {
		return nil, err
	}

	cell := geo.LatLngToCell(fix.Latitude, fix.Longitude, geo.H3ResolutionNeighbourhood)
	key := cache.Keys.NearbyPlaces(cell.String(), p.radiusMeters, p.client.Language())

	places, err := cache.GetOrLoad(ctx, p.cache, key, p.ttl, func(ctx context.Context) ([]taxi.Place, error) {
		return p.search(ctx, cell, *fix)
	})
	if err != nil {
		return nil, err
	}

	if limit >= 0 && len(places) > limit {
		places = places[:limit]
	}
	return places, nil
}

func (p *PlacesProvider) search(ctx context.Context, cell h3.Cell, fix taxi.Position) ([]taxi.Place, error) {
	lat, lng := fix.Latitude, fix.Longitude
	if cell != 0 {
		lat, lng = geo.CellToLatLng(cell)
	}

	return resilience.Call(ctx, p.breaker, func(ctx context.Context) ([]taxi.Place, error) {
		resp, err := p.client.NearbySearch(ctx, lat, lng, p.radiusMeters)
		if errors.Is(err, ErrNoResults) {
			return []taxi.Place{}, nil
		}
		if err != nil {
			return nil, err
		}

		places := make([]taxi.Place, 0, len(resp.Results))
		for _, r := range resp.Results {
			places = append(places, taxi.Place{
				ID:        r.PlaceID,
				Name:      r.Name,
				Address:   r.Vicinity,
				Latitude:  r.Geometry.Location.Lat,
				Longitude: r.Geometry.Location.Lng,
			})
		}
		return places, nil
	})
}

func (p *PlacesProvider) waitForFix(ctx context.Context) (*taxi.Position, error) {
	if fix := p.fixes.Latest(); fix != nil {
		return fix, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	select {
	case fix, ok := <-p.fixes.Updates(ctx):
		if !ok {
			return nil, ctx.Err()
		}
		return &fix, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
