package maps

import (
	"context"
	"errors"
	"fmt"

	"github.com/eugene-kirzhanov/vkcup21/internal/taxi"
	"github.com/eugene-kirzhanov/vkcup21/pkg/geo"
	"github.com/eugene-kirzhanov/vkcup21/pkg/resilience"
)

// MinRouteDistanceMeters is the distance under which no route is requested.
const MinRouteDistanceMeters = 100.0

// RouteBuilder implements taxi.RouteBuilder with the Directions API.
type RouteBuilder struct {
	client   *Client
	breaker  *resilience.CircuitBreaker
	distance taxi.DistanceFunc
}

// NewRouteBuilder creates a route builder. breaker may be nil.
func NewRouteBuilder(client *Client, breaker *resilience.CircuitBreaker) *RouteBuilder {
	return &RouteBuilder{client: client, breaker: breaker, distance: geo.DistanceMeters}
}

// BuildRoute returns the first of the candidate routes Google proposes.
func (b *RouteBuilder) BuildRoute(ctx context.Context, source, destination *taxi.Position) (*taxi.Route, error) {
	if source == nil || destination == nil {
		return nil, nil
	}
	if b.distance(source.Latitude, source.Longitude, destination.Latitude, destination.Longitude) < MinRouteDistanceMeters {
		return nil, nil
	}

	return resilience.Call(ctx, b.breaker, func(ctx context.Context) (*taxi.Route, error) {
		resp, err := b.client.Directions(ctx, *source, *destination, true)
		if errors.Is(err, ErrNoResults) {
			return nil, taxi.ErrEmptyResult
		}
		if err != nil {
			return nil, err
		}
		if len(resp.Routes) == 0 {
			return nil, taxi.ErrEmptyResult
		}
		return toRoute(resp.Routes[0], *destination)
	})
}

func toRoute(r googleRoute, destination taxi.Position) (*taxi.Route, error) {
	geometry, err := DecodePolyline(r.OverviewPolyline.Points)
	if err != nil {
		return nil, fmt.Errorf("decode route geometry: %w", err)
	}

	direction := taxi.Direction{Geometry: geometry, Summary: r.Summary}
	for _, leg := range r.Legs {
		direction.DistanceMeters += leg.Distance.Value
		direction.DurationSeconds += leg.Duration.Value
	}

	return &taxi.Route{
		Latitude:  destination.Latitude,
		Longitude: destination.Longitude,
		Direction: direction,
	}, nil
}
