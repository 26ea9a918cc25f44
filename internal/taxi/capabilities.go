package taxi

import (
	"context"
	"errors"
	"image"
)

// ErrEmptyResult is returned by a RouteBuilder when the routing service
// answered without any candidate path.
var ErrEmptyResult = errors.New("routing service returned no routes")

// LocationProvider streams device fixes. The channel must be closed once ctx
// is done. Consumers only care about the latest fix, which Latest returns
// (nil before the first one).
type LocationProvider interface {
	Updates(ctx context.Context) <-chan Position
	Latest() *Position
}

// GeoCoder resolves a coordinate to a human-readable title. An empty title
// with a nil error means nothing was found.
type GeoCoder interface {
	ReverseGeoCode(ctx context.Context, latitude, longitude float64) (string, error)
}

// NearbyPlacesProvider fetches up to limit places around the device.
type NearbyPlacesProvider interface {
	FindNearbyPlaces(ctx context.Context, limit int) ([]Place, error)
}

// RouteBuilder produces a driving route between two optional positions. It
// returns nil without contacting the routing service when either position is
// nil or the points are closer than the route floor. Cancelling ctx cancels
// the outbound request.
type RouteBuilder interface {
	BuildRoute(ctx context.Context, source, destination *Position) (*Route, error)
}

// OrderManager prices a route.
type OrderManager interface {
	CalculateRouteDetails(route Route) RouteDetails
}

// ResourceProvider formats localized strings.
type ResourceProvider interface {
	GetString(key string, args ...any) string
}

// InfoWindowRenderer draws info window text into an image.
type InfoWindowRenderer interface {
	Render(text string) image.Image
}

// DistanceFunc returns the distance between two coordinates in meters.
type DistanceFunc func(lat1, lon1, lat2, lon2 float64) float64

// Stream is a read-only view of an observable latest value.
type Stream[T any] interface {
	Value() T
	Subscribe(ctx context.Context) <-chan T
}
