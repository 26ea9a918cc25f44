package taxi

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// runGeocodeWorker resolves queued queries one at a time in submission order,
// so the last query submitted for a slot always determines its final state.
func (s *Session) runGeocodeWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case q := <-s.queries:
			result := s.geocode(ctx, q)
			if ctx.Err() != nil {
				return
			}
			s.apply(result.ToAddress())
		}
	}
}

func (s *Session) geocode(ctx context.Context, q GeoCodeQuery) GeoCodeResult {
	switch q := q.(type) {
	case LocationQuery:
		return LocationResult{
			Query: q,
			Title: s.reverseGeoCode(ctx, "location", q.Latitude, q.Longitude),
		}
	case PlaceQuery:
		return PlaceResult{
			Query: q,
			Title: s.reverseGeoCode(ctx, "place", q.Place.Latitude, q.Place.Longitude),
		}
	default:
		panic("taxi: unknown geocode query type")
	}
}

// reverseGeoCode returns nil when the title could not be resolved. Failures
// are logged, cancellation is not.
func (s *Session) reverseGeoCode(ctx context.Context, kind string, latitude, longitude float64) *string {
	title, err := s.deps.GeoCoder.ReverseGeoCode(ctx, latitude, longitude)
	switch {
	case err != nil && (errors.Is(err, context.Canceled) || ctx.Err() != nil):
		geocodeQueriesTotal.WithLabelValues(kind, "cancelled").Inc()
		return nil
	case err != nil:
		geocodeQueriesTotal.WithLabelValues(kind, "error").Inc()
		s.log.Error("reverse geocoding failed",
			zap.String("kind", kind),
			zap.Float64("latitude", latitude),
			zap.Float64("longitude", longitude),
			zap.Error(err),
		)
		return nil
	case title == "":
		geocodeQueriesTotal.WithLabelValues(kind, "empty").Inc()
		return nil
	}

	geocodeQueriesTotal.WithLabelValues(kind, "ok").Inc()
	return &title
}

// apply stores a resolved address. The source slot always takes both the
// position and the address. The destination slot always takes the position
// but keeps its displayed address when the result came from my location.
func (s *Session) apply(address Address) {
	position := address.Position()

	s.mu.Lock()
	defer s.mu.Unlock()

	switch address.Type {
	case AddressTypeSource:
		s.source = slot{position: &position, address: &address}
	case AddressTypeDestination:
		s.destination.position = &position
		if address.Source != SourceMyLocation {
			s.destination.address = &address
		}
	}

	s.rawSource.Set(s.source.address)
	s.rawDestination.Set(s.destination.address)
	s.endpoints.Set(endpoints{source: s.source.position, destination: s.destination.position})
}
