package taxi

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"go.uber.org/zap"
)

// mirrorMyLocation copies device fixes into MyLocation and, when tracking is
// enabled, resolves the source address from them.
func (s *Session) mirrorMyLocation(ctx context.Context) {
	updates := s.deps.Location.Updates(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case pos, ok := <-updates:
			if !ok {
				return
			}
			s.myLocation.Set(&pos)
			s.track(pos)
		}
	}
}

func (s *Session) track(pos Position) {
	if s.opts.trackMinDistance <= 0 {
		return
	}
	if last := s.lastTracked; last != nil &&
		s.distance(last.Latitude, last.Longitude, pos.Latitude, pos.Longitude) < s.opts.trackMinDistance {
		return
	}

	accepted, err := s.SubmitLocationGeocode(pos.Latitude, pos.Longitude, SourceMyLocation, AddressTypeSource)
	if err != nil || !accepted {
		return
	}
	s.lastTracked = &pos
}

// loadNearbyPlaces fetches nearby places once. They are sorted by distance
// from the device location known when the fetch completes, or left in
// provider order when there is no fix yet.
func (s *Session) loadNearbyPlaces(ctx context.Context) {
	places, err := s.deps.Places.FindNearbyPlaces(ctx, s.opts.nearbyLimit)
	if err != nil {
		if !errors.Is(err, context.Canceled) && ctx.Err() == nil {
			s.log.Error("failed to fetch nearby places", zap.Error(err))
		}
		return
	}

	if here := s.latestFix(); here != nil {
		places = s.sortByDistance(places, *here)
	}
	s.nearbyPlaces.Set(places)
}

// latestFix asks the provider first since MyLocation trails it.
func (s *Session) latestFix() *Position {
	if s.deps.Location != nil {
		if pos := s.deps.Location.Latest(); pos != nil {
			return pos
		}
	}
	return s.myLocation.Value()
}

func (s *Session) sortByDistance(places []Place, from Position) []Place {
	type ranked struct {
		place    Place
		distance float64
	}

	rankedPlaces := make([]ranked, len(places))
	for i, p := range places {
		rankedPlaces[i] = ranked{
			place:    p,
			distance: s.distance(from.Latitude, from.Longitude, p.Latitude, p.Longitude),
		}
	}
	slices.SortStableFunc(rankedPlaces, func(a, b ranked) int {
		return cmp.Compare(a.distance, b.distance)
	})

	sorted := make([]Place, len(rankedPlaces))
	for i, r := range rankedPlaces {
		sorted[i] = r.place
	}
	return sorted
}
