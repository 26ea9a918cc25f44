// Package pricing turns routes into priced trip variants.
package pricing

import (
	"cmp"
	"math"
	"slices"

	"github.com/eugene-kirzhanov/vkcup21/internal/taxi"
	"github.com/eugene-kirzhanov/vkcup21/pkg/geo"
)

// Calculator prices a route against a tariff table. It implements
// taxi.OrderManager.
type Calculator struct {
	tariffs []Tariff
}

// NewCalculator creates a calculator. An empty table falls back to DefaultTariffs.
func NewCalculator(tariffs []Tariff) *Calculator {
	if len(tariffs) == 0 {
		tariffs = DefaultTariffs()
	}
	return &Calculator{tariffs: slices.Clone(tariffs)}
}

// CalculateRouteDetails prices the route in every tariff. The cheapest
// variant is the best one, ties going to the faster trip.
func (c *Calculator) CalculateRouteDetails(route taxi.Route) taxi.RouteDetails {
	km := float64(route.Direction.DistanceMeters) / 1000
	minutes := routeMinutes(route.Direction, km)

	variants := make([]taxi.TripVariant, 0, len(c.tariffs))
	for _, t := range c.tariffs {
		variants = append(variants, variant(t, km, minutes))
	}
	slices.SortStableFunc(variants, func(a, b taxi.TripVariant) int {
		if n := cmp.Compare(a.Cost, b.Cost); n != 0 {
			return n
		}
		return cmp.Compare(a.Duration, b.Duration)
	})

	return taxi.RouteDetails{
		Latitude:     route.Latitude,
		Longitude:    route.Longitude,
		BestVariant:  variants[0],
		Alternatives: variants[1:],
	}
}

func variant(t Tariff, km, minutes float64) taxi.TripVariant {
	multiplier := t.EtaMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}

	cost := t.BaseFare + km*t.PerKmRate + minutes*t.PerMinuteRate
	if cost < t.MinimumFare {
		cost = t.MinimumFare
	}

	return taxi.TripVariant{
		Tariff:   t.Name,
		Duration: int(math.Ceil(minutes * multiplier)),
		Cost:     int(math.Round(cost)),
	}
}

// routeMinutes uses the routed duration, or estimates it from the distance
// when the routing service did not report one.
func routeMinutes(d taxi.Direction, km float64) float64 {
	if d.DurationSeconds > 0 {
		return float64(d.DurationSeconds) / 60
	}
	return float64(geo.EstimateDuration(km))
}
