package geo

import (
	"math"

	"github.com/golang/geo/s2"
)

const (
	earthRadiusMeters = 6371000.0
	averageSpeedKmh   = 40.0 // city traffic average
)

// DistanceMeters returns the great-circle distance in meters between two
// coordinates given in degrees.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * earthRadiusMeters
}

// DistanceKm is DistanceMeters in kilometres, rounded to two decimal places.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	return math.Round(DistanceMeters(lat1, lon1, lat2, lon2)/10) / 100
}

// EstimateDuration returns the estimated travel time in minutes for a given
// distance in kilometres, assuming an average city speed of 40 km/h.
func EstimateDuration(distanceKm float64) int {
	return int(math.Round((distanceKm / averageSpeedKmh) * 60))
}
