package geo

import (
	"github.com/uber/h3-go/v4"
)

// H3 resolution levels.
// See: https://h3geo.org/docs/core-library/restable
const (
	// H3ResolutionNeighbourhood groups fixes that share nearby places (~460m edge, ~0.74 km²).
	H3ResolutionNeighbourhood = 8

	// H3ResolutionCity is used for city-level aggregation (~3.2 km edge, ~36.13 km²).
	H3ResolutionCity = 6
)

// LatLngToCell converts latitude/longitude to an H3 cell index at the given resolution.
// Returns 0 on invalid input.
func LatLngToCell(lat, lng float64, resolution int) h3.Cell {
	cell, err := h3.LatLngToCell(h3.NewLatLng(lat, lng), resolution)
	if err != nil {
		return 0
	}
	return cell
}

// CellToLatLng returns the center coordinates of an H3 cell.
func CellToLatLng(cell h3.Cell) (lat, lng float64) {
	latLng, err := cell.LatLng()
	if err != nil {
		return 0, 0
	}
	return latLng.Lat, latLng.Lng
}

// CellFor returns the neighbourhood cell of a position as a hex string, used
// as a cache key for data that does not change within a few hundred meters.
func CellFor(lat, lng float64) string {
	return LatLngToCell(lat, lng, H3ResolutionNeighbourhood).String()
}
