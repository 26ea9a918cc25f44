package maps

import (
	"errors"

	"github.com/paulmach/orb"
)

const polylinePrecision = 1e5

// ErrInvalidPolyline is returned for truncated or out-of-alphabet input.
var ErrInvalidPolyline = errors.New("maps: invalid encoded polyline")

// DecodePolyline decodes a Google encoded polyline. Points are [lng, lat].
func DecodePolyline(encoded string) (orb.LineString, error) {
	var (
		line     orb.LineString
		lat, lng int
		err      error
	)
	for i := 0; i < len(encoded); {
		var dlat, dlng int
		if dlat, i, err = decodeValue(encoded, i); err != nil {
			return nil, err
		}
		if dlng, i, err = decodeValue(encoded, i); err != nil {
			return nil, err
		}
		lat += dlat
		lng += dlng
		line = append(line, orb.Point{float64(lng) / polylinePrecision, float64(lat) / polylinePrecision})
	}
	return line, nil
}

func decodeValue(encoded string, i int) (int, int, error) {
	var result, shift int
	for {
		if i >= len(encoded) {
			return 0, i, ErrInvalidPolyline
		}
		b := int(encoded[i]) - 63
		i++
		if b < 0 || b > 63 {
			return 0, i, ErrInvalidPolyline
		}
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}
	if result&1 != 0 {
		return ^(result >> 1), i, nil
	}
	return result >> 1, i, nil
}
