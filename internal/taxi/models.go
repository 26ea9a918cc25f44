package taxi

import (
	"fmt"
	"image"
	"strconv"

	"github.com/paulmach/orb"
)

// Position is a raw coordinate in degrees.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// AddressType identifies one of the two trip endpoints.
type AddressType int

const (
	AddressTypeSource AddressType = iota
	AddressTypeDestination
)

func (t AddressType) String() string {
	switch t {
	case AddressTypeSource:
		return "source"
	case AddressTypeDestination:
		return "destination"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t AddressType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *AddressType) UnmarshalText(text []byte) error {
	parsed, err := ParseAddressType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseAddressType parses "source" or "destination".
func ParseAddressType(s string) (AddressType, error) {
	switch s {
	case "source":
		return AddressTypeSource, nil
	case "destination":
		return AddressTypeDestination, nil
	}
	return 0, fmt.Errorf("unknown address type %q", s)
}

// AddressSource records why an address was set. It decides whether a later
// resolution may overwrite it.
type AddressSource int

const (
	SourceUserSpecified AddressSource = iota
	SourceMyLocation
	SourceNearbyPlace
)

func (s AddressSource) String() string {
	switch s {
	case SourceUserSpecified:
		return "user_specified"
	case SourceMyLocation:
		return "my_location"
	case SourceNearbyPlace:
		return "nearby_place"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s AddressSource) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *AddressSource) UnmarshalText(text []byte) error {
	parsed, err := ParseAddressSource(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseAddressSource parses the provenance names produced by String.
func ParseAddressSource(s string) (AddressSource, error) {
	switch s {
	case "user_specified":
		return SourceUserSpecified, nil
	case "my_location":
		return SourceMyLocation, nil
	case "nearby_place":
		return SourceNearbyPlace, nil
	}
	return 0, fmt.Errorf("unknown address source %q", s)
}

// Address is a resolved endpoint.
type Address struct {
	Latitude  float64       `json:"latitude"`
	Longitude float64       `json:"longitude"`
	Type      AddressType   `json:"type"`
	Source    AddressSource `json:"source"`
	Title     string        `json:"title"`
}

// Position returns the address coordinates.
func (a Address) Position() Position {
	return Position{Latitude: a.Latitude, Longitude: a.Longitude}
}

// Place is a point of interest returned by a NearbyPlacesProvider.
type Place struct {
	ID        string  `json:"id,omitempty"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// GeoCodeQuery is a pending resolution request: LocationQuery or PlaceQuery.
type GeoCodeQuery interface {
	Slot() AddressType
	Provenance() AddressSource
}

// LocationQuery asks to resolve a raw coordinate.
type LocationQuery struct {
	Source      AddressSource
	Latitude    float64
	Longitude   float64
	AddressType AddressType
}

func (q LocationQuery) Slot() AddressType         { return q.AddressType }
func (q LocationQuery) Provenance() AddressSource { return q.Source }

// PlaceQuery asks to resolve a place picked by the user.
type PlaceQuery struct {
	Source      AddressSource
	Place       Place
	AddressType AddressType
}

func (q PlaceQuery) Slot() AddressType         { return q.AddressType }
func (q PlaceQuery) Provenance() AddressSource { return q.Source }

// GeoCodeResult pairs a query with the title the geocoder produced.
type GeoCodeResult interface {
	ToAddress() Address
}

// LocationResult answers a LocationQuery. Title is nil when the geocoder
// failed or found nothing.
type LocationResult struct {
	Query LocationQuery
	Title *string
}

// ToAddress builds the address, falling back to "lat, lon" as the title.
func (r LocationResult) ToAddress() Address {
	title := coordinateTitle(r.Query.Latitude, r.Query.Longitude)
	if r.Title != nil {
		title = *r.Title
	}
	return Address{
		Latitude:  r.Query.Latitude,
		Longitude: r.Query.Longitude,
		Type:      r.Query.AddressType,
		Source:    r.Query.Source,
		Title:     title,
	}
}

// PlaceResult answers a PlaceQuery.
type PlaceResult struct {
	Query PlaceQuery
	Title *string
}

// ToAddress builds the address. Without a geocoded title the place's own
// address is used, then "lat, lon".
func (r PlaceResult) ToAddress() Address {
	place := r.Query.Place
	title := place.Address
	if r.Title != nil {
		title = *r.Title
	}
	if title == "" {
		title = coordinateTitle(place.Latitude, place.Longitude)
	}
	return Address{
		Latitude:  place.Latitude,
		Longitude: place.Longitude,
		Type:      r.Query.AddressType,
		Source:    r.Query.Source,
		Title:     title,
	}
}

func coordinateTitle(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + ", " + strconv.FormatFloat(lon, 'f', -1, 64)
}

// Direction is the routing service payload for the chosen path.
type Direction struct {
	Geometry        orb.LineString `json:"-"`
	DistanceMeters  int            `json:"distance_meters"`
	DurationSeconds int            `json:"duration_seconds"`
	Summary         string         `json:"summary,omitempty"`
}

// Route is the top candidate path between the two endpoints. Latitude and
// Longitude echo the destination.
type Route struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Direction Direction `json:"direction"`
}

// TripVariant is one way to order the trip.
type TripVariant struct {
	Tariff   string `json:"tariff"`
	Duration int    `json:"duration_minutes"`
	Cost     int    `json:"cost"`
}

// RouteDetails holds the priced variants for a route.
type RouteDetails struct {
	Latitude     float64       `json:"latitude"`
	Longitude    float64       `json:"longitude"`
	BestVariant  TripVariant   `json:"best_variant"`
	Alternatives []TripVariant `json:"alternatives,omitempty"`
}

// InfoWindowData is the text shown next to the destination marker.
type InfoWindowData struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Text      string  `json:"text"`
}

// InfoWindow pairs the info window data with its rendered image. Source,
// Destination, Route and Details are the inputs it was derived from.
type InfoWindow struct {
	Data  InfoWindowData
	Image image.Image

	Source      Position
	Destination Position
	Route       Route
	Details     RouteDetails
}
