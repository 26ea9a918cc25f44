package ordering

import (
	"fmt"
	"time"

	"github.com/eugene-kirzhanov/vkcup21/internal/taxi"
	"github.com/paulmach/orb/geojson"
)

// CreateSessionRequest opens a session.
type CreateSessionRequest struct {
	Locale     string `json:"locale" validate:"omitempty,bcp47_language_tag"`
	MapVisible *bool  `json:"map_visible"`
}

// LocationRequest is a device fix.
type LocationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
}

// Position returns the fix. It must only be called after validation.
func (r LocationRequest) Position() taxi.Position {
	return taxi.Position{Latitude: *r.Latitude, Longitude: *r.Longitude}
}

// GeocodeRequest asks to resolve a coordinate into one of the endpoints.
type GeocodeRequest struct {
	Latitude    *float64 `json:"latitude" validate:"required,latitude"`
	Longitude   *float64 `json:"longitude" validate:"required,longitude"`
	Source      string   `json:"source" validate:"required,address_source"`
	AddressType string   `json:"address_type" validate:"required,address_type"`
}

// PlaceBody is a place picked by the user.
type PlaceBody struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Address   string   `json:"address" validate:"max=512"`
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
}

// PlaceRequest asks to resolve a picked place into one of the endpoints.
type PlaceRequest struct {
	Place       PlaceBody `json:"place" validate:"required"`
	AddressType string    `json:"address_type" validate:"required,address_type"`
}

func (b PlaceBody) toPlace() taxi.Place {
	return taxi.Place{
		ID:        b.ID,
		Name:      b.Name,
		Address:   b.Address,
		Latitude:  *b.Latitude,
		Longitude: *b.Longitude,
	}
}

// MapVisibilityRequest toggles the display context.
type MapVisibilityRequest struct {
	Visible *bool `json:"visible" validate:"required"`
}

// AcceptedResponse reports whether a submission was queued.
type AcceptedResponse struct {
	Accepted bool `json:"accepted"`
}

// PermissionResponse is the location permission latch.
type PermissionResponse struct {
	ShouldRequest bool `json:"should_request"`
}

// SlotResponse is one endpoint.
type SlotResponse struct {
	Position *taxi.Position `json:"position,omitempty"`
	Address  *taxi.Address  `json:"address,omitempty"`
}

// InfoWindowResponse is the trip info with a link to its image.
type InfoWindowResponse struct {
	taxi.InfoWindowData
	ImageURL string `json:"image_url,omitempty"`
}

// SessionResponse is a snapshot of a session.
type SessionResponse struct {
	ID                      string              `json:"id"`
	Locale                  string              `json:"locale"`
	CreatedAt               time.Time           `json:"created_at"`
	MapVisible              bool                `json:"map_visible"`
	ShouldRequestPermission bool                `json:"should_request_permission"`
	Source                  SlotResponse        `json:"source"`
	Destination             SlotResponse        `json:"destination"`
	SourceAddress           *taxi.Address       `json:"source_address,omitempty"`
	DestinationAddress      *taxi.Address       `json:"destination_address,omitempty"`
	Route                   *geojson.Feature    `json:"route,omitempty"`
	InfoWindow              *InfoWindowResponse `json:"info_window,omitempty"`
	NearbyPlaces            []taxi.Place        `json:"nearby_places"`
	MyLocation              *taxi.Position      `json:"my_location,omitempty"`
}

func newSessionResponse(s *Session) SessionResponse {
	core := s.Core
	source := core.SourceSlot()
	destination := core.DestinationSlot()

	places := core.NearbyPlaces().Value()
	if places == nil {
		places = []taxi.Place{}
	}

	return SessionResponse{
		ID:                      s.ID,
		Locale:                  s.Locale,
		CreatedAt:               s.CreatedAt,
		MapVisible:              core.IsMapVisible(),
		ShouldRequestPermission: core.ShouldRequestLocationPermission(),
		Source:                  SlotResponse{Position: source.Position, Address: source.Address},
		Destination:             SlotResponse{Position: destination.Position, Address: destination.Address},
		SourceAddress:           core.SourceAddress().Value(),
		DestinationAddress:      core.DestinationAddress().Value(),
		Route:                   routeFeature(core.Route().Value()),
		InfoWindow:              infoWindowResponse(s.ID, core.InfoWindow().Value()),
		NearbyPlaces:            places,
		MyLocation:              core.MyLocation().Value(),
	}
}

// routeFeature renders the route geometry as a GeoJSON feature.
func routeFeature(route *taxi.Route) *geojson.Feature {
	if route == nil {
		return nil
	}

	feature := geojson.NewFeature(route.Direction.Geometry)
	feature.Properties["latitude"] = route.Latitude
	feature.Properties["longitude"] = route.Longitude
	feature.Properties["distance_meters"] = route.Direction.DistanceMeters
	feature.Properties["duration_seconds"] = route.Direction.DurationSeconds
	if route.Direction.Summary != "" {
		feature.Properties["summary"] = route.Direction.Summary
	}
	return feature
}

func infoWindowResponse(sessionID string, info *taxi.InfoWindow) *InfoWindowResponse {
	if info == nil {
		return nil
	}

	resp := &InfoWindowResponse{InfoWindowData: info.Data}
	if info.Image != nil {
		resp.ImageURL = fmt.Sprintf("%s/%s/info-window.png", basePath, sessionID)
	}
	return resp
}
