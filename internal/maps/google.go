// Package maps implements routing, reverse geocoding and nearby-place search
// on top of the Google Maps Web Services.
package maps

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/eugene-kirzhanov/vkcup21/internal/taxi"
	"github.com/eugene-kirzhanov/vkcup21/pkg/config"
	"github.com/eugene-kirzhanov/vkcup21/pkg/httpclient"
	"github.com/eugene-kirzhanov/vkcup21/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
)

const (
	googleMapsBaseURL        = "https://maps.googleapis.com/maps/api"
	googleDirectionsEndpoint = "/directions/json"
	googleGeocodingEndpoint  = "/geocode/json"
	googlePlacesEndpoint     = "/place/nearbysearch/json"

	tracerName = "maps"
)

// ErrNoResults is returned when Google answers ZERO_RESULTS.
var ErrNoResults = errors.New("maps: no results")

// APIError is a non-OK status in an otherwise successful response.
type APIError struct {
	Endpoint string
	Status   string
	Message  string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("google maps %s: %s", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("google maps %s: %s - %s", e.Endpoint, e.Status, e.Message)
}

// Client talks to the Google Maps Web Services.
type Client struct {
	http     *httpclient.Client
	apiKey   string
	language string
}

// NewClient builds a client from config. Extra options go to the HTTP client.
func NewClient(cfg config.MapsConfig, opts ...httpclient.Option) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = googleMapsBaseURL
	}

	opts = append([]httpclient.Option{httpclient.WithName("google_maps")}, opts...)
	return &Client{
		http:     httpclient.NewClient(baseURL, cfg.Timeout(), opts...),
		apiKey:   cfg.APIKey,
		language: cfg.Language,
	}
}

// Language is the response language requested from Google.
func (c *Client) Language() string {
	return c.language
}

// Directions requests driving directions between two points.
func (c *Client) Directions(ctx context.Context, origin, destination taxi.Position, alternatives bool) (*googleDirectionsResponse, error) {
	params := c.params()
	params.Set("origin", formatCoordinate(origin.Latitude, origin.Longitude))
	params.Set("destination", formatCoordinate(destination.Latitude, destination.Longitude))
	params.Set("mode", "driving")
	params.Set("units", "metric")
	if alternatives {
		params.Set("alternatives", "true")
	}

	var resp googleDirectionsResponse
	err := c.get(ctx, "directions", googleDirectionsEndpoint, params, &resp, tracing.LocationAttributes(destination.Latitude, destination.Longitude)...)
	if err != nil {
		return nil, err
	}
	if err := statusError("directions", resp.Status, resp.ErrorMessage); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReverseGeocode resolves a coordinate to addresses, most specific first.
func (c *Client) ReverseGeocode(ctx context.Context, latitude, longitude float64) (*googleGeocodingResponse, error) {
	params := c.params()
	params.Set("latlng", formatCoordinate(latitude, longitude))

	var resp googleGeocodingResponse
	if err := c.get(ctx, "geocode", googleGeocodingEndpoint, params, &resp, tracing.LocationAttributes(latitude, longitude)...); err != nil {
		return nil, err
	}
	if err := statusError("geocode", resp.Status, resp.ErrorMessage); err != nil {
		return nil, err
	}
	return &resp, nil
}

// NearbySearch lists places within radiusMeters of a coordinate.
func (c *Client) NearbySearch(ctx context.Context, latitude, longitude float64, radiusMeters int) (*googlePlacesResponse, error) {
	params := c.params()
	params.Set("location", formatCoordinate(latitude, longitude))
	params.Set("radius", strconv.Itoa(radiusMeters))

	var resp googlePlacesResponse
	if err := c.get(ctx, "nearbysearch", googlePlacesEndpoint, params, &resp, tracing.LocationAttributes(latitude, longitude)...); err != nil {
		return nil, err
	}
	if err := statusError("nearbysearch", resp.Status, resp.ErrorMessage); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) params() url.Values {
	params := url.Values{}
	params.Set("key", c.apiKey)
	if c.language != "" {
		params.Set("language", c.language)
	}
	return params
}

func (c *Client) get(ctx context.Context, operation, endpoint string, params url.Values, out interface{}, attrs ...attribute.KeyValue) error {
	return tracing.TraceExternalAPI(ctx, tracerName, "google_maps", operation, attrs, func(ctx context.Context) error {
		if err := c.http.GetJSON(ctx, endpoint, params, out); err != nil {
			return fmt.Errorf("google maps %s request failed: %w", operation, err)
		}
		return nil
	})
}

func statusError(endpoint, status, message string) error {
	switch status {
	case "OK":
		return nil
	case "ZERO_RESULTS":
		return ErrNoResults
	default:
		return &APIError{Endpoint: endpoint, Status: status, Message: message}
	}
}

func formatCoordinate(latitude, longitude float64) string {
	return strconv.FormatFloat(latitude, 'f', 6, 64) + "," + strconv.FormatFloat(longitude, 'f', 6, 64)
}

type googleDirectionsResponse struct {
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Routes       []googleRoute `json:"routes"`
}

type googleRoute struct {
	Summary          string         `json:"summary"`
	Legs             []googleLeg    `json:"legs"`
	OverviewPolyline googlePolyline `json:"overview_polyline"`
}

type googleLeg struct {
	Distance googleValue `json:"distance"`
	Duration googleValue `json:"duration"`
}

type googlePolyline struct {
	Points string `json:"points"`
}

type googleLatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type googleValue struct {
	Text  string `json:"text"`
	Value int    `json:"value"`
}

type googleGeocodingResponse struct {
	Status       string                  `json:"status"`
	ErrorMessage string                  `json:"error_message,omitempty"`
	Results      []googleGeocodingResult `json:"results"`
}

type googleGeocodingResult struct {
	FormattedAddress string   `json:"formatted_address"`
	PlaceID          string   `json:"place_id"`
	Types            []string `json:"types"`
}

type googleGeometry struct {
	Location googleLatLng `json:"location"`
}

type googlePlacesResponse struct {
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Results      []googlePlace `json:"results"`
}

type googlePlace struct {
	PlaceID  string         `json:"place_id"`
	Name     string         `json:"name"`
	Vicinity string         `json:"vicinity"`
	Geometry googleGeometry `json:"geometry"`
}
