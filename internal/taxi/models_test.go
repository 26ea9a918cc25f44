package taxi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestLocationResult_ToAddress(t *testing.T) {
	query := LocationQuery{Source: SourceMyLocation, Latitude: 53.9, Longitude: 27.5667, AddressType: AddressTypeSource}

	tests := []struct {
		name  string
		title *string
		want  string
	}{
		{name: "resolved title", title: strPtr("Nezavisimosti Ave 1"), want: "Nezavisimosti Ave 1"},
		{name: "falls back to coordinates", title: nil, want: "53.9, 27.5667"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LocationResult{Query: query, Title: tt.title}.ToAddress()
			assert.Equal(t, Address{
				Latitude:  53.9,
				Longitude: 27.5667,
				Type:      AddressTypeSource,
				Source:    SourceMyLocation,
				Title:     tt.want,
			}, got)
		})
	}
}

func TestPlaceResult_ToAddress(t *testing.T) {
	place := Place{ID: "p1", Name: "Cafe", Address: "Lenina 5", Latitude: 1.5, Longitude: -2}

	tests := []struct {
		name  string
		place Place
		title *string
		want  string
	}{
		{name: "resolved title", place: place, title: strPtr("Lenina St 5"), want: "Lenina St 5"},
		{name: "falls back to place address", place: place, want: "Lenina 5"},
		{name: "falls back to coordinates", place: Place{ID: "p2", Latitude: 1.5, Longitude: -2}, want: "1.5, -2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query := PlaceQuery{Source: SourceUserSpecified, Place: tt.place, AddressType: AddressTypeDestination}
			got := PlaceResult{Query: query, Title: tt.title}.ToAddress()
			assert.Equal(t, tt.want, got.Title)
			assert.Equal(t, AddressTypeDestination, got.Type)
			assert.Equal(t, SourceUserSpecified, got.Source)
			assert.Equal(t, Position{Latitude: 1.5, Longitude: -2}, got.Position())
		})
	}
}

func TestQueries_SlotAndProvenance(t *testing.T) {
	var q GeoCodeQuery = LocationQuery{Source: SourceMyLocation, AddressType: AddressTypeDestination}
	assert.Equal(t, AddressTypeDestination, q.Slot())
	assert.Equal(t, SourceMyLocation, q.Provenance())

	q = PlaceQuery{Source: SourceUserSpecified, AddressType: AddressTypeSource}
	assert.Equal(t, AddressTypeSource, q.Slot())
	assert.Equal(t, SourceUserSpecified, q.Provenance())
}

func TestParseAddressType(t *testing.T) {
	got, err := ParseAddressType("destination")
	require.NoError(t, err)
	assert.Equal(t, AddressTypeDestination, got)

	_, err = ParseAddressType("pickup")
	assert.Error(t, err)
}

func TestParseAddressSource(t *testing.T) {
	got, err := ParseAddressSource("nearby_place")
	require.NoError(t, err)
	assert.Equal(t, SourceNearbyPlace, got)

	_, err = ParseAddressSource("gps")
	assert.Error(t, err)
}

func TestAddress_JSON(t *testing.T) {
	data, err := json.Marshal(Address{Latitude: 1, Longitude: 2, Type: AddressTypeSource, Source: SourceUserSpecified, Title: "Home"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"latitude":1,"longitude":2,"type":"source","source":"user_specified","title":"Home"}`, string(data))

	var decoded Address
	require.NoError(t, json.Unmarshal([]byte(`{"type":"destination","source":"my_location"}`), &decoded))
	assert.Equal(t, AddressTypeDestination, decoded.Type)
	assert.Equal(t, SourceMyLocation, decoded.Source)

	assert.Error(t, json.Unmarshal([]byte(`{"type":"sideways"}`), &decoded))
}

func TestFormatInfoWindow(t *testing.T) {
	details := RouteDetails{
		Latitude:    55.75,
		Longitude:   37.61,
		BestVariant: TripVariant{Tariff: "economy", Duration: 7, Cost: 250},
	}

	got := FormatInfoWindow(details, stubResources{})

	assert.Equal(t, InfoWindowData{
		Latitude:  55.75,
		Longitude: 37.61,
		Text:      "trip_duration:7\ntrip_cost:250",
	}, got)
}
