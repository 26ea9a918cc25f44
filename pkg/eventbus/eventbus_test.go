package eventbus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	data := TripEstimatedData{
		SessionID:      uuid.NewString(),
		Source:         &EventPoint{Latitude: 55.75, Longitude: 37.61, Title: "Red Square", Source: "user_specified"},
		Destination:    &EventPoint{Latitude: 55.76, Longitude: 37.64},
		DistanceMeters: 2300,
		Best:           TripVariantData{Tariff: "economy", DurationMinutes: 9, Cost: 199},
		Currency:       "₽",
		EstimatedAt:    time.Now(),
	}

	event, err := NewEvent(SubjectTripEstimated, "taxi", data)
	require.NoError(t, err)

	_, err = uuid.Parse(event.ID)
	assert.NoError(t, err)
	assert.Equal(t, SubjectTripEstimated, event.Type)
	assert.Equal(t, time.UTC, event.Timestamp.Location())

	var decoded TripEstimatedData
	require.NoError(t, json.Unmarshal(event.Data, &decoded))
	assert.Equal(t, data.SessionID, decoded.SessionID)
	assert.Equal(t, "Red Square", decoded.Source.Title)
	assert.Equal(t, 199, decoded.Best.Cost)
	assert.Empty(t, decoded.Destination.Title)
}

func TestNewEventRejectsUnmarshalableData(t *testing.T) {
	_, err := NewEvent("bad", "taxi", make(chan int))
	assert.Error(t, err)
}

func TestNewEventIDsAreUnique(t *testing.T) {
	a, err := NewEvent(SubjectSessionOpened, "taxi", SessionLifecycleData{})
	require.NoError(t, err)
	b, err := NewEvent(SubjectSessionOpened, "taxi", SessionLifecycleData{})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "TAXI", cfg.StreamName)
	assert.Equal(t, "taxi", cfg.Name)
}

func TestBusConnectedWithoutConnection(t *testing.T) {
	var nilBus *Bus
	assert.False(t, nilBus.Connected())
	assert.False(t, (&Bus{}).Connected())
}
