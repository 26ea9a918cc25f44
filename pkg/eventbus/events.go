package eventbus

import "time"

const (
	SubjectSessionOpened = "taxi.session.opened"
	SubjectSessionClosed = "taxi.session.closed"
	SubjectTripEstimated = "taxi.trip.estimated"
)

// EventPoint is an address as carried on the bus.
type EventPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Title     string  `json:"title,omitempty"`
	Source    string  `json:"source,omitempty"`
}

// TripVariantData is one tariff option.
type TripVariantData struct {
	Tariff          string `json:"tariff"`
	DurationMinutes int    `json:"duration_minutes"`
	Cost            int    `json:"cost"`
}

// TripEstimatedData is published each time a session derives new trip info.
type TripEstimatedData struct {
	SessionID      string            `json:"session_id"`
	Source         *EventPoint       `json:"source,omitempty"`
	Destination    *EventPoint       `json:"destination,omitempty"`
	DistanceMeters float64           `json:"distance_meters"`
	Best           TripVariantData   `json:"best"`
	Alternatives   []TripVariantData `json:"alternatives,omitempty"`
	Currency       string            `json:"currency"`
	EstimatedAt    time.Time         `json:"estimated_at"`
}

// SessionLifecycleData marks a session opening or closing.
type SessionLifecycleData struct {
	SessionID string    `json:"session_id"`
	Locale    string    `json:"locale,omitempty"`
	At        time.Time `json:"at"`
}
