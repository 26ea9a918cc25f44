package taxi

// Resource keys used by the info window text.
const (
	TripDurationKey = "trip_duration"
	TripCostKey     = "trip_cost"
)

// FormatInfoWindow turns priced route details into the two-line info window text.
func FormatInfoWindow(details RouteDetails, resources ResourceProvider) InfoWindowData {
	duration := resources.GetString(TripDurationKey, details.BestVariant.Duration)
	cost := resources.GetString(TripCostKey, details.BestVariant.Cost)

	return InfoWindowData{
		Latitude:  details.Latitude,
		Longitude: details.Longitude,
		Text:      duration + "\n" + cost,
	}
}
