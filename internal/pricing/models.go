package pricing

// Tariff is the fare schedule of one service class.
type Tariff struct {
	Name          string  `json:"name"`
	BaseFare      float64 `json:"base_fare"`
	PerKmRate     float64 `json:"per_km_rate"`
	PerMinuteRate float64 `json:"per_minute_rate"`
	MinimumFare   float64 `json:"minimum_fare"`
	// EtaMultiplier scales the routed travel time for the class.
	EtaMultiplier float64 `json:"eta_multiplier"`
}

// DefaultTariffs returns the built-in tariff table.
func DefaultTariffs() []Tariff {
	return []Tariff{
		{Name: "economy", BaseFare: 99, PerKmRate: 9, PerMinuteRate: 4, MinimumFare: 149, EtaMultiplier: 1.0},
		{Name: "comfort", BaseFare: 149, PerKmRate: 13, PerMinuteRate: 6, MinimumFare: 229, EtaMultiplier: 0.95},
		{Name: "business", BaseFare: 299, PerKmRate: 22, PerMinuteRate: 10, MinimumFare: 499, EtaMultiplier: 0.9},
	}
}
