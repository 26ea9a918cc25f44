package maps

import (
	"errors"

	"github.com/eugene-kirzhanov/vkcup21/internal/taxi"
	"github.com/eugene-kirzhanov/vkcup21/pkg/config"
	"github.com/eugene-kirzhanov/vkcup21/pkg/resilience"
)

// Breaker names, also used as keys of CB_SERVICE_OVERRIDES.
const (
	BreakerDirections = "maps-directions"
	BreakerGeocode    = "maps-geocode"
	BreakerPlaces     = "maps-places"
)

// NewBreaker builds the circuit breaker guarding one maps endpoint. Empty
// answers do not count as failures. It returns nil when breakers are
// disabled, which the callers treat as a pass-through.
func NewBreaker(cfg config.CircuitBreakerConfig, name string) *resilience.CircuitBreaker {
	if !cfg.Enabled {
		return nil
	}

	s := cfg.SettingsFor(name)
	settings := resilience.BuildSettings(name, s.IntervalSeconds, s.TimeoutSeconds, s.FailureThreshold, s.SuccessThreshold)
	settings.IsExcluded = isEmptyAnswer
	return resilience.NewCircuitBreaker(settings)
}

func isEmptyAnswer(err error) bool {
	return errors.Is(err, ErrNoResults) || errors.Is(err, taxi.ErrEmptyResult)
}
