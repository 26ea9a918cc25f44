package taxi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taxi_sessions_active",
		Help: "Number of open ordering sessions",
	})

	geocodeQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taxi_geocode_queries_total",
		Help: "Geocode queries processed by session workers",
	}, []string{"kind", "result"})

	geocodeSuppressedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taxi_geocode_suppressed_total",
		Help: "My-location geocode requests dropped because the user picked the address",
	}, []string{"slot"})

	routeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taxi_route_requests_total",
		Help: "Route derivations by outcome",
	}, []string{"result"})
)
