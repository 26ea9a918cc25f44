package ordering

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordering_events_published_total",
		Help: "Events published to the event bus",
	}, []string{"subject", "result"})

	sessionsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ordering_sessions_rejected_total",
		Help: "Session creations refused at the active session cap",
	})

	streamConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ordering_stream_connections_active",
		Help: "Open session stream connections",
	})
)
