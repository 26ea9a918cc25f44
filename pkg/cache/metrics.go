package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cache_lookups_total",
	Help: "Cache lookups by outcome (hit, miss, error)",
}, []string{"result"})
