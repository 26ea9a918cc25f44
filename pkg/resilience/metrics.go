package resilience

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// Outcomes of a call through a breaker.
const (
	callSucceeded = "success"
	callFailed    = "failure"
	callRejected  = "rejected"
)

var (
	breakerStateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "upstream",
		Name:      "breaker_state",
		Help:      "Breaker state per upstream endpoint: 0 closed, 0.5 half-open, 1 open",
	}, []string{"breaker"})

	breakerCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "upstream",
		Name:      "breaker_calls_total",
		Help:      "Upstream calls made through a breaker, by outcome. Rejected calls never reached the upstream",
	}, []string{"breaker", "result"})

	breakerStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "upstream",
		Name:      "breaker_transitions_total",
		Help:      "Breaker state transitions per upstream endpoint",
	}, []string{"breaker", "from", "to"})

	retryAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "upstream",
		Name:      "retry_attempts_total",
		Help:      "Single attempts made by retried upstream operations (maps requests, cache reads and writes)",
	}, []string{"operation", "result"})

	// Maps requests run up to a few seconds with backoff included.
	retryOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "upstream",
		Name:      "retry_operation_duration_seconds",
		Help:      "Wall time of a retried operation across all of its attempts",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"operation", "result"})

	retryAttemptsHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "upstream",
		Name:      "retry_attempts_per_operation",
		Help:      "Attempts an operation needed before it succeeded or gave up",
		Buckets:   []float64{1, 2, 3, 4, 5},
	}, []string{"operation", "result"})

	retryBackoffDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "upstream",
		Name:      "retry_backoff_seconds",
		Help:      "Backoff waited between attempts",
		Buckets:   prometheus.ExponentialBuckets(0.025, 2, 8),
	}, []string{"operation"})

	breakerIDCounter uint64
)

func nextBreakerName(base string) string {
	if base != "" {
		return base
	}
	id := atomic.AddUint64(&breakerIDCounter, 1)
	return "breaker-" + strconv.FormatUint(id, 10)
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 0.5
	case gobreaker.StateOpen:
		return 1
	default:
		return -1
	}
}

func recordBreakerState(name string, state gobreaker.State) {
	breakerStateGauge.WithLabelValues(name).Set(breakerStateValue(state))
}

func recordBreakerStateChange(name string, from, to gobreaker.State) {
	breakerStateTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
	recordBreakerState(name, to)
}

func recordBreakerCall(name, result string) {
	breakerCallsTotal.WithLabelValues(name, result).Inc()
}

func outcome(success bool) string {
	if success {
		return callSucceeded
	}
	return callFailed
}

// RecordRetryAttempt counts one attempt of a retried operation.
func RecordRetryAttempt(operation string, success bool) {
	retryAttemptsTotal.WithLabelValues(operation, outcome(success)).Inc()
}

// RecordRetryOperation records how long a retried operation took and how
// many attempts it used.
func RecordRetryOperation(operation string, durationSeconds float64, attempts int, success bool) {
	result := outcome(success)
	retryOperationDuration.WithLabelValues(operation, result).Observe(durationSeconds)
	retryAttemptsHistogram.WithLabelValues(operation, result).Observe(float64(attempts))
}

// RecordRetryBackoff records one backoff wait.
func RecordRetryBackoff(operation string, durationSeconds float64) {
	retryBackoffDuration.WithLabelValues(operation).Observe(durationSeconds)
}
