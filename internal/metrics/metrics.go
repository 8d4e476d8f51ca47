package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

var (
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accounts_operations_total",
		Help: "Account use cases executed, by operation and outcome.",
	}, []string{"operation", "outcome"})

	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "accounts_operation_latency_seconds",
		Help:    "Latency of account use cases.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	TransferredAmount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "accounts_transferred_amount_total",
		Help: "Sum of amounts moved by completed transfers.",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accounts_events_published_total",
		Help: "Account events handed to the broker, by type and outcome.",
	}, []string{"type", "outcome"})

	EventsJournaled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accounts_events_journaled_total",
		Help: "Account events written to the journal by the processor, by type.",
	}, []string{"type"})
)

// Observe records one execution of operation.
func Observe(operation, outcome string, seconds float64) {
	OperationsTotal.WithLabelValues(operation, outcome).Inc()
	OperationLatency.WithLabelValues(operation).Observe(seconds)
}
