package ledger

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "ledger"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Height of the last persisted block.
	Height metrics.Gauge
	// Number of blocks persisted since start.
	BlocksPersisted metrics.Counter
	// Number of transactions persisted since start.
	TransactionsPersisted metrics.Counter
	// Time spent persisting one block.
	PersistDuration metrics.Histogram
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		Height: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "height",
			Help:      "Height of the last persisted block.",
		}, labels).With(labelsAndValues...),
		BlocksPersisted: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "blocks_persisted_total",
			Help:      "Number of blocks persisted since start.",
		}, labels).With(labelsAndValues...),
		TransactionsPersisted: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "transactions_persisted_total",
			Help:      "Number of transactions persisted since start.",
		}, labels).With(labelsAndValues...),
		PersistDuration: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "persist_duration_seconds",
			Help:      "Time spent persisting one block.",
			Buckets:   stdprometheus.ExponentialBuckets(0.0005, 2, 12),
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Height:                discard.NewGauge(),
		BlocksPersisted:       discard.NewCounter(),
		TransactionsPersisted: discard.NewCounter(),
		PersistDuration:       discard.NewHistogram(),
	}
}
