package blocksync

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "blocksync"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Height of the last block persisted by the syncer.
	Height metrics.Gauge
	// Number of heights requested and not received yet.
	BlocksInFlight metrics.Gauge
	// Number of received blocks waiting to be persisted.
	CachedBlocks metrics.Gauge
	// Number of flights that timed out.
	Timeouts metrics.Counter
	// Number of ranges re-requested after a timeout.
	Retries metrics.Counter
	// Number of received blocks nobody asked for.
	DiscardedBlocks metrics.Counter
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
			Help:      "Height of the last block persisted by the syncer.",
		}, labels).With(labelsAndValues...),
		BlocksInFlight: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "blocks_in_flight",
			Help:      "Number of heights requested and not received yet.",
		}, labels).With(labelsAndValues...),
		CachedBlocks: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "cached_blocks",
			Help:      "Number of received blocks waiting to be persisted.",
		}, labels).With(labelsAndValues...),
		Timeouts: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "timeouts_total",
			Help:      "Number of flights that timed out.",
		}, labels).With(labelsAndValues...),
		Retries: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "retries_total",
			Help:      "Number of ranges re-requested after a timeout.",
		}, labels).With(labelsAndValues...),
		DiscardedBlocks: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "discarded_blocks_total",
			Help:      "Number of received blocks nobody asked for.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Height:          discard.NewGauge(),
		BlocksInFlight:  discard.NewGauge(),
		CachedBlocks:    discard.NewGauge(),
		Timeouts:        discard.NewCounter(),
		Retries:         discard.NewCounter(),
		DiscardedBlocks: discard.NewCounter(),
	}
}
