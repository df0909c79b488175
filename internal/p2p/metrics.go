package p2p

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "p2p"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of established peers.
	Peers metrics.Gauge
	// Number of outbound connections being dialed or handshaked.
	PeersConnecting metrics.Gauge
	// Number of peers disconnected, by reason.
	PeersEvicted metrics.Counter
	// Number of bytes received, by command.
	MessageReceiveBytesTotal metrics.Counter
	// Number of bytes sent, by command.
	MessageSendBytesTotal metrics.Counter
	// Number of known addresses, by state.
	Addresses metrics.Gauge
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
		Peers: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "peers",
			Help:      "Number of established peers.",
		}, labels).With(labelsAndValues...),
		PeersConnecting: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "peers_connecting",
			Help:      "Number of outbound connections being dialed or handshaked.",
		}, labels).With(labelsAndValues...),
		PeersEvicted: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "peers_evicted_total",
			Help:      "Number of peers disconnected, by reason.",
		}, append(labels, "reason")).With(labelsAndValues...),
		MessageReceiveBytesTotal: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "message_receive_bytes_total",
			Help:      "Number of bytes received, by command.",
		}, append(labels, "command")).With(labelsAndValues...),
		MessageSendBytesTotal: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "message_send_bytes_total",
			Help:      "Number of bytes sent, by command.",
		}, append(labels, "command")).With(labelsAndValues...),
		Addresses: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "addresses",
			Help:      "Number of known addresses, by state.",
		}, append(labels, "state")).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Peers:                    discard.NewGauge(),
		PeersConnecting:          discard.NewGauge(),
		PeersEvicted:             discard.NewCounter(),
		MessageReceiveBytesTotal: discard.NewCounter(),
		MessageSendBytesTotal:    discard.NewCounter(),
		Addresses:                discard.NewGauge(),
	}
}
