package client

import "github.com/prometheus/client_golang/prometheus"

// MetricsTracer is the observability hook this package offers, modeled on
// (and broadening) the MetricsTracer interface of the historic
// go-libp2p AutoNAT v1 client, which exposed a single
// ReceivedDialResponse(status) callback. This package's probe surface is
// richer (dispatch, confirmation, per-kind failure, server eviction), so
// the interface grows to match.
type MetricsTracer interface {
	ProbeDispatched()
	ProbeConfirmed()
	ProbeFailed(kind ErrorKind)
	ServerEvicted()
}

// noopMetricsTracer is the default when no tracer is supplied.
type noopMetricsTracer struct{}

func (noopMetricsTracer) ProbeDispatched() {}
func (noopMetricsTracer) ProbeConfirmed() {}
func (noopMetricsTracer) ProbeFailed(ErrorKind) {}
func (noopMetricsTracer) ServerEvicted() {}

// PrometheusMetricsTracer is a MetricsTracer backed by
// prometheus/client_golang, in the same direct prometheus.New*
// registration style as prometheus/alertmanager's cluster.Peer metrics.
type PrometheusMetricsTracer struct {
	dispatched prometheus.Counter
	confirmed  prometheus.Counter
	failed     *prometheus.CounterVec
	evicted    prometheus.Counter
}

// NewPrometheusMetricsTracer constructs and registers the autonatv2
// client metrics against reg.
func NewPrometheusMetricsTracer(reg prometheus.Registerer) *PrometheusMetricsTracer {
	t := &PrometheusMetricsTracer{
		dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "autonatv2",
			Subsystem: "client",
			Name:      "probes_dispatched_total",
			Help:      "Number of dial-request probes dispatched to a server.",
		}),
		confirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "autonatv2",
			Subsystem: "client",
			Name:      "addresses_confirmed_total",
			Help:      "Number of external addresses confirmed reachable.",
		}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autonatv2",
			Subsystem: "client",
			Name:      "probes_failed_total",
			Help:      "Number of completed probes that failed, by error kind.",
		}, []string{"kind"}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "autonatv2",
			Subsystem: "client",
			Name:      "servers_evicted_total",
			Help:      "Number of times a server's AutoNAT support was evicted.",
		}),
	}
	reg.MustRegister(t.dispatched, t.confirmed, t.failed, t.evicted)
	return t
}

func (t *PrometheusMetricsTracer) ProbeDispatched() { t.dispatched.Inc() }
func (t *PrometheusMetricsTracer) ProbeConfirmed() { t.confirmed.Inc() }
func (t *PrometheusMetricsTracer) ProbeFailed(kind ErrorKind) {
	t.failed.WithLabelValues(kind.String()).Inc()
}
func (t *PrometheusMetricsTracer) ServerEvicted() { t.evicted.Inc() }
