package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vaultwatcher"

// Metrics holds the watcher's Prometheus collectors.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	ticks           prometheus.Counter
	tickDuration    prometheus.Histogram
	alerts          *prometheus.CounterVec
	rpcFailures     prometheus.Counter
	notifyFailures  *prometheus.CounterVec
	persistFailures prometheus.Counter
	accountValue    *prometheus.GaugeVec
}

// New creates collectors registered on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total number of completed poll ticks",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one poll tick",
			Buckets:   prometheus.DefBuckets,
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts emitted by kind",
		}, []string{"kind"}),
		rpcFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_failures_total",
			Help:      "Failed bulk account reads",
		}),
		notifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_failures_total",
			Help:      "Failed notification deliveries by channel",
		}, []string{"channel"}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Samples that could not be written",
		}),
		accountValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "account_value",
			Help:      "Last observed value per account (balance, or 1 on a program change tick)",
		}, []string{"name", "address"}),
	}
	m.registry.MustRegister(
		m.ticks,
		m.tickDuration,
		m.alerts,
		m.rpcFailures,
		m.notifyFailures,
		m.persistFailures,
		m.accountValue,
	)
	return m
}

// TickCompleted records one finished tick.
func (m *Metrics) TickCompleted(d time.Duration) {
	if m != nil {
		m.ticks.Inc()
		m.tickDuration.Observe(d.Seconds())
	}
}

// AlertEmitted increments the alert counter for kind.
func (m *Metrics) AlertEmitted(kind string) {
	if m != nil {
		m.alerts.WithLabelValues(kind).Inc()
	}
}

// RPCFailed increments the RPC failure counter.
func (m *Metrics) RPCFailed() {
	if m != nil {
		m.rpcFailures.Inc()
	}
}

// NotifyFailed increments the notification failure counter for channel.
func (m *Metrics) NotifyFailed(channel string) {
	if m != nil {
		m.notifyFailures.WithLabelValues(channel).Inc()
	}
}

// PersistFailed increments the persistence failure counter.
func (m *Metrics) PersistFailed() {
	if m != nil {
		m.persistFailures.Inc()
	}
}

// SetAccountValue publishes the latest value of an account.
func (m *Metrics) SetAccountValue(name, address string, value float64) {
	if m != nil {
		m.accountValue.WithLabelValues(name, address).Set(value)
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
