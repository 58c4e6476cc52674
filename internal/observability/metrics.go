// Package observability holds the engine's Prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "weatherbot"

// Metrics holds the counters and histograms for collection cycles and the
// trade lifecycle.
type Metrics struct {
	CyclesTotal   *prometheus.CounterVec // labels: outcome={ok,error,skipped}
	CycleDuration prometheus.Histogram
	CycleRunning  prometheus.Gauge

	Signals          *prometheus.CounterVec // labels: city, verdict
	TradesOpened     *prometheus.CounterVec // labels: city
	EntriesDeclined  *prometheus.CounterVec // labels: reason
	Alerts           *prometheus.CounterVec // labels: state
	Resolutions      *prometheus.CounterVec // labels: outcome={won,lost}
	ResolveDeferred  prometheus.Counter
	InvariantErrors  *prometheus.CounterVec // labels: kind
	ProviderErrors   *prometheus.CounterVec // labels: source
	ModelDrops       *prometheus.CounterVec // labels: model
	ConfidenceLoaded prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Collection cycles by outcome.",
		}, []string{"outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a full collect, monitor and resolve cycle.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}),
		CycleRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cycle_running",
			Help:      "1 while a cycle is in progress.",
		}),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Classified signals by city and verdict.",
		}, []string{"city", "verdict"}),
		TradesOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_opened_total",
			Help:      "Paper positions opened by city.",
		}, []string{"city"}),
		EntriesDeclined: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_declined_total",
			Help:      "Entry attempts that did not open a position, by reason.",
		}, []string{"reason"}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trade_alerts_total",
			Help:      "Drift state changes recorded, by new state.",
		}, []string{"state"}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Settled trades by outcome.",
		}, []string{"outcome"}),
		ResolveDeferred: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_deferred_total",
			Help:      "Resolution attempts deferred because the observation was not yet published.",
		}),
		InvariantErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invariant_errors_total",
			Help:      "Duplicate entries and repeated resolutions caught by the store.",
		}, []string{"kind"}),
		ProviderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Failed external calls by source.",
		}, []string{"source"}),
		ModelDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_drops_total",
			Help:      "Forecast changes detected inside a model release window.",
		}, []string{"model"}),
		ConfidenceLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "confidence_table_loaded_timestamp_seconds",
			Help:      "Unix time the confidence table in use was loaded.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.CyclesTotal, m.CycleDuration, m.CycleRunning,
		m.Signals, m.TradesOpened, m.EntriesDeclined, m.Alerts,
		m.Resolutions, m.ResolveDeferred, m.InvariantErrors,
		m.ProviderErrors, m.ModelDrops, m.ConfidenceLoaded,
	}
}

// NewMetrics creates the metrics and registers them with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics on a fresh registry so tests can build
// as many as they like.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
