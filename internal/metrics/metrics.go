// Package metrics exposes reminderd's prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reminderd"

// Metrics is a private registry plus the collectors the daemon updates.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	firings         prometheus.Counter
	firingsSkipped  *prometheus.CounterVec
	persistFailures *prometheus.CounterVec
	armedTimers     prometheus.Gauge
	deliveries      *prometheus.CounterVec
	channelLatency  *prometheus.HistogramVec
	socketSessions  prometheus.GaugeFunc
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		reg: reg,
		firings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "firings_total",
			Help: "Reminder timers that fired and advanced state.",
		}),
		firingsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "firings_skipped_total",
			Help: "Timer callbacks that aborted before advancing state.",
		}, []string{"reason"}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "persist_failures_total",
			Help: "Failed reminder writes.",
		}, []string{"op"}),
		armedTimers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "armed_timers",
			Help: "Users with a live reminder timer.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dispatch", Name: "deliveries_total",
			Help: "Channel attempts by outcome (delivered, skipped, failed, disabled).",
		}, []string{"channel", "outcome"}),
		channelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "dispatch", Name: "channel_seconds",
			Help:    "Adapter call duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"channel"}),
	}
	reg.MustRegister(m.firings, m.firingsSkipped, m.persistFailures, m.armedTimers, m.deliveries, m.channelLatency)
	return m
}

// TrackSessions registers a gauge that reads the live websocket session count.
func (m *Metrics) TrackSessions(count func() int) {
	if m == nil || count == nil || m.socketSessions != nil {
		return
	}
	m.socketSessions = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "socket", Name: "connected_users",
		Help: "Users with at least one realtime session.",
	}, func() float64 { return float64(count()) })
	m.reg.MustRegister(m.socketSessions)
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Fired() {
	if m != nil {
		m.firings.Inc()
	}
}

func (m *Metrics) FiringSkipped(reason string) {
	if m != nil {
		m.firingsSkipped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) PersistFailed(op string) {
	if m != nil {
		m.persistFailures.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) SetArmed(n int) {
	if m != nil {
		m.armedTimers.Set(float64(n))
	}
}

func (m *Metrics) Delivery(channel, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(channel, outcome).Inc()
	if seconds > 0 {
		m.channelLatency.WithLabelValues(channel).Observe(seconds)
	}
}
