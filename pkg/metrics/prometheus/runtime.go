// Package prometheus provides Prometheus-backed implementations of the
// interfaces declared in pkg/metrics.
package prometheus

import (
	"strconv"
	"time"

	"github.com/marmos91/multiport/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// runtimeMetrics is the Prometheus implementation of metrics.RuntimeMetrics.
type runtimeMetrics struct {
	accepted         *prometheus.CounterVec
	rejected         *prometheus.CounterVec
	handled          *prometheus.CounterVec
	handlerDuration  *prometheus.HistogramVec
	listenerBufDepth *prometheus.GaugeVec
	queueDepth       prometheus.Gauge
	workerCount      prometheus.Gauge
	listenerState    *prometheus.GaugeVec
}

// NewRuntimeMetrics creates a new Prometheus-backed RuntimeMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewRuntimeMetrics() metrics.RuntimeMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &runtimeMetrics{
		accepted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "multiport_connections_accepted_total",
				Help: "Total number of connections accepted, by listener port",
			},
			[]string{"port"},
		),
		rejected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "multiport_connections_rejected_total",
				Help: "Total number of connections rejected with the apology banner, by port and reason",
			},
			[]string{"port", "reason"}, // reason: "listener_full", "queue_full"
		),
		handled: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "multiport_connections_handled_total",
				Help: "Total number of connections handled, by port and outcome",
			},
			[]string{"port", "outcome"}, // outcome: "ok", "panic"
		),
		handlerDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "multiport_handler_duration_milliseconds",
				Help: "Duration of handler execution in milliseconds, by port",
				Buckets: []float64{
					1,
					5,
					10,
					50,
					100,
					500,
					1000,
					5000,
				},
			},
			[]string{"port"},
		),
		listenerBufDepth: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "multiport_listener_buffer_depth",
				Help: "Current local buffer depth for a listener",
			},
			[]string{"port"},
		),
		queueDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "multiport_queue_depth",
				Help: "Current global queue buffer depth",
			},
		),
		workerCount: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "multiport_worker_count",
				Help: "Current number of in-flight handler goroutines",
			},
		),
		listenerState: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "multiport_listener_state",
				Help: "Current listener state (1 = active label, 0 = inactive) per port and state name",
			},
			[]string{"port", "state"},
		),
	}
}

func (m *runtimeMetrics) RecordAccepted(port uint16) {
	if m == nil {
		return
	}
	m.accepted.WithLabelValues(portLabel(port)).Inc()
}

func (m *runtimeMetrics) RecordRejected(port uint16, reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(portLabel(port), reason).Inc()
}

func (m *runtimeMetrics) RecordHandled(port uint16, duration time.Duration, panicked bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if panicked {
		outcome = "panic"
	}
	m.handled.WithLabelValues(portLabel(port), outcome).Inc()
	m.handlerDuration.WithLabelValues(portLabel(port)).Observe(duration.Seconds() * 1000)
}

func (m *runtimeMetrics) SetListenerBufferDepth(port uint16, depth int) {
	if m == nil {
		return
	}
	m.listenerBufDepth.WithLabelValues(portLabel(port)).Set(float64(depth))
}

func (m *runtimeMetrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

func (m *runtimeMetrics) SetWorkerCount(count int) {
	if m == nil {
		return
	}
	m.workerCount.Set(float64(count))
}

// runStates enumerates every state label SetListenerState may set, so a
// transition clears the previously-active state's gauge back to 0.
var runStates = []string{"running", "pausing", "paused", "resuming", "stopping"}

func (m *runtimeMetrics) SetListenerState(port uint16, state string) {
	if m == nil {
		return
	}
	label := portLabel(port)
	for _, s := range runStates {
		if s == state {
			m.listenerState.WithLabelValues(label, s).Set(1)
		} else {
			m.listenerState.WithLabelValues(label, s).Set(0)
		}
	}
}

func portLabel(port uint16) string {
	return strconv.Itoa(int(port))
}
