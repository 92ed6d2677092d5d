// Package metrics exposes Prometheus instrumentation for the manager and
// its connections. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Connection kinds used as label values.
const (
	KindRoom   = "room"
	KindPM     = "pm"
	KindAnonPM = "anonpm"
)

// Metrics holds every collector. Create it with New.
type Metrics struct {
	connectionsActive *prometheus.GaugeVec
	connectFailures   *prometheus.CounterVec
	reconnects        prometheus.Counter
	framesReceived    *prometheus.CounterVec
	framesSent        *prometheus.CounterVec
	bytesReceived     prometheus.Counter
	bytesSent         prometheus.Counter
	unknownCommands   *prometheus.CounterVec
	events            *prometheus.CounterVec
	joinQueueDepth    prometheus.Gauge
	taskPanics        prometheus.Counter
}

// New creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connectionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "roomlink_connections_active",
			Help: "Current number of established connections",
		}, []string{"kind"}),

		connectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomlink_connect_failures_total",
			Help: "Total connection attempts that failed to dial or were refused",
		}, []string{"kind"}),

		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomlink_reconnects_total",
			Help: "Total room reconnects",
		}),

		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomlink_frames_received_total",
			Help: "Total frames decoded from servers",
		}, []string{"kind"}),

		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomlink_frames_sent_total",
			Help: "Total frames encoded for servers",
		}, []string{"kind"}),

		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomlink_bytes_received_total",
			Help: "Total bytes read from servers",
		}),

		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomlink_bytes_sent_total",
			Help: "Total bytes queued for servers",
		}),

		unknownCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomlink_unknown_commands_total",
			Help: "Total frames whose command had no handler",
		}, []string{"kind"}),

		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomlink_events_total",
			Help: "Total events delivered to the handler",
		}, []string{"event"}),

		joinQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roomlink_join_queue_depth",
			Help: "Rooms waiting to be created",
		}),

		taskPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomlink_task_panics_total",
			Help: "Timer callbacks that panicked and stopped the manager",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.connectionsActive,
			m.connectFailures,
			m.reconnects,
			m.framesReceived,
			m.framesSent,
			m.bytesReceived,
			m.bytesSent,
			m.unknownCommands,
			m.events,
			m.joinQueueDepth,
			m.taskPanics,
		)
	}
	return m
}

// ConnectionOpened increments the active connection gauge.
func (m *Metrics) ConnectionOpened(kind string) {
	if m == nil {
		return
	}
	m.connectionsActive.WithLabelValues(kind).Inc()
}

// ConnectionClosed decrements the active connection gauge.
func (m *Metrics) ConnectionClosed(kind string) {
	if m == nil {
		return
	}
	m.connectionsActive.WithLabelValues(kind).Dec()
}

// ConnectFailed counts a failed dial.
func (m *Metrics) ConnectFailed(kind string) {
	if m == nil {
		return
	}
	m.connectFailures.WithLabelValues(kind).Inc()
}

// Reconnected counts a reconnect.
func (m *Metrics) Reconnected() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// FrameReceived counts one decoded frame.
func (m *Metrics) FrameReceived(kind string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(kind).Inc()
}

// FrameSent counts one encoded frame of n bytes.
func (m *Metrics) FrameSent(kind string, n int) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(kind).Inc()
	m.bytesSent.Add(float64(n))
}

// BytesReceived adds n to the received bytes counter.
func (m *Metrics) BytesReceived(n int) {
	if m == nil {
		return
	}
	m.bytesReceived.Add(float64(n))
}

// UnknownCommand counts a frame nobody handles. The command itself is
// left out of the labels to keep cardinality bounded.
func (m *Metrics) UnknownCommand(kind string) {
	if m == nil {
		return
	}
	m.unknownCommands.WithLabelValues(kind).Inc()
}

// Event counts a delivered event.
func (m *Metrics) Event(name string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(name).Inc()
}

// JoinQueueDepth records the number of pending dials.
func (m *Metrics) JoinQueueDepth(n int) {
	if m == nil {
		return
	}
	m.joinQueueDepth.Set(float64(n))
}

// TaskPanicked counts a panicking timer or deferred task.
func (m *Metrics) TaskPanicked() {
	if m == nil {
		return
	}
	m.taskPanics.Inc()
}

// Handler serves the collectors gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
