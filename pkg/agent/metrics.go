package agent

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the orchestrator's instrumentation set. All fields are
// registered on construction; a nil *Metrics disables collection.
type Metrics struct {
	ActiveSessions   prometheus.Gauge
	SessionsTotal    *prometheus.CounterVec
	TurnsTotal       prometheus.Counter
	ToolCallsTotal   *prometheus.CounterVec
	BargeInsTotal    prometheus.Counter
	ReasoningSeconds prometheus.Histogram
}

// NewMetrics builds and registers the orchestrator metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voicedesk",
			Subsystem: "agent",
			Name:      "active_sessions",
			Help:      "Number of calls currently in progress.",
		}),
		SessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicedesk",
			Subsystem: "agent",
			Name:      "sessions_total",
			Help:      "Completed calls by transport kind.",
		}, []string{"kind"}),
		TurnsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voicedesk",
			Subsystem: "agent",
			Name:      "turns_total",
			Help:      "Caller turns processed.",
		}),
		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicedesk",
			Subsystem: "agent",
			Name:      "tool_calls_total",
			Help:      "Tool dispatches by outcome kind.",
		}, []string{"tool", "kind"}),
		BargeInsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voicedesk",
			Subsystem: "agent",
			Name:      "barge_ins_total",
			Help:      "Times a caller interrupted agent speech.",
		}),
		ReasoningSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "voicedesk",
			Subsystem: "agent",
			Name:      "reasoning_seconds",
			Help:      "Chat completion latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8},
		}),
	}
	reg.MustRegister(
		m.ActiveSessions, m.SessionsTotal, m.TurnsTotal,
		m.ToolCallsTotal, m.BargeInsTotal, m.ReasoningSeconds,
	)
	return m
}

func (m *Metrics) sessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) sessionEnded(kind string) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) turn() {
	if m == nil {
		return
	}
	m.TurnsTotal.Inc()
}

func (m *Metrics) toolCall(tool, kind string) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, kind).Inc()
}

func (m *Metrics) bargeIn() {
	if m == nil {
		return
	}
	m.BargeInsTotal.Inc()
}

func (m *Metrics) reasoningLatency(seconds float64) {
	if m == nil {
		return
	}
	m.ReasoningSeconds.Observe(seconds)
}
