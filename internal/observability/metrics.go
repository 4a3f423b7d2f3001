package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. Every
// Observe method is safe on a nil *Metrics.
type Metrics struct {
	ActiveSessions   prometheus.Gauge
	SessionEvents    *prometheus.CounterVec
	WSMessages       *prometheus.CounterVec
	ToolCalls        *prometheus.CounterVec
	PlaybackBuffers  *prometheus.CounterVec
	SpeechOutcomes   *prometheus.CounterVec
	VoiceIntents     *prometheus.CounterVec
	BusDeliveries    *prometheus.CounterVec
	StageLatency     *prometheus.HistogramVec
	OutboundMessages *prometheus.CounterVec

	gatherer prometheus.Gatherer
	latency  *LatencyWindow
}

// NewMetrics registers the instruments on reg. A nil reg uses a fresh
// private registry, which keeps tests independent.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_live_sessions",
			Help:      "Number of active duplex live sessions.",
		}),
		SessionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Live session lifecycle events by type.",
		}, []string{"event"}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "Device bridge websocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Model tool calls by tool and result.",
		}, []string{"tool", "result"}),
		PlaybackBuffers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_buffers_total",
			Help:      "Scheduled playback buffers by result.",
		}, []string{"result"}),
		SpeechOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_outcomes_total",
			Help:      "Synthesized utterances by outcome.",
		}, []string{"outcome"}),
		VoiceIntents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_intents_total",
			Help:      "Parsed voice command intents.",
		}, []string{"intent"}),
		BusDeliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_deliveries_total",
			Help:      "Command bus deliveries by event kind.",
		}, []string{"kind"}),
		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_ms",
			Help:      "Latency of pipeline stages in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000, 12000},
		}, []string{"stage"}),
		OutboundMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_messages_total",
			Help:      "Outbound bridge messages by type and queue result.",
		}, []string{"type", "result"}),
		gatherer: reg,
		latency:  NewLatencyWindow(256, nil),
	}
}

// Latency exposes the rolling window behind /v1/perf/latency.
func (m *Metrics) Latency() *LatencyWindow {
	if m == nil {
		return nil
	}
	return m.latency
}

func (m *Metrics) ObserveLiveActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.ActiveSessions.Set(1)
		return
	}
	m.ActiveSessions.Set(0)
}

func (m *Metrics) ObserveSessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveStageLatency(stage string, d time.Duration) {
	if m == nil {
		return
	}
	ms := float64(d) / float64(time.Millisecond)
	m.StageLatency.WithLabelValues(stage).Observe(ms)
	m.latency.Observe(stage, ms)
}

func (m *Metrics) ObserveToolCall(name, result string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(name, result).Inc()
}

func (m *Metrics) ObservePlayback(result string) {
	if m == nil {
		return
	}
	m.PlaybackBuffers.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveSpeechOutcome(outcome string) {
	if m == nil {
		return
	}
	m.SpeechOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveVoiceIntent(intent string) {
	if m == nil {
		return
	}
	m.VoiceIntents.WithLabelValues(intent).Inc()
}

func (m *Metrics) ObserveBusDelivery(kind string) {
	if m == nil {
		return
	}
	m.BusDeliveries.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveInboundMessage(msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues("inbound", msgType).Inc()
}

func (m *Metrics) ObserveOutboundMessage(msgType, result string) {
	if m == nil {
		return
	}
	m.OutboundMessages.WithLabelValues(msgType, result).Inc()
	if result == "queued" {
		m.WSMessages.WithLabelValues("outbound", msgType).Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
