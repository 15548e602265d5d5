// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voice_session_client"

// Metrics holds all Prometheus metrics for the client.
type Metrics struct {
	// Session metrics
	SessionsTotal    prometheus.Counter
	SessionsActive   prometheus.Gauge
	SessionDuration  prometheus.Histogram
	ConnectFailures  *prometheus.CounterVec
	ConnectLatency   prometheus.Histogram
	TransportChanges *prometheus.CounterVec

	// Event dispatch metrics
	EventsReceived *prometheus.CounterVec
	HandlerPanics  *prometheus.CounterVec
	EventsDropped  prometheus.Counter

	// Conversation metrics
	BubblesOpened      *prometheus.CounterVec
	TranscriptsInterim prometheus.Counter
	TranscriptsFinal   prometheus.Counter
	BotTextChunks      prometheus.Counter
	TextDropped        *prometheus.CounterVec

	// Bot pipeline metrics reported over RTVI
	TTFB *prometheus.HistogramVec

	// Media metrics
	RemoteTracks       *prometheus.CounterVec
	MediaBytesReceived *prometheus.CounterVec

	// Signaling metrics
	SignalingRequests *prometheus.CounterVec
	SignalingLatency  *prometheus.HistogramVec

	// Export metrics
	ExportPublishTotal   *prometheus.CounterVec
	ExportPublishErrors  *prometheus.CounterVec
	ExportPublishLatency *prometheus.HistogramVec
	ExportRejected       *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates and registers all Prometheus metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Session metrics
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of sessions started",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently connected sessions",
		}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of connected sessions in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		ConnectFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_failures_total",
			Help:      "Total number of failed session bootstraps",
		}, []string{"stage"}),
		ConnectLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connect_latency_seconds",
			Help:      "Time from connect to bot ready in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		TransportChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_state_changes_total",
			Help:      "Total number of transport state changes",
		}, []string{"state"}),

		// Event dispatch metrics
		EventsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Total number of events dispatched by kind",
		}, []string{"kind"}),
		HandlerPanics: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_panics_total",
			Help:      "Total number of recovered handler panics",
		}, []string{"kind"}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Total number of events emitted after the client closed",
		}),

		// Conversation metrics
		BubblesOpened: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bubbles_opened_total",
			Help:      "Total number of speech bubbles opened",
		}, []string{"speaker"}),
		TranscriptsInterim: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_interim_total",
			Help:      "Total number of interim user transcripts rendered",
		}),
		TranscriptsFinal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_final_total",
			Help:      "Total number of final user transcripts rendered",
		}),
		BotTextChunks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_text_chunks_total",
			Help:      "Total number of bot text chunks rendered",
		}),
		TextDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "text_dropped_total",
			Help:      "Total number of text events ignored by the view",
		}, []string{"speaker", "reason"}),

		TTFB: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ttfb_seconds",
			Help:      "Time to first byte reported by bot processors",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"processor"}),

		// Media metrics
		RemoteTracks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_tracks_total",
			Help:      "Total number of remote media tracks attached",
		}, []string{"kind"}),
		MediaBytesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_bytes_received_total",
			Help:      "Total RTP payload bytes received on remote tracks",
		}, []string{"kind"}),

		// Signaling metrics
		SignalingRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signaling_requests_total",
			Help:      "Total number of signaling HTTP requests",
		}, []string{"path", "code"}),
		SignalingLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "signaling_latency_seconds",
			Help:      "Signaling HTTP request latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"path"}),

		// Export metrics
		ExportPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_publish_total",
			Help:      "Total number of transcript records published",
		}, []string{"backend", "topic"}),
		ExportPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_publish_errors_total",
			Help:      "Total number of transcript publish errors",
		}, []string{"backend", "topic"}),
		ExportPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_publish_latency_seconds",
			Help:      "Transcript publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"backend"}),
		ExportRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_rejected_total",
			Help:      "Total number of transcript records rejected by validation",
		}, []string{"reason"}),
	}
}

// RecordSessionStart records a session reaching the ready state.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a connected session ending.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordConnectFailure records a bootstrap failure at the given stage.
func (m *Metrics) RecordConnectFailure(stage string) {
	m.ConnectFailures.WithLabelValues(stage).Inc()
}

// RecordConnectLatency records the time it took for the bot to become ready.
func (m *Metrics) RecordConnectLatency(seconds float64) {
	m.ConnectLatency.Observe(seconds)
}

// RecordTransportState records a transport state change.
func (m *Metrics) RecordTransportState(state string) {
	m.TransportChanges.WithLabelValues(state).Inc()
}

// RecordEvent records an event being dispatched.
func (m *Metrics) RecordEvent(kind string) {
	m.EventsReceived.WithLabelValues(kind).Inc()
}

// RecordHandlerPanic records a recovered handler panic.
func (m *Metrics) RecordHandlerPanic(kind string) {
	m.HandlerPanics.WithLabelValues(kind).Inc()
}

// RecordEventDropped records an event that arrived after shutdown.
func (m *Metrics) RecordEventDropped() {
	m.EventsDropped.Inc()
}

// RecordBubbleOpened records a new speech bubble.
func (m *Metrics) RecordBubbleOpened(speaker string) {
	m.BubblesOpened.WithLabelValues(speaker).Inc()
}

// RecordInterimTranscript records an interim transcript being rendered.
func (m *Metrics) RecordInterimTranscript() {
	m.TranscriptsInterim.Inc()
}

// RecordFinalTranscript records a final transcript being rendered.
func (m *Metrics) RecordFinalTranscript() {
	m.TranscriptsFinal.Inc()
}

// RecordBotText records a bot text chunk being rendered.
func (m *Metrics) RecordBotText() {
	m.BotTextChunks.Inc()
}

// RecordTextDropped records a text event the view ignored.
func (m *Metrics) RecordTextDropped(speaker, reason string) {
	m.TextDropped.WithLabelValues(speaker, reason).Inc()
}

// RecordTTFB records a processor's time to first byte.
func (m *Metrics) RecordTTFB(processor string, seconds float64) {
	m.TTFB.WithLabelValues(processor).Observe(seconds)
}

// RecordRemoteTrack records a remote track being attached.
func (m *Metrics) RecordRemoteTrack(kind string) {
	m.RemoteTracks.WithLabelValues(kind).Inc()
}

// RecordMediaBytes records RTP payload bytes received.
func (m *Metrics) RecordMediaBytes(kind string, bytes int) {
	m.MediaBytesReceived.WithLabelValues(kind).Add(float64(bytes))
}

// RecordSignaling records a signaling HTTP round trip.
func (m *Metrics) RecordSignaling(path, code string, latencySeconds float64) {
	m.SignalingRequests.WithLabelValues(path, code).Inc()
	m.SignalingLatency.WithLabelValues(path).Observe(latencySeconds)
}

// RecordExportPublish records a transcript publish attempt.
func (m *Metrics) RecordExportPublish(backend, topic string, err error, latencySeconds float64) {
	m.ExportPublishTotal.WithLabelValues(backend, topic).Inc()
	m.ExportPublishLatency.WithLabelValues(backend).Observe(latencySeconds)
	if err != nil {
		m.ExportPublishErrors.WithLabelValues(backend, topic).Inc()
	}
}

// RecordExportRejected records a record that failed validation.
func (m *Metrics) RecordExportRejected(reason string) {
	m.ExportRejected.WithLabelValues(reason).Inc()
}
