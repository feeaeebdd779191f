// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "snore_monitor"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal    prometheus.Counter
	SessionsActive   prometheus.Gauge
	SessionsFailed   *prometheus.CounterVec
	SessionDuration  prometheus.Histogram
	SessionsFinished prometheus.Counter

	// Frame metrics
	FramesProcessed *prometheus.CounterVec
	FrameLatency    prometheus.Histogram
	CurrentRMS      prometheus.Gauge
	CaptureErrors   *prometheus.CounterVec

	// Detection metrics
	SnoresDetected    prometheus.Counter
	FeedbackTriggered *prometheus.CounterVec

	// Persistence metrics
	SampleFlushes  *prometheus.CounterVec
	SamplesWritten prometheus.Counter
	SamplesLost    prometheus.Counter
	Clips          *prometheus.CounterVec
	RetentionRuns  *prometheus.CounterVec
	RetentionPurge prometheus.Counter

	// Event metrics
	EventPublishTotal   *prometheus.CounterVec
	EventPublishErrors  *prometheus.CounterVec
	EventPublishLatency *prometheus.HistogramVec
	BusDropped          *prometheus.CounterVec

	// gRPC metrics
	GRPCCalls         *prometheus.CounterVec
	GRPCStreamsActive prometheus.Gauge
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Session metrics
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of monitoring sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "1 while a monitoring session is running",
		}),
		SessionsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Total number of sessions that failed to start or ended on error",
		}, []string{"reason"}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of monitoring sessions in seconds",
			Buckets:   []float64{60, 300, 900, 1800, 3600, 7200, 14400, 28800, 43200},
		}),
		SessionsFinished: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finished_total",
			Help:      "Total number of sessions finalized",
		}),

		// Frame metrics
		FramesProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_processed_total",
			Help:      "Total number of audio frames classified",
		}, []string{"class"}),
		FrameLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_latency_seconds",
			Help:      "Time spent processing one frame",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05},
		}),
		CurrentRMS: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_rms",
			Help:      "RMS amplitude of the latest frame",
		}),
		CaptureErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_errors_total",
			Help:      "Total number of audio capture errors",
		}, []string{"reason"}),

		// Detection metrics
		SnoresDetected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snores_detected_total",
			Help:      "Total number of snore events detected",
		}),
		FeedbackTriggered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_triggered_total",
			Help:      "Total number of feedback trigger requests",
		}, []string{"result"}),

		// Persistence metrics
		SampleFlushes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sample_flushes_total",
			Help:      "Total number of amplitude sample batch writes",
		}, []string{"result"}),
		SamplesWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_written_total",
			Help:      "Total number of amplitude samples persisted",
		}),
		SamplesLost: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_lost_total",
			Help:      "Total number of amplitude samples that could not be persisted at session end",
		}),
		Clips: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clips_total",
			Help:      "Total number of audio clip captures",
		}, []string{"result"}),
		RetentionRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_runs_total",
			Help:      "Total number of retention sweeps",
		}, []string{"result"}),
		RetentionPurge: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_sessions_purged_total",
			Help:      "Total number of sessions deleted by retention",
		}),

		// Event metrics
		EventPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_total",
			Help:      "Total number of events published to external sinks",
		}, []string{"sink", "event_type"}),
		EventPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_errors_total",
			Help:      "Total number of event publish errors",
		}, []string{"sink", "event_type"}),
		EventPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_publish_latency_seconds",
			Help:      "Event publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"sink"}),
		BusDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_dropped_total",
			Help:      "Total number of events dropped for slow subscribers",
		}, []string{"subscriber"}),

		// gRPC metrics
		GRPCCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_calls_total",
			Help:      "Total number of gRPC calls",
		}, []string{"method", "code"}),
		GRPCStreamsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "grpc_streams_active",
			Help:      "Number of currently open gRPC streams",
		}),
	}
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Set(1)
}

// RecordSessionEnd records a session being finalized.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionsActive.Set(0)
	m.SessionsFinished.Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSessionFailed records a failed start or an error-terminated session.
func (m *Metrics) RecordSessionFailed(reason string) {
	m.SessionsFailed.WithLabelValues(reason).Inc()
}

// RecordFrame records one classified frame.
func (m *Metrics) RecordFrame(class string, rms float64, latencySeconds float64) {
	m.FramesProcessed.WithLabelValues(class).Inc()
	m.FrameLatency.Observe(latencySeconds)
	m.CurrentRMS.Set(rms)
}

// RecordCaptureError records an audio capture failure.
func (m *Metrics) RecordCaptureError(reason string) {
	m.CaptureErrors.WithLabelValues(reason).Inc()
}

// RecordSnore records a snore event.
func (m *Metrics) RecordSnore() {
	m.SnoresDetected.Inc()
}

// RecordFeedback records a feedback trigger outcome: started, busy or failed.
func (m *Metrics) RecordFeedback(result string) {
	m.FeedbackTriggered.WithLabelValues(result).Inc()
}

// RecordSampleFlush records a batch write attempt.
func (m *Metrics) RecordSampleFlush(err error, n int) {
	if err != nil {
		m.SampleFlushes.WithLabelValues("error").Inc()
		return
	}
	m.SampleFlushes.WithLabelValues("ok").Inc()
	m.SamplesWritten.Add(float64(n))
}

// RecordSamplesLost records samples abandoned at session end.
func (m *Metrics) RecordSamplesLost(n int) {
	m.SamplesLost.Add(float64(n))
}

// RecordClip records a clip outcome: saved, restarted, empty or failed.
func (m *Metrics) RecordClip(result string) {
	m.Clips.WithLabelValues(result).Inc()
}

// RecordRetention records a retention sweep.
func (m *Metrics) RecordRetention(err error, purged int64) {
	if err != nil {
		m.RetentionRuns.WithLabelValues("error").Inc()
		return
	}
	m.RetentionRuns.WithLabelValues("ok").Inc()
	m.RetentionPurge.Add(float64(purged))
}

// RecordEventPublish records an external publish attempt.
func (m *Metrics) RecordEventPublish(sink, eventType string, err error, latencySeconds float64) {
	m.EventPublishTotal.WithLabelValues(sink, eventType).Inc()
	m.EventPublishLatency.WithLabelValues(sink).Observe(latencySeconds)
	if err != nil {
		m.EventPublishErrors.WithLabelValues(sink, eventType).Inc()
	}
}

// RecordBusDrop records an event dropped for a slow subscriber.
func (m *Metrics) RecordBusDrop(subscriber string) {
	m.BusDropped.WithLabelValues(subscriber).Inc()
}

// RecordGRPCCall records a completed gRPC call.
func (m *Metrics) RecordGRPCCall(method, code string) {
	m.GRPCCalls.WithLabelValues(method, code).Inc()
}
