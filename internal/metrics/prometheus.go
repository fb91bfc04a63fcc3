package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "avse"

// Metrics contains all Prometheus metrics for the stream client.
// Every Record* method is safe to call on a nil *Metrics.
type Metrics struct {
	// Receive metrics
	PacketsReceived *prometheus.CounterVec
	BytesReceived   prometheus.Counter
	ProtocolErrors  prometheus.Counter
	TransientErrors prometheus.Counter

	// Synchronization metrics
	Evictions   *prometheus.CounterVec
	SyncMatches prometheus.Counter
	CropErrors  prometheus.Counter

	// Window metrics
	WindowsCompleted prometheus.Counter
	ValidationErrors *prometheus.CounterVec

	// Inference metrics
	InferenceDuration prometheus.Histogram
	InferenceSkipped  prometheus.Counter
	InferenceFailures prometheus.Counter

	// Send metrics
	SendQueueDepth prometheus.Gauge
	PacketsSent    prometheus.Counter
	BytesSent      prometheus.Counter

	// Session metrics
	Connected       prometheus.Gauge
	SessionsStarted prometheus.Counter
	Teardowns       *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
// A nil registerer creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		PacketsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "Total number of packets received by kind",
		}, []string{"kind"}),
		BytesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total payload bytes received",
		}),
		ProtocolErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Total number of malformed packet headers",
		}),
		TransientErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transient_read_errors_total",
			Help:      "Total number of retried read errors",
		}),

		Evictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Items dropped from the sync queues by media kind and reason",
		}, []string{"media", "reason"}),
		SyncMatches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_matches_total",
			Help:      "Total number of aligned video/audio pairs",
		}),
		CropErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crop_errors_total",
			Help:      "Aligned pairs dropped because the frame could not be preprocessed",
		}),

		WindowsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_completed_total",
			Help:      "Total number of tensor windows handed to inference",
		}),
		ValidationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_errors_total",
			Help:      "Items rejected by the tensor accumulator",
		}, []string{"media"}),

		InferenceDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Duration of a full enhancement inference",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
		}),
		InferenceSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_skipped_total",
			Help:      "Windows dropped because inference was already running",
		}),
		InferenceFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_failures_total",
			Help:      "Total number of failed inference runs",
		}),

		SendQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "send_queue_depth",
			Help:      "Current number of enhanced audio packets waiting to be sent",
		}),
		PacketsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_sent_total",
			Help:      "Total number of enhanced audio packets written",
		}),
		BytesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total payload bytes written",
		}),

		Connected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while a session is running, 0 otherwise",
		}),
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of established sessions",
		}),
		Teardowns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "teardowns_total",
			Help:      "Session teardowns by cause",
		}, []string{"cause"}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of sessions in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordPacketReceived counts a received packet of the given kind
func (m *Metrics) RecordPacketReceived(kind string, payloadBytes int) {
	if m == nil {
		return
	}
	m.PacketsReceived.WithLabelValues(kind).Inc()
	m.BytesReceived.Add(float64(payloadBytes))
}

// RecordProtocolError increments the protocol errors counter
func (m *Metrics) RecordProtocolError() {
	if m == nil {
		return
	}
	m.ProtocolErrors.Inc()
}

// RecordTransientError increments the transient read errors counter
func (m *Metrics) RecordTransientError() {
	if m == nil {
		return
	}
	m.TransientErrors.Inc()
}

// RecordEviction counts n items dropped from a sync queue
func (m *Metrics) RecordEviction(media, reason string, n int) {
	if m == nil {
		return
	}
	m.Evictions.WithLabelValues(media, reason).Add(float64(n))
}

// RecordSyncMatch increments the aligned pairs counter
func (m *Metrics) RecordSyncMatch() {
	if m == nil {
		return
	}
	m.SyncMatches.Inc()
}

// RecordCropError increments the crop errors counter
func (m *Metrics) RecordCropError() {
	if m == nil {
		return
	}
	m.CropErrors.Inc()
}

// RecordWindowCompleted increments the completed windows counter
func (m *Metrics) RecordWindowCompleted() {
	if m == nil {
		return
	}
	m.WindowsCompleted.Inc()
}

// RecordValidationError counts an item rejected by the accumulator
func (m *Metrics) RecordValidationError(media string) {
	if m == nil {
		return
	}
	m.ValidationErrors.WithLabelValues(media).Inc()
}

// RecordInference records a finished inference run
func (m *Metrics) RecordInference(durationSeconds float64, err error) {
	if m == nil {
		return
	}
	m.InferenceDuration.Observe(durationSeconds)
	if err != nil {
		m.InferenceFailures.Inc()
	}
}

// RecordInferenceSkipped increments the skipped windows counter
func (m *Metrics) RecordInferenceSkipped() {
	if m == nil {
		return
	}
	m.InferenceSkipped.Inc()
}

// SetSendQueueDepth sets the current send queue depth
func (m *Metrics) SetSendQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.SendQueueDepth.Set(float64(depth))
}

// RecordPacketSent counts a written enhanced audio packet
func (m *Metrics) RecordPacketSent(payloadBytes int) {
	if m == nil {
		return
	}
	m.PacketsSent.Inc()
	m.BytesSent.Add(float64(payloadBytes))
}

// RecordSessionStarted marks a session as connected
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.Connected.Set(1)
}

// RecordTeardown marks a session as disconnected and records its lifetime
func (m *Metrics) RecordTeardown(cause string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.Teardowns.WithLabelValues(cause).Inc()
	m.SessionDuration.Observe(durationSeconds)
	m.Connected.Set(0)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
