package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription service.
// Every Record method is a no-op on a nil *Metrics, so components can run
// without metrics in tests.
type Metrics struct {
	// Capture queue metrics
	QueueDepth    prometheus.Gauge
	FramesEvicted prometheus.Counter
	FramesDropped prometheus.Counter

	// Audio ingest metrics
	AudioSeconds prometheus.Counter
	StreamErrors prometheus.Counter

	// Audio chunking metrics
	ChunksGenerated prometheus.Counter
	ChunkDuration   prometheus.Histogram
	ChunksSkipped   prometheus.Counter

	// Inference metrics
	InferenceRequests  prometheus.Counter
	InferenceSuccesses prometheus.Counter
	InferenceFailures  prometheus.Counter
	InferenceDuration  prometheus.Histogram
	Fallbacks          prometheus.Counter
	EngineMode         prometheus.Gauge

	// Post-processing metrics
	SegmentsAccepted prometheus.Counter
	SegmentsDropped  *prometheus.CounterVec
	SegmentsMerged   prometheus.Counter

	// Output metrics
	LinesEmitted     *prometheus.CounterVec
	WebSocketClients prometheus.Gauge

	// UDP ingest metrics
	UDPPacketsReceived prometheus.Counter
	UDPBytesReceived   prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Capture queue metrics
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cortex_capture_queue_depth",
			Help: "Current number of frames in the capture queue",
		}),
		FramesEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "cortex_capture_frames_evicted_total",
			Help: "Total number of queued frames evicted to make room for newer ones",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "cortex_capture_frames_dropped_total",
			Help: "Total number of frames dropped on a full queue",
		}),

		// Audio ingest metrics
		AudioSeconds: factory.NewCounter(prometheus.CounterOpts{
			Name: "cortex_audio_seconds_total",
			Help: "Total seconds of 16 kHz audio ingested",
		}),
		StreamErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "cortex_stream_errors_total",
			Help: "Total number of audio stream read failures",
		}),

		// Audio chunking metrics
		ChunksGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "cortex_audio_chunks_generated_total",
			Help: "Total number of audio chunks generated",
		}),
		ChunkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cortex_chunk_duration_seconds",
			Help:    "Duration of generated audio chunks",
			Buckets: prometheus.LinearBuckets(0.5, 0.5, 12), // 0.5s to 6s
		}),
		ChunksSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "cortex_chunks_skipped_total",
			Help: "Total number of chunks skipped by the voice activity filter",
		}),

		// Inference metrics
		InferenceRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "cortex_inference_requests_total",
			Help: "Total number of inference calls",
		}),
		InferenceSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "cortex_inference_successes_total",
			Help: "Total number of successful inference calls",
		}),
		InferenceFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "cortex_inference_failures_total",
			Help: "Total number of failed inference calls",
		}),
		InferenceDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cortex_inference_duration_seconds",
			Help:    "Duration of inference calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		Fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "cortex_engine_fallbacks_total",
			Help: "Total number of GPU to CPU fallback transitions",
		}),
		EngineMode: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cortex_engine_fallback_active",
			Help: "1 when the engine runs in CPU fallback mode",
		}),

		// Post-processing metrics
		SegmentsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "cortex_segments_accepted_total",
			Help: "Total number of engine segments accepted",
		}),
		SegmentsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cortex_segments_dropped_total",
			Help: "Total number of engine segments dropped",
		}, []string{"reason"}),
		SegmentsMerged: factory.NewCounter(prometheus.CounterOpts{
			Name: "cortex_segments_merged_total",
			Help: "Total number of segments merged into a previous event",
		}),

		// Output metrics
		LinesEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cortex_lines_emitted_total",
			Help: "Total number of JSON lines written",
		}, []string{"kind"}),
		WebSocketClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cortex_websocket_clients",
			Help: "Current number of event websocket subscribers",
		}),

		// UDP ingest metrics
		UDPPacketsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "cortex_udp_packets_received_total",
			Help: "Total number of UDP audio packets received",
		}),
		UDPBytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "cortex_udp_bytes_received_total",
			Help: "Total number of UDP audio bytes received",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cortex_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cortex_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cortex_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordQueue records the capture queue depth and new evictions and drops
func (m *Metrics) RecordQueue(depth int, evicted, dropped uint64) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
	m.FramesEvicted.Add(float64(evicted))
	m.FramesDropped.Add(float64(dropped))
}

// RecordAudio adds ingested audio time
func (m *Metrics) RecordAudio(seconds float64) {
	if m == nil {
		return
	}
	m.AudioSeconds.Add(seconds)
}

// RecordStreamError increments the stream errors counter
func (m *Metrics) RecordStreamError() {
	if m == nil {
		return
	}
	m.StreamErrors.Inc()
}

// RecordChunkGenerated records a generated audio chunk
func (m *Metrics) RecordChunkGenerated(durationSeconds float64) {
	if m == nil {
		return
	}
	m.ChunksGenerated.Inc()
	m.ChunkDuration.Observe(durationSeconds)
}

// RecordChunkSkipped increments the voice filter skip counter
func (m *Metrics) RecordChunkSkipped() {
	if m == nil {
		return
	}
	m.ChunksSkipped.Inc()
}

// RecordInferenceRequest increments inference requests counter
func (m *Metrics) RecordInferenceRequest() {
	if m == nil {
		return
	}
	m.InferenceRequests.Inc()
}

// RecordInferenceSuccess records a successful inference call
func (m *Metrics) RecordInferenceSuccess(durationSeconds float64) {
	if m == nil {
		return
	}
	m.InferenceSuccesses.Inc()
	m.InferenceDuration.Observe(durationSeconds)
}

// RecordInferenceFailure records a failed inference call
func (m *Metrics) RecordInferenceFailure(durationSeconds float64) {
	if m == nil {
		return
	}
	m.InferenceFailures.Inc()
	m.InferenceDuration.Observe(durationSeconds)
}

// RecordFallback records the CPU fallback transition
func (m *Metrics) RecordFallback() {
	if m == nil {
		return
	}
	m.Fallbacks.Inc()
	m.EngineMode.Set(1)
}

// RecordSegments records the outcome of post-processing one chunk
func (m *Metrics) RecordSegments(accepted int, dropped map[string]int, merged int) {
	if m == nil {
		return
	}
	m.SegmentsAccepted.Add(float64(accepted))
	for reason, n := range dropped {
		m.SegmentsDropped.WithLabelValues(reason).Add(float64(n))
	}
	m.SegmentsMerged.Add(float64(merged))
}

// RecordLine increments the emitted lines counter for kind
func (m *Metrics) RecordLine(kind string) {
	if m == nil {
		return
	}
	m.LinesEmitted.WithLabelValues(kind).Inc()
}

// SetWebSocketClients sets the current number of event subscribers
func (m *Metrics) SetWebSocketClients(count int) {
	if m == nil {
		return
	}
	m.WebSocketClients.Set(float64(count))
}

// RecordUDPPacket records one received UDP audio packet
func (m *Metrics) RecordUDPPacket(sizeBytes int) {
	if m == nil {
		return
	}
	m.UDPPacketsReceived.Inc()
	m.UDPBytesReceived.Add(float64(sizeBytes))
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
