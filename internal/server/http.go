package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eduardohotta/cortex/internal/config"
	"github.com/eduardohotta/cortex/internal/metrics"
	"github.com/eduardohotta/cortex/internal/protocol"
	"github.com/eduardohotta/cortex/internal/stream"
	"github.com/eduardohotta/cortex/internal/transcription"
)

// Components are the parts of the service the API reports on. Runner,
// Emitter, Events and UDP may be nil.
type Components struct {
	Worker  *transcription.Worker
	Runner  *stream.Runner
	Emitter *protocol.Emitter
	Events  *EventHub
	UDP     *UDPReceiver
}

// HTTPServer provides HTTP API endpoints for monitoring
type HTTPServer struct {
	server     *http.Server
	listener   net.Listener
	logger     *slog.Logger
	config     *config.Config
	components Components
	gatherer   prometheus.Gatherer
	metrics    *metrics.Metrics
	version    string

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server. gatherer serves /metrics
// and defaults to the global Prometheus registry.
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config,
	c Components, gatherer prometheus.Gatherer, m *metrics.Metrics, version string) *HTTPServer {

	if logger == nil {
		logger = slog.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	h := &HTTPServer{
		logger:     logger.With("component", "server.http"),
		config:     appConfig,
		components: c,
		gatherer:   gatherer,
		metrics:    m,
		version:    version,
		startTime:  time.Now(),
	}

	h.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:     h.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	return h
}

// Handler returns the route table
func (h *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	// Long-lived, not timed
	if h.components.Events != nil {
		mux.Handle("/events", h.components.Events)
	}

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
	return mux
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		h.metrics.RecordHTTPRequest(r.Method, endpoint, fmt.Sprintf("%d", ww.statusCode), duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start binds the listener and serves in the background
func (h *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}
	h.listener = ln

	h.logger.Info("Starting HTTP API server", slog.String("address", ln.Addr().String()))

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start
func (h *HTTPServer) Addr() net.Addr {
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// Stop gracefully stops the HTTP server and disconnects event subscribers
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")
	if h.components.Events != nil {
		h.components.Events.Close()
	}
	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := "healthy"
	engine := h.components.Worker.State().Snapshot()
	if engine.Stopping {
		status = "stopping"
	}

	components := map[string]any{
		"engine": engine,
	}
	if h.components.Runner != nil {
		run := h.components.Runner.GetStats()
		components["stream"] = map[string]any{
			"running": run.Running,
			"mode":    run.Mode,
		}
	}
	if h.components.UDP != nil {
		udp := h.components.UDP.GetStatistics()
		components["udp"] = map[string]any{
			"address":          udp.Address,
			"packets_received": udp.PacketsReceived,
		}
	}

	writeJSON(w, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]any{
			"name":    "cortex-transcriber",
			"version": h.version,
		},
		"components": components,
	})
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]any{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"worker":    h.components.Worker.GetStats(),
	}
	if h.components.Runner != nil {
		stats["stream"] = h.components.Runner.GetStats()
	}
	if h.components.Emitter != nil {
		stats["lines"] = h.components.Emitter.GetStats()
	}
	if h.components.Events != nil {
		stats["event_subscribers"] = h.components.Events.Clients()
	}
	if h.components.UDP != nil {
		stats["udp"] = h.components.UDP.GetStatistics()
	}

	writeJSON(w, stats)
}

// handleConfig implements the /config endpoint. Credentials are omitted.
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	c := h.config
	writeJSON(w, map[string]any{
		"model": map[string]any{
			"backend":      c.Model.Backend,
			"size":         c.Model.Size,
			"device":       c.Model.Device,
			"compute_type": c.Model.ComputeType,
			"endpoint":     c.Model.Endpoint,
			"timeout":      c.Model.Timeout,
			"max_retries":  c.Model.MaxRetries,
		},
		"decoding": c.Decoding,
		"audio": map[string]any{
			"device_id":             c.Audio.DeviceID,
			"queue_capacity":        c.Audio.QueueCapacity,
			"capture_chunk_seconds": c.Audio.CaptureChunkSeconds,
			"stream_chunk_seconds":  c.Audio.StreamChunkSeconds,
			"min_flush_seconds":     c.Audio.MinFlushSeconds,
			"pop_timeout_ms":        c.Audio.PopTimeoutMs,
		},
		"postprocess": map[string]any{
			"min_avg_logprob":   c.PostProcess.MinAvgLogProb,
			"merge_gap_seconds": c.PostProcess.MergeGapSeconds,
			"max_merged_chars":  c.PostProcess.MaxMergedChars,
		},
		"input": map[string]any{
			"source":      c.Input.Source,
			"udp_address": c.Input.UDPAddress,
		},
		"logging": map[string]any{
			"level":  c.Logging.Level,
			"format": c.Logging.Format,
			"output": c.Logging.Output,
		},
	})
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, map[string]any{
		"service": "cortex-transcriber",
		"version": h.version,
		"endpoints": map[string]any{
			"GET /":        "API documentation",
			"GET /health":  "Service health check",
			"GET /config":  "Get service configuration",
			"GET /stats":   "Get service statistics",
			"GET /metrics": "Prometheus metrics",
			"GET /events":  "Websocket mirror of the JSON line output",
		},
		"timestamp": time.Now().UTC(),
	})
}
