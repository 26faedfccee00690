package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/eduardohotta/cortex/internal/engine"
	"github.com/eduardohotta/cortex/internal/metrics"
	"github.com/eduardohotta/cortex/internal/vad"
)

// Notifier receives the user-facing notices of the fallback path
type Notifier interface {
	Warning(message string) error
	FallbackCPU(message string) error
}

// Config contains worker configuration
type Config struct {
	Engine  engine.Settings
	Options engine.Options

	// VADFilter skips inference for chunks without speech
	VADFilter bool
	VAD       vad.Config
}

// Result is the outcome of transcribing one chunk
type Result struct {
	Segments []engine.Segment
	Language string
	Skipped  bool // no speech found, engine not called
	Elapsed  time.Duration

	// Rejected counts segments dropped by the decoding thresholds
	Rejected map[string]int
}

// Worker runs inference on chunks, one at a time
type Worker struct {
	state    *ServiceState
	settings engine.Settings
	loader   engine.Loader
	engine   engine.Engine
	detector *vad.Detector
	notify   Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger

	sem chan struct{} // single slot: at most one call in flight

	// Statistics
	totalCalls     uint64
	failedCalls    uint64
	skippedChunks  uint64
	fallbacks      uint64
	totalInference time.Duration

	mu sync.RWMutex
}

// WorkerStats represents worker statistics
type WorkerStats struct {
	Mode          string        `json:"mode"`
	Device        string        `json:"device"`
	TotalCalls    uint64        `json:"total_calls"`
	FailedCalls   uint64        `json:"failed_calls"`
	SkippedChunks uint64        `json:"skipped_chunks"`
	Fallbacks     uint64        `json:"fallbacks"`
	AvgInference  time.Duration `json:"avg_inference"`
}

// NewWorker creates a worker. loader defaults to engine.Load; notify and m
// may be nil.
func NewWorker(cfg Config, loader engine.Loader, notify Notifier, m *metrics.Metrics, logger *slog.Logger) (*Worker, error) {
	if loader == nil {
		loader = engine.Load
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &Worker{
		state:    NewServiceState(cfg.Engine.ModelSize, strings.ToLower(cfg.Engine.Device), cfg.Engine.ComputeType, cfg.Options),
		settings: cfg.Engine,
		loader:   loader,
		notify:   notify,
		metrics:  m,
		logger:   logger.With("component", "transcription"),
		sem:      make(chan struct{}, 1),
	}

	if cfg.VADFilter {
		detector, err := vad.NewDetector(cfg.VAD)
		if err != nil {
			return nil, fmt.Errorf("failed to create voice activity detector: %w", err)
		}
		w.detector = detector
	}
	return w, nil
}

// State returns the service state owned by the worker
func (w *Worker) State() *ServiceState {
	return w.state
}

// Load loads the model. When the configured device is GPU-class or auto and
// loading fails, it falls back to the CPU once.
func (w *Worker) Load(ctx context.Context) error {
	e, err := w.loader(ctx, w.settings)
	if err == nil {
		w.engine = e
		w.logger.Info("model loaded",
			slog.String("model", w.settings.ModelSize),
			slog.String("device", w.state.Device()),
		)
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if !w.state.canFallback() {
		return &ModelError{Op: "load", Err: fmt.Errorf("Failed to load model: %w", err)}
	}

	w.warn(fmt.Sprintf("Model load failed on %s: %v", w.state.Device(), err))
	if ferr := w.fallback(ctx, "Falling back to CPU..."); ferr != nil {
		return &ModelError{Op: "load", Err: fmt.Errorf("CPU Fallback failed: %w", ferr)}
	}
	return nil
}

// Transcribe runs inference on samples. A hardware failure while running on
// a GPU-class device triggers the fallback and one retry; any other failure,
// or a failure after the fallback, is returned as *ModelError.
func (w *Worker) Transcribe(ctx context.Context, samples []float32) (*Result, error) {
	select {
	case w.sem <- struct{}{}:
		defer func() { <-w.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if w.engine == nil {
		return nil, &ModelError{Op: "transcribe", Err: errors.New("model not loaded")}
	}

	if w.detector != nil && !w.detector.HasSpeech(samples) {
		w.recordSkip()
		return &Result{Skipped: true, Language: w.language("")}, nil
	}

	opts := w.decodingOptions()
	res, err := w.call(ctx, samples, opts)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	if !engine.IsHardwareFailure(err) || !w.state.canFallback() {
		return nil, &ModelError{Op: "transcribe", Err: err}
	}

	msg := fmt.Sprintf("Hardware error on %s: %v. Switching to CPU...", w.state.Device(), err)
	if ferr := w.fallback(ctx, msg); ferr != nil {
		return nil, &ModelError{Op: "transcribe", Err: fmt.Errorf("CPU Fallback failed during runtime: %w", ferr)}
	}

	res, err = w.call(ctx, samples, opts)
	if err != nil {
		return nil, &ModelError{Op: "transcribe", Err: err}
	}
	return res, nil
}

// decodingOptions returns the configured options. With conditioning on, the
// last accepted text is appended to the prompt.
func (w *Worker) decodingOptions() engine.Options {
	opts := w.state.Options()
	if opts.ConditionOnPreviousText {
		if last := w.state.LastText(); last != "" {
			opts.InitialPrompt = strings.TrimSpace(opts.InitialPrompt + " " + last)
		}
	}
	return opts
}

func (w *Worker) call(ctx context.Context, samples []float32, opts engine.Options) (*Result, error) {
	w.metrics.RecordInferenceRequest()
	start := time.Now()

	res, err := w.engine.Transcribe(ctx, samples, opts)
	elapsed := time.Since(start)

	w.mu.Lock()
	w.totalCalls++
	w.totalInference += elapsed
	if err != nil {
		w.failedCalls++
	}
	w.mu.Unlock()

	if err != nil {
		w.metrics.RecordInferenceFailure(elapsed.Seconds())
		w.logger.Warn("inference failed", slog.String("error", err.Error()), slog.Duration("elapsed", elapsed))
		return nil, err
	}
	w.metrics.RecordInferenceSuccess(elapsed.Seconds())

	segments, rejected := applyThresholds(res.Segments, opts)
	if len(rejected) > 0 {
		w.metrics.RecordSegments(0, rejected, 0)
		w.logger.Debug("segments rejected by decoding thresholds", slog.Any("rejected", rejected))
	}

	return &Result{
		Segments: segments,
		Language: w.language(res.Language),
		Elapsed:  elapsed,
		Rejected: rejected,
	}, nil
}

// fallback performs the one-way transition and reloads the engine on the CPU
func (w *Worker) fallback(ctx context.Context, message string) error {
	from, ok := w.state.enterFallback()
	if !ok {
		return errors.New("fallback already used")
	}

	w.mu.Lock()
	w.fallbacks++
	w.mu.Unlock()
	w.metrics.RecordFallback()
	w.logger.Warn("falling back to CPU", slog.String("from", from))
	if w.notify != nil {
		if err := w.notify.FallbackCPU(message); err != nil {
			w.logger.Error("failed to write fallback notice", slog.String("error", err.Error()))
		}
	}

	if w.engine != nil {
		if err := w.engine.Close(); err != nil {
			w.logger.Warn("failed to close engine", slog.String("error", err.Error()))
		}
		w.engine = nil
	}

	w.settings.Device = FallbackDevice
	w.settings.ComputeType = FallbackComputeType
	e, err := w.loader(ctx, w.settings)
	if err != nil {
		return err
	}
	w.engine = e
	return nil
}

// language picks the detected language, then the configured one, then auto
func (w *Worker) language(detected string) string {
	if detected != "" {
		return detected
	}
	if lang := w.state.Options().Language; lang != "" {
		return lang
	}
	return "auto"
}

func (w *Worker) warn(message string) {
	w.logger.Warn(message)
	if w.notify != nil {
		if err := w.notify.Warning(message); err != nil {
			w.logger.Error("failed to write warning", slog.String("error", err.Error()))
		}
	}
}

func (w *Worker) recordSkip() {
	w.mu.Lock()
	w.skippedChunks++
	w.mu.Unlock()
	w.metrics.RecordChunkSkipped()
}

// GetStats returns current worker statistics
func (w *Worker) GetStats() WorkerStats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var avg time.Duration
	if w.totalCalls > 0 {
		avg = w.totalInference / time.Duration(w.totalCalls)
	}
	return WorkerStats{
		Mode:          w.state.Mode().String(),
		Device:        w.state.Device(),
		TotalCalls:    w.totalCalls,
		FailedCalls:   w.failedCalls,
		SkippedChunks: w.skippedChunks,
		Fallbacks:     w.fallbacks,
		AvgInference:  avg,
	}
}

// Close releases the engine. It waits for an inference in flight to return.
func (w *Worker) Close() error {
	w.sem <- struct{}{}
	defer func() { <-w.sem }()

	if w.engine == nil {
		return nil
	}
	err := w.engine.Close()
	w.engine = nil
	return err
}
