package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/eduardohotta/cortex/internal/audio"
	"github.com/eduardohotta/cortex/internal/metrics"
	"github.com/eduardohotta/cortex/internal/transcript"
	"github.com/eduardohotta/cortex/internal/transcription"
	"github.com/google/uuid"
)

// Sink receives the lines the runner produces
type Sink interface {
	Transcript(ev transcript.Event) error
	Error(message string) error
}

// Config contains configuration for one processing run
type Config struct {
	Chunking audio.ChunkingConfig
	Mode     string // reported in statistics

	// Dumper, when set, writes every chunk to disk before inference
	Dumper *audio.Dumper
}

// Runner drives one source through chunking, inference, post-processing
// and emission on the calling goroutine.
type Runner struct {
	worker    *transcription.Worker
	processor *transcript.Processor
	sink      Sink
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu    sync.RWMutex
	stats RunStats
}

// RunStats represents statistics of the current or last run
type RunStats struct {
	RunID          string            `json:"run_id"`
	Mode           string            `json:"mode"`
	Running        bool              `json:"running"`
	StartTime      time.Time         `json:"start_time"`
	AudioDuration  time.Duration     `json:"audio_duration"`
	ChunksHandled  uint64            `json:"chunks_handled"`
	ChunksSkipped  uint64            `json:"chunks_skipped"`
	EventsEmitted  uint64            `json:"events_emitted"`
	SegmentsMerged uint64            `json:"segments_merged"`
	Dropped        map[string]uint64 `json:"dropped"`
}

// NewRunner creates a runner. m may be nil.
func NewRunner(worker *transcription.Worker, processor *transcript.Processor, sink Sink, m *metrics.Metrics, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		worker:    worker,
		processor: processor,
		sink:      sink,
		metrics:   m,
		logger:    logger.With("component", "stream"),
	}
}

// queueSource is implemented by sources that buffer frames in a FrameQueue
type queueSource interface {
	Queue() *audio.FrameQueue
}

// Run processes src until it ends, the context is cancelled or a stop is
// requested on the worker state. The source is closed on every exit path.
//
// Stop conditions are checked at the top of every iteration, which includes
// every wait timeout; a chunk already handed to the worker is always
// finished. On the end of the stream the remaining tail is flushed. Any
// fatal error is written to the sink as an error line and returned.
func (r *Runner) Run(ctx context.Context, src audio.Source, cfg Config) error {
	defer func() {
		if err := src.Close(); err != nil {
			r.logger.Warn("failed to close source", slog.String("error", err.Error()))
		}
	}()

	state := r.worker.State()
	chunker := audio.NewChunker(cfg.Chunking)
	r.begin(cfg.Mode)
	defer r.end()

	r.logger.Info("processing started",
		slog.String("mode", cfg.Mode),
		slog.String("run_id", r.GetStats().RunID),
		slog.Duration("chunk_duration", cfg.Chunking.Duration),
	)

	// Chunks in flight finish even when ctx is cancelled.
	work := context.WithoutCancel(ctx)
	queue := newQueueMonitor(src, r.metrics)

	for {
		if ctx.Err() != nil {
			state.RequestStop()
		}
		if state.StopRequested() {
			r.logger.Info("stop requested, leaving processing loop",
				slog.Int("pending_samples", chunker.Pending()),
			)
			return nil
		}

		samples, ok, err := src.Next(ctx)
		queue.record()

		if len(samples) > 0 {
			r.addAudio(len(samples), cfg.Chunking.SampleRate)
			for _, chunk := range chunker.Append(samples) {
				if herr := r.handle(work, chunk, cfg.Dumper); herr != nil {
					return r.fail(herr)
				}
			}
		}

		switch {
		case err == nil:
			if !ok {
				continue // wait timed out
			}
		case errors.Is(err, io.EOF):
			if tail := chunker.Flush(); tail != nil {
				if herr := r.handle(work, tail, cfg.Dumper); herr != nil {
					return r.fail(herr)
				}
			}
			r.logger.Info("stream ended", slog.Duration("audio", r.GetStats().AudioDuration))
			return nil
		case ctx.Err() != nil:
			state.RequestStop()
			return nil
		default:
			r.metrics.RecordStreamError()
			return r.fail(err)
		}
	}
}

// handle transcribes one chunk and emits its events
func (r *Runner) handle(ctx context.Context, chunk *audio.AudioChunk, dumper *audio.Dumper) error {
	r.metrics.RecordChunkGenerated(chunk.Duration.Seconds())

	if dumper != nil {
		if path, err := dumper.Dump(chunk); err != nil {
			r.logger.Warn("failed to dump chunk", slog.String("error", err.Error()))
		} else {
			r.logger.Debug("chunk dumped", slog.String("path", path))
		}
	}

	res, err := r.worker.Transcribe(ctx, chunk.Samples)
	if err != nil {
		return err
	}

	r.logger.Debug("chunk transcribed",
		slog.String("chunk_id", chunk.ChunkID),
		slog.Uint64("sequence", chunk.Sequence),
		slog.Duration("duration", chunk.Duration),
		slog.Int("segments", len(res.Segments)),
		slog.Bool("skipped", res.Skipped),
		slog.Duration("elapsed", res.Elapsed),
	)

	if res.Skipped {
		r.mu.Lock()
		r.stats.ChunksHandled++
		r.stats.ChunksSkipped++
		r.mu.Unlock()
		return nil
	}

	state := r.worker.State()
	out := r.processor.Process(res.Segments, res.Language, state.LastText())
	state.SetLastText(out.LastText)
	r.metrics.RecordSegments(len(out.Events), out.Dropped, out.Merged)

	r.mu.Lock()
	r.stats.ChunksHandled++
	r.stats.SegmentsMerged += uint64(out.Merged)
	for reason, n := range out.Dropped {
		r.stats.Dropped[reason] += uint64(n)
	}
	for reason, n := range res.Rejected {
		r.stats.Dropped[reason] += uint64(n)
	}
	r.mu.Unlock()

	for _, ev := range out.Events {
		if err := r.sink.Transcript(ev); err != nil {
			return fmt.Errorf("emit transcript: %w", err)
		}
		r.mu.Lock()
		r.stats.EventsEmitted++
		r.mu.Unlock()
	}
	return nil
}

// fail writes err as an error line and returns it
func (r *Runner) fail(err error) error {
	r.logger.Error("processing failed", slog.String("error", err.Error()))
	msg := err.Error()
	var me *transcription.ModelError
	if errors.As(err, &me) {
		msg = me.Message()
	}
	if serr := r.sink.Error(msg); serr != nil {
		r.logger.Error("failed to write error line", slog.String("error", serr.Error()))
	}
	return err
}

func (r *Runner) begin(mode string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = RunStats{
		RunID:     uuid.NewString(),
		Mode:      mode,
		Running:   true,
		StartTime: time.Now(),
		Dropped:   map[string]uint64{},
	}
}

func (r *Runner) end() {
	r.mu.Lock()
	r.stats.Running = false
	stats := r.stats
	r.mu.Unlock()

	r.logger.Info("processing finished",
		slog.String("run_id", stats.RunID),
		slog.Duration("audio", stats.AudioDuration),
		slog.Uint64("chunks", stats.ChunksHandled),
		slog.Uint64("events", stats.EventsEmitted),
	)
}

func (r *Runner) addAudio(samples, rate int) {
	if rate <= 0 {
		rate = audio.TargetSampleRate
	}
	d := time.Duration(samples) * time.Second / time.Duration(rate)
	r.metrics.RecordAudio(d.Seconds())

	r.mu.Lock()
	r.stats.AudioDuration += d
	r.mu.Unlock()
}

// GetStats returns statistics of the current or last run
func (r *Runner) GetStats() RunStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := r.stats
	stats.Dropped = make(map[string]uint64, len(r.stats.Dropped))
	for k, v := range r.stats.Dropped {
		stats.Dropped[k] = v
	}
	return stats
}

// queueMonitor forwards capture queue counters to metrics as deltas
type queueMonitor struct {
	queue   *audio.FrameQueue
	metrics *metrics.Metrics
	evicted uint64
	dropped uint64
}

func newQueueMonitor(src audio.Source, m *metrics.Metrics) *queueMonitor {
	qs, ok := src.(queueSource)
	if !ok || m == nil {
		return &queueMonitor{}
	}
	return &queueMonitor{queue: qs.Queue(), metrics: m}
}

func (q *queueMonitor) record() {
	if q.queue == nil {
		return
	}
	s := q.queue.GetStats()
	q.metrics.RecordQueue(s.Depth, s.Evicted-q.evicted, s.Dropped-q.dropped)
	q.evicted, q.dropped = s.Evicted, s.Dropped
}
