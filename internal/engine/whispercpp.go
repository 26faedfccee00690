//go:build whispercpp

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"runtime"
	"strings"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// WhisperCppAvailable reports whether the binary was built with the native
// whisper.cpp backend.
func WhisperCppAvailable() bool { return true }

// WhisperCpp runs a local ggml model through the whisper.cpp bindings
type WhisperCpp struct {
	model   whisper.Model
	threads int
}

// NewWhisperCpp loads the model at s.ModelPath. The device and compute type
// are decided when the library is built, so a GPU build that cannot
// initialize fails here and is classified as a hardware failure.
func NewWhisperCpp(s Settings) (Engine, error) {
	if s.ModelPath == "" {
		return nil, fmt.Errorf("model path cannot be empty")
	}
	model, err := whisper.New(s.ModelPath)
	if err != nil {
		return nil, Classify(fmt.Errorf("load model %q: %w", s.ModelPath, err))
	}
	threads := s.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	return &WhisperCpp{model: model, threads: threads}, nil
}

// Transcribe implements Engine
func (w *WhisperCpp) Transcribe(ctx context.Context, samples []float32, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wctx, err := w.model.NewContext()
	if err != nil {
		return nil, Classify(fmt.Errorf("create context: %w", err))
	}

	lang := opts.Language
	if lang == "" {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("set language %q: %w", lang, err)
	}
	wctx.SetThreads(uint(w.threads))
	if opts.BeamSize > 0 {
		wctx.SetBeamSize(opts.BeamSize)
	}
	wctx.SetTemperature(opts.Temperature)
	if opts.InitialPrompt != "" {
		wctx.SetInitialPrompt(opts.InitialPrompt)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, Classify(fmt.Errorf("process: %w", err))
	}

	res := &Result{Language: wctx.DetectedLanguage()}
	if res.Language == "" {
		res.Language = opts.Language
	}
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("next segment: %w", err)
		}
		res.Segments = append(res.Segments, Segment{
			Text:       strings.TrimSpace(seg.Text),
			Start:      seg.Start.Seconds(),
			End:        seg.End.Seconds(),
			AvgLogProb: avgLogProb(seg.Tokens),
		})
	}
	return res, nil
}

// avgLogProb is the mean natural log of the token probabilities
func avgLogProb(tokens []whisper.Token) float64 {
	if len(tokens) == 0 {
		return 0
	}
	var sum float64
	n := 0
	for _, t := range tokens {
		if t.P <= 0 {
			continue
		}
		sum += math.Log(float64(t.P))
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Close implements Engine
func (w *WhisperCpp) Close() error {
	return w.model.Close()
}
