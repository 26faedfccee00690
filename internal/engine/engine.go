package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Backend names
const (
	BackendRemote     = "remote"
	BackendWhisperCpp = "whispercpp"
	BackendStub       = "stub"
)

// Segment is one piece of engine output. Times are seconds relative to the
// start of the transcribed samples.
type Segment struct {
	Text             string  `json:"text"`
	Start            float64 `json:"start"`
	End              float64 `json:"end"`
	AvgLogProb       float64 `json:"avg_logprob"`
	NoSpeechProb     float64 `json:"no_speech_prob,omitempty"`
	CompressionRatio float64 `json:"compression_ratio,omitempty"`
}

// Result is the output of one Transcribe call
type Result struct {
	Segments []Segment `json:"segments"`
	Language string    `json:"language"` // detected, or the requested language
}

// Options are the decoding options applied to every call
type Options struct {
	BeamSize                  int
	Language                  string // empty means auto-detect
	Temperature               float32
	ConditionOnPreviousText   bool
	LogProbThreshold          float64
	NoSpeechThreshold         float64
	CompressionRatioThreshold float64
	InitialPrompt             string
}

// Engine transcribes audio. Implementations are not required to be safe for
// concurrent use.
type Engine interface {
	Transcribe(ctx context.Context, samples []float32, opts Options) (*Result, error)
	Close() error
}

// Settings select and configure a backend
type Settings struct {
	Backend     string
	ModelSize   string
	ModelPath   string
	Device      string // cpu, gpu, cuda or auto
	ComputeType string
	Threads     int

	// Remote backend
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

// Loader creates an engine from settings. The transcription worker calls it
// again with CPU settings when falling back.
type Loader func(ctx context.Context, s Settings) (Engine, error)

// Load is the default Loader
func Load(ctx context.Context, s Settings) (Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		e   Engine
		err error
	)
	switch strings.ToLower(s.Backend) {
	case BackendRemote, "":
		e, err = NewRemote(s)
	case BackendWhisperCpp:
		e, err = NewWhisperCpp(s)
	case BackendStub:
		e, err = NewStub(s), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrModelLoad, s.Backend)
	}
	if err != nil {
		return nil, Classify(fmt.Errorf("%w: %w", ErrModelLoad, err))
	}
	return e, nil
}
