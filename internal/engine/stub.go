package engine

import (
	"context"
	"fmt"
	"math"
)

const stubSilenceRMS = 0.01

// Stub is a deterministic engine for development and tests. It reports one
// segment per call describing the audio it received, and nothing for silence.
type Stub struct {
	language string
	calls    int
}

// NewStub creates a stub engine
func NewStub(s Settings) *Stub {
	return &Stub{language: "en"}
}

// Transcribe implements Engine
func (s *Stub) Transcribe(ctx context.Context, samples []float32, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.calls++

	lang := opts.Language
	if lang == "" {
		lang = s.language
	}
	res := &Result{Language: lang}
	if len(samples) == 0 || rms(samples) < stubSilenceRMS {
		return res, nil
	}

	dur := float64(len(samples)) / 16000
	res.Segments = []Segment{{
		Text:       fmt.Sprintf("audio chunk %d (%.1f seconds).", s.calls, dur),
		Start:      0,
		End:        dur,
		AvgLogProb: -0.2,
	}}
	return res, nil
}

// Close implements Engine
func (s *Stub) Close() error { return nil }

func rms(samples []float32) float64 {
	var sum float64
	for _, v := range samples {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
