package audio

import (
	"context"
	"time"
)

// TargetSampleRate is the rate every chunk handed to inference uses.
const TargetSampleRate = 16000

// Frame is one block of interleaved samples as delivered by an audio origin.
// Exactly one of Int16 or Float is populated.
type Frame struct {
	Int16      []int16
	Float      []float32
	Channels   int
	SampleRate int
	Captured   time.Time
}

// Len returns the number of frames (samples per channel) in the block.
func (f Frame) Len() int {
	channels := f.Channels
	if channels < 1 {
		channels = 1
	}
	if len(f.Float) > 0 {
		return len(f.Float) / channels
	}
	return len(f.Int16) / channels
}

// Source produces mono float32 samples at TargetSampleRate. Next blocks until
// samples are available, the wait times out (ok=false, err=nil), or the source
// ends (io.EOF) or fails.
type Source interface {
	Next(ctx context.Context) (samples []float32, ok bool, err error)
	Close() error
}
