package vad

import (
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	// referenceRMS maps to probability 1.0. Normal speech on a normalized
	// signal sits well above a tenth of full scale at its peaks.
	referenceRMS = 0.1
	smoothing    = 0.5
)

// Config contains detector configuration
type Config struct {
	Threshold  float32       // Voice probability threshold (0.0 - 1.0)
	WindowSize int           // Samples per window
	SampleRate int           // Audio sample rate
	MinSilence time.Duration // Pauses shorter than this do not split a segment
	MinSpeech  time.Duration // Segments shorter than this are discarded
}

// DefaultConfig returns detector defaults for 16 kHz audio
func DefaultConfig() Config {
	return Config{
		Threshold:  0.3,
		WindowSize: 512, // 32ms at 16kHz
		SampleRate: 16000,
		MinSilence: 500 * time.Millisecond,
		MinSpeech:  250 * time.Millisecond,
	}
}

// Segment represents a continuous span of voice activity
type Segment struct {
	Start      time.Duration `json:"start"`
	End        time.Duration `json:"end"`
	Confidence float32       `json:"confidence"` // Mean probability over the span
}

// Duration returns the segment length
func (s Segment) Duration() time.Duration {
	return s.End - s.Start
}

// Detector scores audio windows for voice activity. It is safe for
// concurrent use; each call is independent.
type Detector struct {
	config Config

	// Statistics
	totalWindows  uint64
	voiceWindows  uint64
	totalCalls    uint64
	silentCalls   uint64
	lastProcessed time.Time

	mu sync.RWMutex
}

// DetectorStats represents detector statistics
type DetectorStats struct {
	TotalWindows    uint64    `json:"total_windows"`
	VoiceWindows    uint64    `json:"voice_windows"`
	VoicePercentage float64   `json:"voice_percentage"`
	TotalCalls      uint64    `json:"total_calls"`
	SilentCalls     uint64    `json:"silent_calls"`
	LastProcessed   time.Time `json:"last_processed"`
	Threshold       float32   `json:"threshold"`
}

// NewDetector creates a new detector
func NewDetector(config Config) (*Detector, error) {
	if config.Threshold < 0 || config.Threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", config.Threshold)
	}
	if config.WindowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", config.WindowSize)
	}
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}
	return &Detector{config: config}, nil
}

// Probability scores one window by its RMS energy
func Probability(window []float32) float32 {
	if len(window) == 0 {
		return 0
	}
	var energy float64
	for _, s := range window {
		energy += float64(s) * float64(s)
	}
	p := math.Sqrt(energy/float64(len(window))) / referenceRMS
	if p > 1 {
		p = 1
	}
	return float32(p)
}

// Segments returns the voiced spans in samples. A trailing partial window is
// scored like a full one.
func (d *Detector) Segments(samples []float32) []Segment {
	win := d.config.WindowSize
	windowDur := d.samplesToDuration(win)

	var (
		segments []Segment
		current  *Segment
		probSum  float32
		probN    int
		last     float32
		voiced   uint64
		windows  uint64
		silence  time.Duration
	)

	closeCurrent := func() {
		if current == nil {
			return
		}
		current.Confidence = probSum / float32(probN)
		if current.Duration() >= d.config.MinSpeech {
			segments = append(segments, *current)
		}
		current = nil
	}

	for off := 0; off < len(samples); off += win {
		end := off + win
		if end > len(samples) {
			end = len(samples)
		}
		p := Probability(samples[off:end])
		if windows > 0 {
			p = smoothing*p + (1-smoothing)*last
		}
		last = p
		windows++

		start := d.samplesToDuration(off)
		stop := d.samplesToDuration(end)

		if p >= d.config.Threshold {
			voiced++
			silence = 0
			if current == nil {
				current = &Segment{Start: start}
				probSum, probN = 0, 0
			}
			current.End = stop
			probSum += p
			probN++
			continue
		}

		if current != nil {
			silence += windowDur
			if silence >= d.config.MinSilence {
				closeCurrent()
			}
		}
	}
	closeCurrent()

	d.mu.Lock()
	d.totalWindows += windows
	d.voiceWindows += voiced
	d.totalCalls++
	if len(segments) == 0 {
		d.silentCalls++
	}
	d.lastProcessed = time.Now()
	d.mu.Unlock()

	return segments
}

// HasSpeech reports whether samples contain at least one voiced segment
func (d *Detector) HasSpeech(samples []float32) bool {
	return len(d.Segments(samples)) > 0
}

func (d *Detector) samplesToDuration(n int) time.Duration {
	return time.Duration(n) * time.Second / time.Duration(d.config.SampleRate)
}

// GetStats returns current detector statistics
func (d *Detector) GetStats() DetectorStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	voicePercentage := float64(0)
	if d.totalWindows > 0 {
		voicePercentage = float64(d.voiceWindows) / float64(d.totalWindows) * 100
	}

	return DetectorStats{
		TotalWindows:    d.totalWindows,
		VoiceWindows:    d.voiceWindows,
		VoicePercentage: voicePercentage,
		TotalCalls:      d.totalCalls,
		SilentCalls:     d.silentCalls,
		LastProcessed:   d.lastProcessed,
		Threshold:       d.config.Threshold,
	}
}
