package device

import "errors"

// Device type labels reported in listings
const (
	TypeInput    = "input"
	TypeOutput   = "output"
	TypeDuplex   = "duplex"
	TypeLoopback = "loopback"
	TypeUnknown  = "unknown"
)

var (
	// ErrNoDevice is returned when no output device exists to derive a
	// loopback source from.
	ErrNoDevice = errors.New("device: no device")
	// ErrDriverUnavailable is returned when the binary was built without an
	// audio driver.
	ErrDriverUnavailable = errors.New("device: audio driver not compiled in (build with -tags portaudio)")
)

// Descriptor is an immutable snapshot of one audio device as reported by the
// driver
type Descriptor struct {
	ID                int     `json:"id"`
	Name              string  `json:"name"`
	HostAPI           string  `json:"hostapi"`
	MaxInputChannels  int     `json:"max_input_channels"`
	MaxOutputChannels int     `json:"max_output_channels"`
	DefaultSampleRate float64 `json:"default_samplerate"`
	Type              string  `json:"type,omitempty"`
	IsLoopback        bool    `json:"is_loopback,omitempty"`
}

// Classify returns the listing type label for d
func Classify(d Descriptor) string {
	switch {
	case d.IsLoopback:
		return TypeLoopback
	case d.MaxInputChannels > 0 && d.MaxOutputChannels == 0:
		return TypeInput
	case d.MaxOutputChannels > 0 && d.MaxInputChannels == 0:
		return TypeOutput
	case d.MaxOutputChannels > 0 && d.MaxInputChannels > 0:
		return TypeDuplex
	default:
		return TypeUnknown
	}
}
