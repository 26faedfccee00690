package device

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrDeviceOpen is wrapped by OpenError when every channel count failed.
var ErrDeviceOpen = errors.New("device: could not open audio stream")

// fallbackChannels are tried after the native count, in order.
var fallbackChannels = []int{2, 1, 4, 6, 8}

// ChannelLadder returns the channel counts to try for a device whose native
// input count is native: native first, then the fixed fallbacks, without
// duplicates. Loopback descriptors sometimes report zero channels, which is
// treated as stereo.
func ChannelLadder(native int) []int {
	if native <= 0 {
		native = 2
	}
	ladder := []int{native}
	for _, c := range fallbackChannels {
		dup := false
		for _, seen := range ladder {
			if seen == c {
				dup = true
				break
			}
		}
		if !dup {
			ladder = append(ladder, c)
		}
	}
	return ladder
}

// Attempt is the outcome of opening a stream with one channel count
type Attempt struct {
	Channels int
	Err      error
}

// OpenError reports an exhausted channel ladder
type OpenError struct {
	DeviceID int
	Attempts []Attempt
}

func (e *OpenError) Error() string {
	counts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		counts[i] = fmt.Sprint(a.Channels)
	}
	last := "none"
	if n := len(e.Attempts); n > 0 && e.Attempts[n-1].Err != nil {
		last = e.Attempts[n-1].Err.Error()
	}
	return fmt.Sprintf("could not open audio stream on device %d after retrying channels [%s]; last error: %s",
		e.DeviceID, strings.Join(counts, ", "), last)
}

func (e *OpenError) Unwrap() error { return ErrDeviceOpen }

// OpenRequest carries everything OpenWithRetry needs
type OpenRequest struct {
	Device          Descriptor
	SampleRate      float64
	FramesPerBuffer int
	// NewCallback builds the frame callback for the channel count being tried.
	NewCallback func(channels int) Callback
}

// OpenResult is a successfully opened stream plus the attempt history
type OpenResult struct {
	Stream   Stream
	Channels int
	Attempts []Attempt
}

// OpenWithRetry walks the channel ladder until the driver accepts a layout.
// Failures of the first attempt or of the native count are logged as
// informational notices; the rest stay quiet.
func OpenWithRetry(drv Driver, req OpenRequest, logger *slog.Logger) (*OpenResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	native := req.Device.MaxInputChannels
	ladder := ChannelLadder(native)

	attempts := make([]Attempt, 0, len(ladder))
	for i, channels := range ladder {
		stream, err := drv.OpenInput(InputParams{
			DeviceID:        req.Device.ID,
			Channels:        channels,
			SampleRate:      req.SampleRate,
			FramesPerBuffer: req.FramesPerBuffer,
		}, req.NewCallback(channels))
		attempts = append(attempts, Attempt{Channels: channels, Err: err})
		if err == nil {
			return &OpenResult{Stream: stream, Channels: channels, Attempts: attempts}, nil
		}
		if i == 0 || channels == native {
			logger.Info("failed to open capture stream",
				slog.Int("device_id", req.Device.ID),
				slog.Int("channels", channels),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil, &OpenError{DeviceID: req.Device.ID, Attempts: attempts}
}
