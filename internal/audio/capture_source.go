package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eduardohotta/cortex/internal/device"
)

const (
	defaultFramesPerBuffer = 1024
	defaultPopTimeout      = 250 * time.Millisecond
)

// CaptureConfig contains configuration for live device capture
type CaptureConfig struct {
	DeviceID      *int // nil selects the default loopback device
	QueueCapacity int
	PopTimeout    time.Duration
	// FramesPerBuffer is the driver block size at 16 kHz; it is scaled up for
	// devices with a higher native rate.
	FramesPerBuffer int
}

// CaptureSource pulls audio from a live device. The driver pushes frames into
// a bounded FrameQueue from its own thread; Next converts them on the
// caller's goroutine.
type CaptureSource struct {
	driver   device.Driver
	device   device.Descriptor
	stream   device.Stream
	queue    *FrameQueue
	channels int
	rate     int
	timeout  time.Duration
	logger   *slog.Logger
	closed   bool
}

// OpenCapture resolves the device, opens it through the channel retry ladder
// and starts the stream.
func OpenCapture(drv device.Driver, cfg CaptureConfig, logger *slog.Logger) (*CaptureSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "audio.capture")

	var (
		dev device.Descriptor
		err error
	)
	if cfg.DeviceID != nil {
		dev, err = device.Lookup(drv, *cfg.DeviceID)
	} else {
		dev, err = device.FindDefaultLoopback(drv)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve capture device: %w", err)
	}

	rate := int(dev.DefaultSampleRate)
	if rate <= 0 {
		rate = TargetSampleRate
	}
	frames := cfg.FramesPerBuffer
	if frames <= 0 {
		frames = defaultFramesPerBuffer
	}
	if rate > TargetSampleRate {
		frames = frames * rate / TargetSampleRate
	}
	timeout := cfg.PopTimeout
	if timeout <= 0 {
		timeout = defaultPopTimeout
	}

	s := &CaptureSource{
		driver:  drv,
		device:  dev,
		queue:   NewFrameQueue(cfg.QueueCapacity),
		rate:    rate,
		timeout: timeout,
		logger:  logger,
	}

	res, err := device.OpenWithRetry(drv, device.OpenRequest{
		Device:          dev,
		SampleRate:      float64(rate),
		FramesPerBuffer: frames,
		NewCallback:     s.callback,
	}, logger)
	if err != nil {
		return nil, err
	}
	s.stream = res.Stream
	s.channels = res.Channels

	if err := s.stream.Start(); err != nil {
		s.stream.Close()
		return nil, fmt.Errorf("start capture stream: %w", err)
	}

	attrs := []any{
		slog.String("device", dev.Name),
		slog.Int("rate", rate),
		slog.Int("channels", s.channels),
	}
	if rate != TargetSampleRate {
		attrs = append(attrs, slog.Int("resampling_to", TargetSampleRate))
	}
	logger.Info("capturing", attrs...)

	return s, nil
}

// callback builds the driver callback for one channel layout. It copies the
// driver-owned buffer and hands it to the queue without blocking.
func (s *CaptureSource) callback(channels int) device.Callback {
	return func(in []int16) {
		samples := make([]int16, len(in))
		copy(samples, in)
		s.queue.Push(Frame{
			Int16:      samples,
			Channels:   channels,
			SampleRate: s.rate,
			Captured:   time.Now(),
		})
	}
}

// Next waits up to the pop timeout for a frame and returns it as mono
// float32 at TargetSampleRate. ok is false when the wait timed out.
func (s *CaptureSource) Next(ctx context.Context) ([]float32, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	f, ok := s.queue.Pop(s.timeout)
	if !ok {
		return nil, false, nil
	}
	return Normalize(f, TargetSampleRate), true, nil
}

// Device returns the device being captured
func (s *CaptureSource) Device() device.Descriptor {
	return s.device
}

// Channels returns the channel count the driver accepted
func (s *CaptureSource) Channels() int {
	return s.channels
}

// Queue exposes the frame queue for monitoring
func (s *CaptureSource) Queue() *FrameQueue {
	return s.queue
}

// Close stops and closes the capture stream. It is safe to call twice.
func (s *CaptureSource) Close() error {
	if s.closed || s.stream == nil {
		return nil
	}
	s.closed = true
	return errors.Join(s.stream.Stop(), s.stream.Close())
}
