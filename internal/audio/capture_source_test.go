package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eduardohotta/cortex/internal/device"
)

type fakeStream struct {
	cb      device.Callback
	started bool
	stopped bool
	closed  bool
}

func (s *fakeStream) Start() error { s.started = true; return nil }
func (s *fakeStream) Stop() error  { s.stopped = true; return nil }
func (s *fakeStream) Close() error { s.closed = true; return nil }

type fakeDriver struct {
	devices  []device.Descriptor
	output   *device.Descriptor
	channels int // the only channel count OpenInput accepts
	stream   *fakeStream
}

func (d *fakeDriver) Devices() ([]device.Descriptor, error) { return d.devices, nil }

func (d *fakeDriver) DefaultOutput() (device.Descriptor, error) {
	if d.output == nil {
		return device.Descriptor{}, device.ErrNoDevice
	}
	return *d.output, nil
}

func (d *fakeDriver) OpenInput(p device.InputParams, cb device.Callback) (device.Stream, error) {
	if p.Channels != d.channels {
		return nil, errors.New("Invalid number of channels")
	}
	d.stream = &fakeStream{cb: cb}
	return d.stream, nil
}

func (d *fakeDriver) Close() error { return nil }

func TestOpenCaptureDefaultLoopback(t *testing.T) {
	speakers := device.Descriptor{ID: 0, Name: "Speakers (Realtek)", MaxOutputChannels: 2, DefaultSampleRate: 48000}
	drv := &fakeDriver{
		devices: []device.Descriptor{
			speakers,
			{ID: 1, Name: "Microphone", MaxInputChannels: 1, DefaultSampleRate: 44100},
			{ID: 2, Name: "Speakers (Realtek) [Loopback]", MaxInputChannels: 2, DefaultSampleRate: 48000, IsLoopback: true},
		},
		output:   &speakers,
		channels: 1,
	}

	src, err := OpenCapture(drv, CaptureConfig{QueueCapacity: 4, PopTimeout: 10 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("OpenCapture failed: %v", err)
	}
	defer src.Close()

	if src.Device().ID != 2 {
		t.Errorf("Expected loopback device 2, got %d", src.Device().ID)
	}
	if src.Channels() != 1 {
		t.Errorf("Expected ladder to settle on 1 channel, got %d", src.Channels())
	}
	if !drv.stream.started {
		t.Error("Expected stream to be started")
	}

	// Empty queue times out without error.
	if _, ok, err := src.Next(context.Background()); ok || err != nil {
		t.Errorf("Expected timeout, got ok=%v err=%v", ok, err)
	}

	// 30 ms at 48 kHz mono
	in := make([]int16, 1440)
	for i := range in {
		in[i] = -16384
	}
	drv.stream.cb(in)
	in[0] = 0 // the source must hold its own copy

	samples, ok, err := src.Next(context.Background())
	if err != nil || !ok {
		t.Fatalf("Expected samples, got ok=%v err=%v", ok, err)
	}
	if len(samples) != 480 {
		t.Fatalf("Expected 480 samples at 16 kHz, got %d", len(samples))
	}
	if samples[0] != -0.5 {
		t.Errorf("Expected -0.5, got %f", samples[0])
	}

	if err := src.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if !drv.stream.stopped || !drv.stream.closed {
		t.Error("Expected stream to be stopped and closed")
	}
}

func TestOpenCaptureExplicitDeviceOverflow(t *testing.T) {
	id := 5
	drv := &fakeDriver{
		devices:  []device.Descriptor{{ID: 5, Name: "Line In", MaxInputChannels: 2, DefaultSampleRate: 16000}},
		channels: 2,
	}

	src, err := OpenCapture(drv, CaptureConfig{DeviceID: &id, QueueCapacity: 2, PopTimeout: time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("OpenCapture failed: %v", err)
	}
	defer src.Close()

	for i := 0; i < 5; i++ {
		drv.stream.cb([]int16{int16(i * 100), int16(i * 100)})
	}

	stats := src.Queue().GetStats()
	if stats.Depth != 2 {
		t.Errorf("Expected queue depth 2, got %d", stats.Depth)
	}
	if stats.Evicted != 3 {
		t.Errorf("Expected 3 evicted frames, got %d", stats.Evicted)
	}

	samples, _, _ := src.Next(context.Background())
	if len(samples) != 1 || samples[0] != Int16ToFloat32([]int16{300})[0] {
		t.Errorf("Expected the fourth frame first, got %v", samples)
	}
}

func TestOpenCaptureUnknownDevice(t *testing.T) {
	id := 9
	drv := &fakeDriver{channels: 2}
	_, err := OpenCapture(drv, CaptureConfig{DeviceID: &id}, nil)
	if !errors.Is(err, device.ErrNoDevice) {
		t.Errorf("Expected ErrNoDevice, got %v", err)
	}
}

func TestOpenCaptureNoLoopback(t *testing.T) {
	drv := &fakeDriver{
		devices:  []device.Descriptor{{ID: 1, Name: "Microphone", MaxInputChannels: 1}},
		channels: 1,
	}
	if _, err := OpenCapture(drv, CaptureConfig{}, nil); !errors.Is(err, device.ErrNoDevice) {
		t.Errorf("Expected ErrNoDevice, got %v", err)
	}
}
