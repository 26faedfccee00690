//go:build portaudio

package device

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Available reports whether a real audio driver is compiled in.
func Available() bool { return true }

// PortAudioDriver talks to the system audio through PortAudio
type PortAudioDriver struct {
	mu     sync.Mutex
	closed bool
}

// NewDriver initializes PortAudio. Close must be called to terminate it.
func NewDriver() (Driver, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio initialize: %w", err)
	}
	return &PortAudioDriver{}, nil
}

// Devices implements Driver.
func (d *PortAudioDriver) Devices() ([]Descriptor, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio devices: %w", err)
	}
	out := make([]Descriptor, len(infos))
	for i, info := range infos {
		out[i] = describe(i, info)
	}
	return out, nil
}

// DefaultOutput implements Driver.
func (d *PortAudioDriver) DefaultOutput() (Descriptor, error) {
	def, err := portaudio.DefaultOutputDevice()
	if err != nil || def == nil {
		return Descriptor{}, ErrNoDevice
	}
	infos, err := portaudio.Devices()
	if err != nil {
		return Descriptor{}, fmt.Errorf("portaudio devices: %w", err)
	}
	for i, info := range infos {
		if sameDevice(info, def) {
			return describe(i, info), nil
		}
	}
	return Descriptor{}, ErrNoDevice
}

// OpenInput implements Driver.
func (d *PortAudioDriver) OpenInput(p InputParams, cb Callback) (Stream, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio devices: %w", err)
	}
	if p.DeviceID < 0 || p.DeviceID >= len(infos) {
		return nil, fmt.Errorf("%w: id %d", ErrNoDevice, p.DeviceID)
	}
	info := infos[p.DeviceID]

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: p.Channels,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      p.SampleRate,
		FramesPerBuffer: p.FramesPerBuffer,
	}
	stream, err := portaudio.OpenStream(params, func(in []int16) {
		cb(in)
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// Close implements Driver.
func (d *PortAudioDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return portaudio.Terminate()
}

func describe(id int, info *portaudio.DeviceInfo) Descriptor {
	hostAPI := ""
	if info.HostApi != nil {
		hostAPI = info.HostApi.Name
	}
	d := Descriptor{
		ID:                id,
		Name:              info.Name,
		HostAPI:           hostAPI,
		MaxInputChannels:  info.MaxInputChannels,
		MaxOutputChannels: info.MaxOutputChannels,
		DefaultSampleRate: info.DefaultSampleRate,
		IsLoopback:        IsLoopbackName(info.Name),
	}
	d.Type = Classify(d)
	return d
}

func sameDevice(a, b *portaudio.DeviceInfo) bool {
	if a == b {
		return true
	}
	if a.Name != b.Name {
		return false
	}
	if a.HostApi == nil || b.HostApi == nil {
		return a.HostApi == b.HostApi
	}
	return a.HostApi.Name == b.HostApi.Name
}
