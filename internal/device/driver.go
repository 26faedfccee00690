package device

import "fmt"

// InputParams describes one attempt at opening a capture stream
type InputParams struct {
	DeviceID        int
	Channels        int
	SampleRate      float64
	FramesPerBuffer int
}

// Callback receives interleaved PCM16 samples on a driver-owned thread. The
// slice is only valid for the duration of the call and the callback must not
// block.
type Callback func(interleaved []int16)

// Stream is an open capture stream
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Driver is the audio subsystem the capture path talks to
type Driver interface {
	// Devices lists every device known to the driver.
	Devices() ([]Descriptor, error)
	// DefaultOutput returns the default output device, or ErrNoDevice.
	DefaultOutput() (Descriptor, error)
	// OpenInput opens (but does not start) a capture stream.
	OpenInput(p InputParams, cb Callback) (Stream, error)
	// Close releases the driver.
	Close() error
}

// Lookup finds the device with the given id
func Lookup(drv Driver, id int) (Descriptor, error) {
	devices, err := drv.Devices()
	if err != nil {
		return Descriptor{}, err
	}
	for _, d := range devices {
		if d.ID == id {
			return d, nil
		}
	}
	return Descriptor{}, fmt.Errorf("%w: id %d", ErrNoDevice, id)
}
