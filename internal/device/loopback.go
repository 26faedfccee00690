package device

import (
	"fmt"
	"strings"
)

// IsLoopbackName reports whether a device name follows one of the loopback
// naming conventions drivers use: WASAPI loopback endpoints exposed as
// "<output> [Loopback]" and PulseAudio/PipeWire "Monitor of <output>"
// sources.
func IsLoopbackName(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "[loopback]") || strings.HasPrefix(lower, "monitor of ")
}

// Loopbacks returns the loopback-capable devices in devices
func Loopbacks(devices []Descriptor) []Descriptor {
	var out []Descriptor
	for _, d := range devices {
		if d.IsLoopback {
			out = append(out, d)
		}
	}
	return out
}

// FindDefaultLoopback resolves the "what you hear" source: a loopback device
// whose name contains the default output's name, else the default output
// itself used as an input. It fails only when there is no output device.
func FindDefaultLoopback(drv Driver) (Descriptor, error) {
	output, err := drv.DefaultOutput()
	if err != nil {
		return Descriptor{}, err
	}
	devices, err := drv.Devices()
	if err != nil {
		return Descriptor{}, fmt.Errorf("list devices: %w", err)
	}
	for _, d := range Loopbacks(devices) {
		if strings.Contains(d.Name, output.Name) {
			return d, nil
		}
	}
	return output, nil
}
