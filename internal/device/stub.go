//go:build !portaudio

package device

// Available reports whether a real audio driver is compiled in.
func Available() bool { return false }

// NewDriver returns ErrDriverUnavailable when no driver is compiled in.
func NewDriver() (Driver, error) {
	return nil, ErrDriverUnavailable
}
