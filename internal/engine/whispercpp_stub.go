//go:build !whispercpp

package engine

import "errors"

// ErrWhisperCppUnavailable is returned when the binary was built without the
// whispercpp tag.
var ErrWhisperCppUnavailable = errors.New("whisper.cpp backend not compiled in (build with -tags whispercpp)")

// WhisperCppAvailable reports whether the binary was built with the native
// whisper.cpp backend.
func WhisperCppAvailable() bool { return false }

// NewWhisperCpp always fails without the whispercpp build tag
func NewWhisperCpp(s Settings) (Engine, error) {
	return nil, ErrWhisperCppUnavailable
}
