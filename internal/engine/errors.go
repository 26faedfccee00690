package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrModelLoad is wrapped by every error returned while loading a model.
var ErrModelLoad = errors.New("model load failed")

// hardwareSignatures are substrings of driver and native library failures.
// They are matched case-insensitively against the error text.
var hardwareSignatures = []string{
	"dll",
	"cublas",
	"cudnn",
	"cuda",
	"library",
	"ggml",
	"metal",
	"vulkan",
	"blas",
	"out of memory",
}

// HardwareError is an engine failure caused by the GPU runtime or a native
// library rather than by the input.
type HardwareError struct {
	Signature string
	Err       error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("hardware failure (%s): %v", e.Signature, e.Err)
}

func (e *HardwareError) Unwrap() error { return e.Err }

// MatchSignature returns the first hardware signature found in msg
func MatchSignature(msg string) (string, bool) {
	lower := strings.ToLower(msg)
	for _, sig := range hardwareSignatures {
		if strings.Contains(lower, sig) {
			return sig, true
		}
	}
	return "", false
}

// Classify tags err as a *HardwareError when its text matches a hardware
// signature. Other errors, nil, and errors already tagged are returned as is.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var hw *HardwareError
	if errors.As(err, &hw) {
		return err
	}
	if sig, ok := MatchSignature(err.Error()); ok {
		return &HardwareError{Signature: sig, Err: err}
	}
	return err
}

// IsHardwareFailure reports whether err is or wraps a *HardwareError
func IsHardwareFailure(err error) bool {
	var hw *HardwareError
	return errors.As(err, &hw)
}
