package transcription

import (
	"sync"
	"sync/atomic"

	"github.com/eduardohotta/cortex/internal/engine"
)

// Mode is the fallback state of the worker
type Mode int

const (
	// Primary runs on the configured device and precision
	Primary Mode = iota
	// Fallback runs on the CPU with int8 weights, for the rest of the process
	Fallback
)

func (m Mode) String() string {
	if m == Fallback {
		return "fallback"
	}
	return "primary"
}

// Fallback configuration
const (
	FallbackDevice      = "cpu"
	FallbackComputeType = "int8"
)

// gpuDevices are the device classes eligible for fallback
var gpuDevices = map[string]bool{"gpu": true, "cuda": true, "auto": true}

// ServiceState is the single mutable state of a running service. The worker
// owns it; the only transition it exposes is the one-way fallback.
type ServiceState struct {
	mu          sync.RWMutex
	modelSize   string
	device      string
	computeType string
	options     engine.Options
	lastText    string
	mode        Mode

	stop atomic.Bool
}

// NewServiceState creates the state for a model on a device
func NewServiceState(modelSize, device, computeType string, opts engine.Options) *ServiceState {
	return &ServiceState{
		modelSize:   modelSize,
		device:      device,
		computeType: computeType,
		options:     opts,
	}
}

// StateSnapshot is a copy of the state for reporting
type StateSnapshot struct {
	ModelSize   string `json:"model_size"`
	Device      string `json:"device"`
	ComputeType string `json:"compute_type"`
	Mode        string `json:"mode"`
	LastText    string `json:"last_text"`
	Stopping    bool   `json:"stopping"`
}

// Snapshot returns a copy of the current state
func (s *ServiceState) Snapshot() StateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StateSnapshot{
		ModelSize:   s.modelSize,
		Device:      s.device,
		ComputeType: s.computeType,
		Mode:        s.mode.String(),
		LastText:    s.lastText,
		Stopping:    s.stop.Load(),
	}
}

// Mode returns the current fallback state
func (s *ServiceState) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Device returns the active device class
func (s *ServiceState) Device() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.device
}

// Options returns the decoding options
func (s *ServiceState) Options() engine.Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.options
}

// LastText returns the last accepted segment text
func (s *ServiceState) LastText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastText
}

// SetLastText records the last accepted segment text
func (s *ServiceState) SetLastText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastText = text
}

// canFallback reports whether the fallback transition is still available
func (s *ServiceState) canFallback() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode == Primary && gpuDevices[s.device]
}

// enterFallback performs the transition. It reports false when the
// transition was not available, so it fires at most once.
func (s *ServiceState) enterFallback() (from string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != Primary || !gpuDevices[s.device] {
		return "", false
	}
	from = s.device
	s.mode = Fallback
	s.device = FallbackDevice
	s.computeType = FallbackComputeType
	return from, true
}

// RequestStop sets the stop flag. The loop finishes its current iteration.
func (s *ServiceState) RequestStop() {
	s.stop.Store(true)
}

// StopRequested reports whether a stop was requested
func (s *ServiceState) StopRequested() bool {
	return s.stop.Load()
}
