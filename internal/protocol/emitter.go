package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/eduardohotta/cortex/internal/audio"
	"github.com/eduardohotta/cortex/internal/device"
	"github.com/eduardohotta/cortex/internal/transcript"
)

// Run modes reported in the ready notice
const (
	ModeCapture = "capture"
	ModeStdin   = "stdin"
)

// Message kinds, used for statistics and metrics labels
const (
	KindStatus     = "status"
	KindWarning    = "warning"
	KindError      = "error"
	KindTranscript = "transcript"
	KindDevices    = "devices"
)

// Status values
const (
	StatusLoadingModel = "loading_model"
	StatusReady        = "ready"
	StatusFallbackCPU  = "fallback_cpu"
)

type loadingModelMessage struct {
	Status string `json:"status"`
	Model  string `json:"model"`
	Device string `json:"device"`
}

type readyMessage struct {
	Status string `json:"status"`
	Model  string `json:"model"`
	Mode   string `json:"mode"`
	Device any    `json:"device,omitempty"`
}

type fallbackMessage struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type warningMessage struct {
	Warning string `json:"warning"`
}

type errorMessage struct {
	Error string `json:"error"`
}

// Mirror receives a copy of every line written. Publish must not block.
type Mirror interface {
	Publish(line []byte)
}

// Emitter writes newline-delimited JSON messages to the consumer. Every line
// is flushed immediately; the consumer reads incrementally.
type Emitter struct {
	w       *bufio.Writer
	mirrors []Mirror
	counts  map[string]uint64
	observe func(kind string)

	mu sync.Mutex
}

// NewEmitter creates an emitter writing to w
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{
		w:      bufio.NewWriter(w),
		counts: make(map[string]uint64),
	}
}

// AddMirror registers a subscriber for copies of every line
func (e *Emitter) AddMirror(m Mirror) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mirrors = append(e.mirrors, m)
}

// OnEmit registers a hook called with the kind of every line written
func (e *Emitter) OnEmit(fn func(kind string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observe = fn
}

// LoadingModel announces that the model is being loaded
func (e *Emitter) LoadingModel(model, device string) error {
	return e.emit(KindStatus, loadingModelMessage{Status: StatusLoadingModel, Model: model, Device: device})
}

// Ready announces a loaded model and the run mode. device is the capture
// device id and is omitted when nil.
func (e *Emitter) Ready(model, mode string, device *int) error {
	msg := readyMessage{Status: StatusReady, Model: model, Mode: mode}
	if device != nil {
		msg.Device = *device
	}
	return e.emit(KindStatus, msg)
}

// FallbackCPU announces the switch to CPU inference
func (e *Emitter) FallbackCPU(message string) error {
	return e.emit(KindStatus, fallbackMessage{Status: StatusFallbackCPU, Message: message})
}

// Warning writes a non-fatal notice
func (e *Emitter) Warning(message string) error {
	return e.emit(KindWarning, warningMessage{Warning: message})
}

// Error writes a fatal notice
func (e *Emitter) Error(message string) error {
	return e.emit(KindError, errorMessage{Error: message})
}

// Transcript writes one transcript event
func (e *Emitter) Transcript(ev transcript.Event) error {
	return e.emit(KindTranscript, ev)
}

// Devices writes the device listing as a single JSON array
func (e *Emitter) Devices(devices []device.Descriptor) error {
	if devices == nil {
		devices = []device.Descriptor{}
	}
	return e.emit(KindDevices, devices)
}

func (e *Emitter) emit(kind string, v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", kind, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.w.Write(line); err != nil {
		return fmt.Errorf("%w: write: %v", audio.ErrStreamIO, err)
	}
	if err := e.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("%w: write: %v", audio.ErrStreamIO, err)
	}
	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("%w: flush: %v", audio.ErrStreamIO, err)
	}

	e.counts[kind]++
	if e.observe != nil {
		e.observe(kind)
	}
	for _, m := range e.mirrors {
		m.Publish(line)
	}
	return nil
}

// GetStats returns the number of lines written per kind
func (e *Emitter) GetStats() map[string]uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]uint64, len(e.counts))
	for k, v := range e.counts {
		out[k] = v
	}
	return out
}
