// Package engine exposes speech recognition as a single capability:
// transcribe mono 16 kHz float32 samples into timed segments. Backends are a
// remote OpenAI-compatible transcription endpoint, a local whisper.cpp model
// (built with the whispercpp tag) and a stub for development.
//
// Engine failures caused by the GPU runtime or a native library are reported
// as *HardwareError so callers can decide to fall back to the CPU.
package engine
