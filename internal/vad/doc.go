// Package vad provides an energy-based voice activity detector. It scores
// fixed windows by RMS energy, groups voiced windows into segments and
// bridges pauses shorter than the minimum silence.
package vad
