package audio

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func sine(n, rate int, freq float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestEncodeWAV(t *testing.T) {
	samples := sine(1600, 16000, 440)

	wavData, err := EncodeWAVBytes(samples, 16000)
	if err != nil {
		t.Fatalf("EncodeWAVBytes failed: %v", err)
	}

	// 44-byte canonical header plus 2 bytes per sample
	expectedSize := 44 + len(samples)*2
	if len(wavData) != expectedSize {
		t.Errorf("Expected WAV size %d, got %d", expectedSize, len(wavData))
	}
	if string(wavData[0:4]) != "RIFF" || string(wavData[8:12]) != "WAVE" {
		t.Errorf("Missing RIFF/WAVE header: %q", wavData[:12])
	}

	decoded, rate, err := DecodeWAV(bytes.NewReader(wavData))
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if rate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", rate)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(decoded))
	}
	for i := range samples {
		if math.Abs(float64(decoded[i]-samples[i])) > 1.0/16384 {
			t.Fatalf("Sample %d: expected %f, got %f", i, samples[i], decoded[i])
		}
	}
}

func TestEncodeWAVErrors(t *testing.T) {
	if _, err := EncodeWAVBytes(nil, 16000); err == nil {
		t.Error("Expected error for empty samples")
	}
	if _, err := EncodeWAVBytes([]float32{0.1}, 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}

func TestDecodeWAVInvalid(t *testing.T) {
	if _, _, err := DecodeWAV(bytes.NewReader([]byte("not a wav file at all"))); err == nil {
		t.Error("Expected error for invalid data")
	}
}

func TestDumper(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dumps")
	d, err := NewDumper(dir)
	if err != nil {
		t.Fatalf("NewDumper failed: %v", err)
	}

	chunk := &AudioChunk{Sequence: 7, SampleRate: 16000, Samples: sine(800, 16000, 220)}
	path, err := d.Dump(chunk)
	if err != nil {
		t.Fatalf("Dump failed: %v", err)
	}
	if filepath.Base(path) != "chunk-000007.wav" {
		t.Errorf("Unexpected dump file name %s", filepath.Base(path))
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open dump failed: %v", err)
	}
	defer f.Close()

	decoded, rate, err := DecodeWAV(f)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if rate != 16000 || len(decoded) != 800 {
		t.Errorf("Expected 800 samples at 16000 Hz, got %d at %d", len(decoded), rate)
	}
	if d.Written() != 1 {
		t.Errorf("Expected 1 chunk written, got %d", d.Written())
	}
}
