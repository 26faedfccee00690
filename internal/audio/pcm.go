package audio

import (
	"encoding/binary"
	"errors"
)

// Inbound stream format: signed 16-bit little-endian mono at 16 kHz with no
// framing or delimiters.
const (
	PCMSampleRate     = 16000
	PCMBytesPerSample = 2
	PCMReadSize       = 4096 // bytes per read
)

// ErrStreamIO marks a read or write failure on the audio or output boundary.
// It is never retried: it means the pipe on the other side is gone.
var ErrStreamIO = errors.New("stream i/o error")

// DecodePCM16LE decodes every complete sample in b. A trailing odd byte is
// ignored.
func DecodePCM16LE(b []byte) []int16 {
	n := len(b) / PCMBytesPerSample
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}

// EncodePCM16LE is the inverse of DecodePCM16LE
func EncodePCM16LE(samples []int16) []byte {
	out := make([]byte, len(samples)*PCMBytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}
