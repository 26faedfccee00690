package audio

import (
	"sync"
	"time"
)

// Buffer accumulates raw little-endian PCM16 bytes from a byte stream. Reads
// are not aligned to samples, so an odd trailing byte is kept until the next
// write completes it.
type Buffer struct {
	sampleRate int

	// Audio data storage
	rawAudioData []byte

	// Timing and metadata
	lastUpdate time.Time
	totalBytes uint64
	totalReads uint64

	mu sync.RWMutex
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	TotalReads   uint64  `json:"total_reads"`
	TotalBytes   uint64  `json:"total_bytes"`
	TotalSeconds float64 `json:"total_seconds"`
	Pending      int     `json:"pending_bytes"`
}

// NewBuffer creates a new PCM16 byte buffer
func NewBuffer(sampleRate int) *Buffer {
	return &Buffer{
		sampleRate:   sampleRate,
		rawAudioData: make([]byte, 0, PCMReadSize*2),
		lastUpdate:   time.Now(),
	}
}

// AddAudioData appends raw bytes as read from the stream
func (b *Buffer) AddAudioData(rawData []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rawAudioData = append(b.rawAudioData, rawData...)
	b.lastUpdate = time.Now()
	b.totalBytes += uint64(len(rawData))
	b.totalReads++
}

// TakeSamples removes every complete sample from the buffer and returns it
// normalized to [-1, 1]
func (b *Buffer) TakeSamples() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.rawAudioData) / PCMBytesPerSample
	if n == 0 {
		return nil
	}
	used := n * PCMBytesPerSample
	samples := Int16ToFloat32(DecodePCM16LE(b.rawAudioData[:used]))

	rest := len(b.rawAudioData) - used
	copy(b.rawAudioData, b.rawAudioData[used:])
	b.rawAudioData = b.rawAudioData[:rest]
	return samples
}

// Size returns the number of buffered bytes
func (b *Buffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rawAudioData)
}

// GetLastUpdate returns the time of the last buffer update
func (b *Buffer) GetLastUpdate() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdate
}

// GetStats returns current buffer statistics
func (b *Buffer) GetStats() BufferStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	seconds := float64(0)
	if b.sampleRate > 0 {
		seconds = float64(b.totalBytes/2) / float64(b.sampleRate)
	}
	return BufferStats{
		TotalReads:   b.totalReads,
		TotalBytes:   b.totalBytes,
		TotalSeconds: seconds,
		Pending:      len(b.rawAudioData),
	}
}
