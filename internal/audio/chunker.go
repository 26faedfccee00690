package audio

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AudioChunk represents one fixed-duration window of normalized audio ready
// for transcription
type AudioChunk struct {
	ChunkID    string        `json:"chunk_id"`
	Sequence   uint64        `json:"sequence"`
	SampleRate int           `json:"sample_rate"`
	Samples    []float32     `json:"-"` // Mono float32 in [-1, 1]
	Offset     time.Duration `json:"offset"`   // Position of the first sample in the stream
	Duration   time.Duration `json:"duration"`
	Final      bool          `json:"final"` // Flushed at stream end, may be shorter
}

// ChunkingConfig contains configuration for the chunking process
type ChunkingConfig struct {
	Duration   time.Duration // Length of every full chunk
	MinFlush   time.Duration // Shortest tail worth flushing at stream end
	SampleRate int
}

// Chunker accumulates mono samples and hands them off as fixed-length chunks
type Chunker struct {
	config ChunkingConfig
	target int
	buf    []float32

	// Statistics
	sequence      uint64
	chunksCreated uint64
	samplesSeen   uint64
	totalDuration time.Duration

	mu sync.RWMutex
}

// ChunkerStats represents chunker statistics
type ChunkerStats struct {
	ChunksCreated uint64        `json:"chunks_created"`
	TotalDuration time.Duration `json:"total_duration"`
	CurrentSize   int           `json:"current_chunk_samples"`
	TargetSize    int           `json:"target_chunk_samples"`
}

// NewChunker creates a new audio chunker
func NewChunker(config ChunkingConfig) *Chunker {
	if config.SampleRate <= 0 {
		config.SampleRate = TargetSampleRate
	}
	target := int(math.Round(config.Duration.Seconds() * float64(config.SampleRate)))
	if target < 1 {
		target = 1
	}
	return &Chunker{
		config: config,
		target: target,
		buf:    make([]float32, 0, target),
	}
}

// Append adds samples and returns every chunk that became complete. Chunks
// always hold exactly the target number of samples; the remainder stays
// buffered for the next call.
func (c *Chunker) Append(samples []float32) []*AudioChunk {
	c.mu.Lock()
	defer c.mu.Unlock()

	var chunks []*AudioChunk
	for len(samples) > 0 {
		room := c.target - len(c.buf)
		if room > len(samples) {
			room = len(samples)
		}
		c.buf = append(c.buf, samples[:room]...)
		samples = samples[room:]

		if len(c.buf) == c.target {
			chunks = append(chunks, c.finalizeChunk(false))
		}
	}
	return chunks
}

// Flush hands off whatever is buffered as a final chunk. It returns nil when
// the tail is empty or shorter than the configured minimum.
func (c *Chunker) Flush() *AudioChunk {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.buf) == 0 {
		return nil
	}
	minSamples := int(math.Round(c.config.MinFlush.Seconds() * float64(c.config.SampleRate)))
	if len(c.buf) < minSamples {
		c.samplesSeen += uint64(len(c.buf))
		c.buf = c.buf[:0]
		return nil
	}
	return c.finalizeChunk(true)
}

// finalizeChunk moves the buffered samples into a chunk and resets the buffer
func (c *Chunker) finalizeChunk(final bool) *AudioChunk {
	samples := make([]float32, len(c.buf))
	copy(samples, c.buf)
	c.buf = c.buf[:0]

	rate := time.Duration(c.config.SampleRate)
	chunk := &AudioChunk{
		ChunkID:    uuid.NewString(),
		Sequence:   c.sequence,
		SampleRate: c.config.SampleRate,
		Samples:    samples,
		Offset:     time.Duration(c.samplesSeen) * time.Second / rate,
		Duration:   time.Duration(len(samples)) * time.Second / rate,
		Final:      final,
	}

	// Update statistics
	c.sequence++
	c.chunksCreated++
	c.samplesSeen += uint64(len(samples))
	c.totalDuration += chunk.Duration

	return chunk
}

// Pending returns the number of buffered samples not yet handed off
func (c *Chunker) Pending() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.buf)
}

// Target returns the number of samples in a full chunk
func (c *Chunker) Target() int {
	return c.target
}

// GetStats returns current chunker statistics
func (c *Chunker) GetStats() ChunkerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return ChunkerStats{
		ChunksCreated: c.chunksCreated,
		TotalDuration: c.totalDuration,
		CurrentSize:   len(c.buf),
		TargetSize:    c.target,
	}
}
