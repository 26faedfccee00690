package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// StreamSource reads raw PCM16 LE mono 16 kHz audio from a byte stream in
// fixed-size reads. The format is fixed by contract, so no negotiation or
// conversion happens here.
type StreamSource struct {
	r       io.Reader
	closer  io.Closer
	buffer  *Buffer
	readBuf []byte
}

// NewStreamSource wraps r. readSize <= 0 selects PCMReadSize.
func NewStreamSource(r io.Reader, readSize int) *StreamSource {
	if readSize <= 0 {
		readSize = PCMReadSize
	}
	s := &StreamSource{
		r:       r,
		buffer:  NewBuffer(PCMSampleRate),
		readBuf: make([]byte, readSize),
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Next performs one blocking read and returns the complete samples it
// produced. It returns io.EOF when the stream ends.
func (s *StreamSource) Next(ctx context.Context) ([]float32, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	n, err := s.r.Read(s.readBuf)
	if n > 0 {
		s.buffer.AddAudioData(s.readBuf[:n])
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			return s.buffer.TakeSamples(), n > 0, io.EOF
		}
		return nil, false, fmt.Errorf("%w: read: %v", ErrStreamIO, err)
	}
	samples := s.buffer.TakeSamples()
	return samples, len(samples) > 0, nil
}

// Stats returns the underlying byte buffer statistics
func (s *StreamSource) Stats() BufferStats {
	return s.buffer.GetStats()
}

// Close closes the underlying reader when it is closable.
func (s *StreamSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
