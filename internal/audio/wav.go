package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth  = 16
	wavFormatPCM = 1
)

// EncodeWAV writes mono float32 samples to w as 16-bit PCM WAV
func EncodeWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return fmt.Errorf("cannot encode empty audio samples")
	}
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	pcm := Float32ToInt16(samples)
	data := make([]int, len(pcm))
	for i, v := range pcm {
		data[i] = int(v)
	}

	enc := wav.NewEncoder(w, sampleRate, wavBitDepth, 1, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV: %w", err)
	}
	return nil
}

// EncodeWAVBytes encodes samples into an in-memory WAV file
func EncodeWAVBytes(samples []float32, sampleRate int) ([]byte, error) {
	ws := &memWriteSeeker{}
	if err := EncodeWAV(ws, samples, sampleRate); err != nil {
		return nil, err
	}
	return ws.buf, nil
}

// DecodeWAV reads a 16-bit PCM WAV file and returns its audio downmixed to
// mono float32 at the file's own sample rate.
func DecodeWAV(r io.ReadSeeker) ([]float32, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid WAV file")
	}
	if dec.BitDepth != wavBitDepth {
		return nil, 0, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read audio samples: %w", err)
	}
	if len(buf.Data) == 0 {
		return nil, 0, fmt.Errorf("no audio data found")
	}

	pcm := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		pcm[i] = int16(v)
	}
	return Int16ToFloat32(Downmix(pcm, int(dec.NumChans))), int(dec.SampleRate), nil
}

// memWriteSeeker is the in-memory io.WriteSeeker the WAV encoder needs to
// patch header sizes after the data is written.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		if end > cap(m.buf) {
			grown := make([]byte, end, end*2)
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:end]
		}
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(m.pos) + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}
	m.pos = int(abs)
	return abs, nil
}

// Dumper writes every chunk it is given to a WAV file in a directory. It is
// a debugging aid for checking what the engine actually heard.
type Dumper struct {
	dir string

	mu      sync.Mutex
	written uint64
}

// NewDumper creates dir if needed and returns a Dumper writing into it
func NewDumper(dir string) (*Dumper, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dump dir: %w", err)
	}
	return &Dumper{dir: dir}, nil
}

// Dump writes chunk to <dir>/chunk-<sequence>.wav and returns the path
func (d *Dumper) Dump(chunk *AudioChunk) (string, error) {
	path := filepath.Join(d.dir, fmt.Sprintf("chunk-%06d.wav", chunk.Sequence))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create dump file: %w", err)
	}
	if err := EncodeWAV(f, chunk.Samples, chunk.SampleRate); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close dump file: %w", err)
	}

	d.mu.Lock()
	d.written++
	d.mu.Unlock()
	return path, nil
}

// Written returns how many chunks were dumped
func (d *Dumper) Written() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.written
}
