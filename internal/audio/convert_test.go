package audio

import (
	"math"
	"testing"
)

func TestDownmix(t *testing.T) {
	tests := []struct {
		name     string
		in       []int16
		channels int
		want     []int16
	}{
		{"mono passthrough", []int16{1, 2, 3}, 1, []int16{1, 2, 3}},
		{"stereo average", []int16{100, 200, -100, -300}, 2, []int16{150, -200}},
		{"truncates toward zero", []int16{1, 2, -1, -2}, 2, []int16{1, -1}},
		{"six channels", []int16{6, 6, 6, 6, 6, 6, 0, 0, 0, 0, 0, 12}, 6, []int16{6, 2}},
		{"ragged falls back to stride", []int16{10, 20, 30, 40, 50}, 2, []int16{10, 30, 50}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Downmix(tt.in, tt.channels)
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %d samples, got %d", len(tt.want), len(got))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Sample %d: expected %d, got %d", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestDownmixLengthAndMean(t *testing.T) {
	const channels = 4
	const frames = 480
	in := make([]float32, frames*channels)
	for i := range in {
		in[i] = float32(i%channels) * 0.1
	}

	out := Downmix(in, channels)
	if len(out) != frames {
		t.Fatalf("Expected %d samples, got %d", frames, len(out))
	}
	want := float32((0 + 0.1 + 0.2 + 0.3) / 4)
	for i, v := range out {
		if math.Abs(float64(v-want)) > 1e-6 {
			t.Fatalf("Sample %d: expected %f, got %f", i, want, v)
		}
	}
}

func TestResampleLength(t *testing.T) {
	tests := []struct {
		n, src, dst int
		want        int
	}{
		{48000, 48000, 16000, 16000},
		{44100, 44100, 16000, 16000},
		{1024, 44100, 16000, 372},
		{1000, 16000, 16000, 1000},
		{3, 8000, 16000, 6},
		{0, 48000, 16000, 0},
	}

	for _, tt := range tests {
		got := Resample(make([]float32, tt.n), tt.src, tt.dst)
		if len(got) != tt.want {
			t.Errorf("Resample(%d, %d->%d): expected %d samples, got %d", tt.n, tt.src, tt.dst, tt.want, len(got))
		}
		if ResampledLength(tt.n, tt.src, tt.dst) != tt.want {
			t.Errorf("ResampledLength(%d, %d->%d) disagrees with Resample", tt.n, tt.src, tt.dst)
		}
	}
}

func TestResampleIdentityAndEndpoints(t *testing.T) {
	in := []float32{0, 0.5, 1, 0.5, 0, -0.5}

	same := Resample(in, 16000, 16000)
	if &same[0] != &in[0] {
		t.Error("Expected equal rates to return the input unchanged")
	}

	up := Resample(in, 8000, 16000)
	if up[0] != in[0] {
		t.Errorf("Expected first sample %f, got %f", in[0], up[0])
	}
	if up[len(up)-1] != in[len(in)-1] {
		t.Errorf("Expected last sample %f, got %f", in[len(in)-1], up[len(up)-1])
	}
	for i, v := range up {
		if v < -0.5 || v > 1 {
			t.Errorf("Sample %d out of input range: %f", i, v)
		}
	}
}

func TestResampleLinearRamp(t *testing.T) {
	in := make([]float32, 48)
	for i := range in {
		in[i] = float32(i)
	}
	out := Resample(in, 48000, 16000)
	if len(out) != 16 {
		t.Fatalf("Expected 16 samples, got %d", len(out))
	}
	// A linear ramp stays linear under linear interpolation.
	step := float64(47) / 15
	for j, v := range out {
		want := float64(j) * step
		if math.Abs(float64(v)-want) > 1e-3 {
			t.Errorf("Sample %d: expected %f, got %f", j, want, v)
		}
	}
}

func TestInt16Float32Conversion(t *testing.T) {
	f := Int16ToFloat32([]int16{0, 16384, -32768, 32767})
	if f[0] != 0 || f[1] != 0.5 || f[2] != -1 {
		t.Errorf("Unexpected normalization: %v", f)
	}
	if f[3] >= 1 {
		t.Errorf("Expected max sample below 1, got %f", f[3])
	}

	back := Float32ToInt16([]float32{0.5, -1, 1.5, -2})
	want := []int16{16384, -32768, 32767, -32768}
	for i := range want {
		if back[i] != want[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, want[i], back[i])
		}
	}
}

func TestNormalizeFrame(t *testing.T) {
	// 48 kHz stereo, 0.1 s
	in := make([]int16, 4800*2)
	for i := range in {
		in[i] = 16384
	}
	out := Normalize(Frame{Int16: in, Channels: 2, SampleRate: 48000}, TargetSampleRate)
	if len(out) != 1600 {
		t.Fatalf("Expected 1600 samples, got %d", len(out))
	}
	for i, v := range out {
		if v != 0.5 {
			t.Fatalf("Sample %d: expected 0.5, got %f", i, v)
		}
	}

	float := Normalize(Frame{Float: []float32{0.2, 0.4}, Channels: 2, SampleRate: TargetSampleRate}, TargetSampleRate)
	if len(float) != 1 || math.Abs(float64(float[0])-0.3) > 1e-6 {
		t.Errorf("Expected [0.3], got %v", float)
	}
}
