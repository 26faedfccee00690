package audio

import "math"

// Sample is the set of sample types the converter works on. Capture drivers
// deliver int16, the inference path consumes normalized float32.
type Sample interface {
	~int16 | ~float32
}

// Downmix collapses interleaved multi-channel samples to mono by averaging
// the channels of every frame. Integer samples are truncated toward zero.
//
// When the sample count is not a multiple of the channel count the frame
// layout cannot be trusted, so the first channel is taken with a stride
// instead of failing.
func Downmix[S Sample](interleaved []S, channels int) []S {
	if channels <= 1 {
		return interleaved
	}
	if len(interleaved)%channels != 0 {
		out := make([]S, 0, len(interleaved)/channels+1)
		for i := 0; i < len(interleaved); i += channels {
			out = append(out, interleaved[i])
		}
		return out
	}

	frames := len(interleaved) / channels
	out := make([]S, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += float64(interleaved[base+c])
		}
		out[i] = S(sum / float64(channels))
	}
	return out
}

// ResampledLength returns the number of samples Resample produces for n input
// samples.
func ResampledLength(n, srcRate, dstRate int) int {
	if srcRate == dstRate || srcRate <= 0 || dstRate <= 0 {
		return n
	}
	return int(math.Round(float64(n) * float64(dstRate) / float64(srcRate)))
}

// Resample converts mono samples between two sample rates with linear
// interpolation. Input and output positions are both spread evenly over
// [0, 1], so the first and last samples are preserved.
func Resample[S Sample](mono []S, srcRate, dstRate int) []S {
	if srcRate == dstRate || srcRate <= 0 || dstRate <= 0 {
		return mono
	}
	n := len(mono)
	m := ResampledLength(n, srcRate, dstRate)
	if n == 0 || m == 0 {
		return []S{}
	}

	out := make([]S, m)
	if n == 1 {
		for j := range out {
			out[j] = mono[0]
		}
		return out
	}
	if m == 1 {
		out[0] = mono[0]
		return out
	}

	// x_new[j] = j/(m-1) mapped onto input index space [0, n-1].
	scale := float64(n-1) / float64(m-1)
	for j := 0; j < m; j++ {
		pos := float64(j) * scale
		i := int(pos)
		if i >= n-1 {
			out[j] = mono[n-1]
			continue
		}
		frac := pos - float64(i)
		a := float64(mono[i])
		b := float64(mono[i+1])
		out[j] = S(a + (b-a)*frac)
	}
	return out
}

// Int16ToFloat32 normalizes PCM16 samples to [-1, 1].
func Int16ToFloat32(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v) / 32768.0
	}
	return out
}

// Float32ToInt16 converts normalized samples back to PCM16, clipping values
// outside [-1, 1].
func Float32ToInt16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, v := range in {
		s := float64(v) * 32768.0
		switch {
		case s > math.MaxInt16:
			s = math.MaxInt16
		case s < math.MinInt16:
			s = math.MinInt16
		}
		out[i] = int16(s)
	}
	return out
}

// Normalize turns one captured frame into mono float32 samples at dstRate.
// Integer frames are downmixed and resampled in the int16 domain, matching
// the capture path, and normalized last.
func Normalize(f Frame, dstRate int) []float32 {
	if len(f.Float) > 0 {
		mono := Downmix(f.Float, f.Channels)
		return Resample(mono, f.SampleRate, dstRate)
	}
	mono := Downmix(f.Int16, f.Channels)
	return Int16ToFloat32(Resample(mono, f.SampleRate, dstRate))
}
