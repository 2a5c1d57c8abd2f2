package audio

import (
	"math"
	"math/cmplx"
	"sort"
)

// Stationary-noise spectral subtraction. The noise profile is estimated from
// the quietest frames of the clip itself, so no silence lead-in is required.
const (
	denoiseFrameSize    = 512
	denoiseHopSize      = denoiseFrameSize / 2
	denoisePropDecrease = 0.5
	// fraction of frames treated as the stationary noise sample
	denoiseNoiseFrames = 0.1
	// magnitudes never drop below this share of their input value
	denoiseSpectralFloor = 0.05
)

// fft computes an in-place radix-2 Cooley-Tukey transform. len(x) must be a
// power of two. inverse applies the conjugate transform without the 1/N
// scaling; callers that need it divide themselves.
func fft(x []complex128, inverse bool) {
	n := len(x)
	if n <= 1 {
		return
	}

	// bit-reversal permutation
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j |= bit
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}

	for length := 2; length <= n; length <<= 1 {
		angle := 2 * math.Pi / float64(length)
		if !inverse {
			angle = -angle
		}
		wl := cmplx.Exp(complex(0, angle))
		for start := 0; start < n; start += length {
			w := complex(1, 0)
			for k := 0; k < length/2; k++ {
				u := x[start+k]
				v := x[start+k+length/2] * w
				x[start+k] = u + v
				x[start+k+length/2] = u - v
				w *= wl
			}
		}
	}
}

func hannWindow(size int) []float64 {
	w := make([]float64, size)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size-1)))
	}
	return w
}

// spectralSubtract removes an estimated stationary noise floor from mono
// samples. Clips shorter than one frame are returned unchanged.
func spectralSubtract(samples []float64) []float64 {
	if len(samples) < denoiseFrameSize {
		return samples
	}

	window := hannWindow(denoiseFrameSize)
	numFrames := 1 + (len(samples)-denoiseFrameSize)/denoiseHopSize
	bins := denoiseFrameSize/2 + 1

	// First pass: magnitude spectra and per-frame energy.
	spectra := make([][]complex128, numFrames)
	energies := make([]float64, numFrames)
	for f := 0; f < numFrames; f++ {
		frame := make([]complex128, denoiseFrameSize)
		var energy float64
		for i := 0; i < denoiseFrameSize; i++ {
			s := samples[f*denoiseHopSize+i] * window[i]
			frame[i] = complex(s, 0)
			energy += s * s
		}
		fft(frame, false)
		spectra[f] = frame
		energies[f] = energy
	}

	// Noise profile: mean magnitude per bin over the quietest frames.
	order := make([]int, numFrames)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return energies[order[a]] < energies[order[b]] })
	noiseCount := int(float64(numFrames) * denoiseNoiseFrames)
	if noiseCount < 1 {
		noiseCount = 1
	}
	noiseMag := make([]float64, bins)
	for _, f := range order[:noiseCount] {
		for b := 0; b < bins; b++ {
			noiseMag[b] += cmplx.Abs(spectra[f][b])
		}
	}
	for b := range noiseMag {
		noiseMag[b] /= float64(noiseCount)
	}

	// Second pass: subtract, keep phase, overlap-add.
	out := make([]float64, len(samples))
	norm := make([]float64, len(samples))
	for f := 0; f < numFrames; f++ {
		frame := spectra[f]
		for b := 0; b < bins; b++ {
			mag := cmplx.Abs(frame[b])
			phase := cmplx.Phase(frame[b])
			cleaned := mag - denoisePropDecrease*noiseMag[b]
			if floor := mag * denoiseSpectralFloor; cleaned < floor {
				cleaned = floor
			}
			rebuilt := cmplx.Rect(cleaned, phase)
			frame[b] = rebuilt
			if b > 0 && b < denoiseFrameSize/2 {
				frame[denoiseFrameSize-b] = cmplx.Conj(rebuilt)
			}
		}
		fft(frame, true)
		for i := 0; i < denoiseFrameSize; i++ {
			idx := f*denoiseHopSize + i
			out[idx] += real(frame[i]) / float64(denoiseFrameSize) * window[i]
			norm[idx] += window[i] * window[i]
		}
	}
	for i := range out {
		if norm[i] > 1e-9 {
			out[i] /= norm[i]
		} else {
			out[i] = samples[i]
		}
	}
	return out
}
