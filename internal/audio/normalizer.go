// Package audio conditions uploaded recordings for speech recognition:
// mono mixdown, resampling to the engine's preferred rate, optional
// stationary-noise reduction and RMS loudness normalization. All transforms
// are deterministic functions over an in-memory sample buffer.
package audio

import (
	"context"
	"math"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// TargetSampleRate is the rate speech engines expect.
const TargetSampleRate = 16000

// DefaultTargetDB is the RMS loudness target in dBFS.
const DefaultTargetDB = -20.0

// clipGuardCeiling rescales any peak above full scale down to this level.
const clipGuardCeiling = 0.95

// Options toggles the optional normalization stages.
type Options struct {
	NoiseReduction    bool
	LoudnessNormalize bool
	// TargetDB overrides the loudness target; zero means DefaultTargetDB.
	TargetDB float64
}

// Normalizer converts any decodable audio source into an uncompressed,
// single-channel waveform at the target rate.
type Normalizer struct {
	decoder *ffmpegDecoder
	log     *zerolog.Logger
}

func NewNormalizer(logger *zerolog.Logger) *Normalizer {
	l := logger.With().Str("component", "Normalizer").Logger()
	return &Normalizer{decoder: newFFmpegDecoder(), log: &l}
}

// Normalize conditions the source audio and writes the result as 16-bit PCM
// mono 16 kHz WAV next to the source. Returns the normalized path.
func (n *Normalizer) Normalize(ctx context.Context, sourcePath string, opts Options) (string, error) {
	buf, err := n.decode(ctx, sourcePath)
	if err != nil {
		return "", err
	}
	n.log.Info().Str("source", sourcePath).
		Int("channels", buf.channels).
		Int("sample_rate", buf.sampleRate).
		Float64("duration_sec", buf.durationSeconds()).
		Msg("decoded source audio")

	samples := mixToMono(buf.samples, buf.channels)

	if buf.sampleRate != TargetSampleRate {
		n.log.Info().Int("from", buf.sampleRate).Int("to", TargetSampleRate).Msg("resampling")
		samples = resampleLinear(samples, buf.sampleRate, TargetSampleRate)
	}

	if opts.NoiseReduction {
		if len(samples) < denoiseFrameSize {
			n.log.Warn().Msg("clip too short for noise reduction, skipping")
		} else {
			samples = spectralSubtract(samples)
		}
	}

	if opts.LoudnessNormalize {
		target := opts.TargetDB
		if target == 0 {
			target = DefaultTargetDB
		}
		samples = normalizeLoudness(samples, target)
	}

	// Clip guard over the whole stage, so overshoot from any sub-step (not
	// just loudness) is caught before encoding.
	samples = clipGuard(samples)

	outPath := normalizedPath(sourcePath)
	if err := writeWAV(outPath, samples, TargetSampleRate); err != nil {
		return "", err
	}
	n.log.Info().Str("normalized", outPath).Msg("normalization completed")
	return outPath, nil
}

// Duration returns the clip length in seconds, derived from sample count
// over rate. Read-only; works on any WAV the normalizer emits.
func (n *Normalizer) Duration(path string) (float64, error) {
	buf, err := readWAV(path)
	if err != nil {
		return 0, err
	}
	return buf.durationSeconds(), nil
}

func (n *Normalizer) decode(ctx context.Context, path string) (*buffer, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		if buf, err := readWAV(path); err == nil {
			return buf, nil
		}
		// fall through: let ffmpeg try non-PCM wav variants
	}
	if !n.decoder.available() {
		// no ffmpeg on PATH: the native reader is the only decoder
		return readWAV(path)
	}
	return n.decoder.decode(ctx, path)
}

func normalizedPath(sourcePath string) string {
	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	return filepath.Join(filepath.Dir(sourcePath), base+"_normalized.wav")
}

// mixToMono averages interleaved channels with no weighting.
func mixToMono(samples []float64, channels int) []float64 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]float64, frames)
	for f := 0; f < frames; f++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += samples[f*channels+c]
		}
		mono[f] = sum / float64(channels)
	}
	return mono
}

// resampleLinear resamples by linear interpolation over a time-aligned index
// grid. Favors reproducibility over spectral fidelity.
func resampleLinear(samples []float64, fromRate, toRate int) []float64 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}
	outLen := int(math.Round(float64(len(samples)) / float64(fromRate) * float64(toRate)))
	if outLen < 1 {
		outLen = 1
	}
	out := make([]float64, outLen)
	if outLen == 1 {
		out[0] = samples[0]
		return out
	}
	// index grid spans [0, len-1] inclusive, matching np.linspace
	step := float64(len(samples)-1) / float64(outLen-1)
	for i := range out {
		pos := float64(i) * step
		lo := int(pos)
		if lo >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(lo)
		out[i] = samples[lo]*(1-frac) + samples[lo+1]*frac
	}
	return out
}

func rms(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// normalizeLoudness scales the buffer so its RMS matches the target dBFS
// level. A silent buffer passes through unchanged. Peaks pushed past full
// scale are rescaled to the guard ceiling so the result stays encodable.
func normalizeLoudness(samples []float64, targetDB float64) []float64 {
	level := rms(samples)
	if level == 0 {
		return samples
	}
	targetRMS := math.Pow(10, targetDB/20)
	gain := targetRMS / level

	out := make([]float64, len(samples))
	peak := 0.0
	for i, s := range samples {
		v := s * gain
		out[i] = v
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	if peak > 1.0 {
		scale := clipGuardCeiling / peak
		for i := range out {
			out[i] *= scale
		}
	}
	return out
}

// clipGuard rescales the whole buffer when any peak exceeds full scale.
func clipGuard(samples []float64) []float64 {
	peak := 0.0
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	if peak <= 1.0 {
		return samples
	}
	scale := clipGuardCeiling / peak
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s * scale
	}
	return out
}
