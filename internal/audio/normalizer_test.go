//go:build !integration

package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audio-transcription-platform/internal/domain"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// writePCM16 emits a wav fixture with an arbitrary channel count, which the
// production writer (mono only) cannot produce.
func writePCM16(t *testing.T, path string, interleaved []float64, channels, rate int) {
	t.Helper()
	dataSize := len(interleaved) * 2
	var w bytes.Buffer
	w.WriteString("RIFF")
	binary.Write(&w, binary.LittleEndian, uint32(36+dataSize))
	w.WriteString("WAVE")
	w.WriteString("fmt ")
	binary.Write(&w, binary.LittleEndian, uint32(16))
	binary.Write(&w, binary.LittleEndian, uint16(1))
	binary.Write(&w, binary.LittleEndian, uint16(channels))
	binary.Write(&w, binary.LittleEndian, uint32(rate))
	binary.Write(&w, binary.LittleEndian, uint32(rate*channels*2))
	binary.Write(&w, binary.LittleEndian, uint16(channels*2))
	binary.Write(&w, binary.LittleEndian, uint16(16))
	w.WriteString("data")
	binary.Write(&w, binary.LittleEndian, uint32(dataSize))
	for _, s := range interleaved {
		binary.Write(&w, binary.LittleEndian, int16(math.Round(s*32767)))
	}
	require.NoError(t, os.WriteFile(path, w.Bytes(), 0o644))
}

func sine(freq float64, rate int, seconds float64, amp float64) []float64 {
	n := int(float64(rate) * seconds)
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return out
}

func TestNormalizeProducesMono16k(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "stereo.wav")

	// 2-second 440 Hz stereo clip at 44.1 kHz
	mono := sine(440, 44100, 2.0, 0.4)
	interleaved := make([]float64, 0, len(mono)*2)
	for _, s := range mono {
		interleaved = append(interleaved, s, s)
	}
	writePCM16(t, src, interleaved, 2, 44100)

	n := NewNormalizer(testLogger())
	outPath, err := n.Normalize(context.Background(), src, Options{LoudnessNormalize: true})
	require.NoError(t, err)

	buf, err := readWAV(outPath)
	require.NoError(t, err)
	assert.Equal(t, 1, buf.channels)
	assert.Equal(t, TargetSampleRate, buf.sampleRate)

	dur, err := n.Duration(outPath)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, dur, 0.01, "duration survives resampling within tolerance")
}

func TestResampleLinearLength(t *testing.T) {
	cases := []struct {
		n, from, to int
	}{
		{44100, 44100, 16000},
		{48000, 48000, 16000},
		{16000, 16000, 16000},
		{1000, 8000, 16000},
	}
	for _, tc := range cases {
		got := resampleLinear(make([]float64, tc.n), tc.from, tc.to)
		want := int(math.Round(float64(tc.n) / float64(tc.from) * float64(tc.to)))
		assert.Len(t, got, want, "resampled length for %d @%d->%d", tc.n, tc.from, tc.to)
	}
}

func TestResampleLinearPreservesEndpoints(t *testing.T) {
	in := []float64{0, 0.25, 0.5, 0.75, 1.0}
	out := resampleLinear(in, 10, 20)
	require.NotEmpty(t, out)
	assert.InDelta(t, 0.0, out[0], 1e-12)
	assert.InDelta(t, 1.0, out[len(out)-1], 1e-12)
}

func TestNormalizeLoudness(t *testing.T) {
	t.Run("hits the target RMS", func(t *testing.T) {
		in := sine(440, 16000, 1.0, 0.05)
		out := normalizeLoudness(in, DefaultTargetDB)
		targetRMS := math.Pow(10, DefaultTargetDB/20)
		assert.InDelta(t, targetRMS, rms(out), targetRMS*0.05)
	})

	t.Run("is idempotent within tolerance", func(t *testing.T) {
		in := sine(440, 16000, 1.0, 0.3)
		once := normalizeLoudness(in, DefaultTargetDB)
		twice := normalizeLoudness(once, DefaultTargetDB)
		for i := range once {
			assert.InDelta(t, once[i], twice[i], 1e-9)
		}
	})

	t.Run("silent buffer passes through unchanged", func(t *testing.T) {
		in := make([]float64, 1600)
		out := normalizeLoudness(in, DefaultTargetDB)
		assert.Equal(t, in, out)
	})

	t.Run("never exceeds the guard ceiling", func(t *testing.T) {
		// heavily asymmetric signal: loudness gain would push peaks past 1.0
		in := make([]float64, 16000)
		for i := range in {
			in[i] = 0.001
		}
		in[500] = 0.9
		out := normalizeLoudness(in, -3.0)
		peak := 0.0
		for _, s := range out {
			if a := math.Abs(s); a > peak {
				peak = a
			}
		}
		assert.LessOrEqual(t, peak, clipGuardCeiling+1e-9)
	})
}

func TestClipGuard(t *testing.T) {
	in := []float64{0.5, -1.5, 0.2}
	out := clipGuard(in)
	assert.InDelta(t, clipGuardCeiling, math.Abs(out[1]), 1e-12)
	assert.InDelta(t, 0.5*clipGuardCeiling/1.5, out[0], 1e-12)

	// untouched when already in range
	clean := []float64{0.1, -0.9}
	assert.Equal(t, clean, clipGuard(clean))
}

func TestMixToMono(t *testing.T) {
	interleaved := []float64{1, 0, 0.5, -0.5, -1, 1}
	mono := mixToMono(interleaved, 2)
	require.Len(t, mono, 3)
	assert.InDelta(t, 0.5, mono[0], 1e-12)
	assert.InDelta(t, 0.0, mono[1], 1e-12)
	assert.InDelta(t, 0.0, mono[2], 1e-12)
}

func TestWAVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.wav")
	in := sine(1000, TargetSampleRate, 0.25, 0.8)
	require.NoError(t, writeWAV(path, in, TargetSampleRate))

	buf, err := readWAV(path)
	require.NoError(t, err)
	assert.Equal(t, 1, buf.channels)
	assert.Equal(t, TargetSampleRate, buf.sampleRate)
	require.Len(t, buf.samples, len(in))
	for i := 0; i < len(in); i += 97 {
		assert.InDelta(t, in[i], buf.samples[i], 1.0/32768+1e-6)
	}
}

func TestUnreadableSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.wav")
	require.NoError(t, os.WriteFile(path, []byte("this is not audio at all"), 0o644))

	n := NewNormalizer(testLogger())
	_, err := n.Normalize(context.Background(), path, Options{})
	assert.True(t, errors.Is(err, domain.ErrUnreadableAudio), "got %v", err)
}

func TestSpectralSubtractKeepsLength(t *testing.T) {
	in := sine(440, 16000, 1.0, 0.3)
	out := spectralSubtract(in)
	assert.Len(t, out, len(in))

	// short clips pass through untouched
	short := sine(440, 16000, 0.01, 0.3)
	assert.Equal(t, short, spectralSubtract(short))
}

func TestSpectralSubtractReducesNoiseFloor(t *testing.T) {
	rate := 16000
	n := rate * 2
	in := make([]float64, n)
	// deterministic pseudo-noise floor with a tone burst in the middle
	seed := uint64(42)
	for i := range in {
		seed = seed*6364136223846793005 + 1442695040888963407
		in[i] = (float64(seed>>11)/float64(1<<53) - 0.5) * 0.02
	}
	for i := rate / 2; i < rate; i++ {
		in[i] += 0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(rate))
	}

	out := spectralSubtract(in)

	// RMS over a noise-only region must drop
	noiseIn := rms(in[rate+denoiseFrameSize : n-denoiseFrameSize])
	noiseOut := rms(out[rate+denoiseFrameSize : n-denoiseFrameSize])
	assert.Less(t, noiseOut, noiseIn)
}
