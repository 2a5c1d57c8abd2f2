package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"audio-transcription-platform/internal/domain"
)

// buffer is a decoded audio clip: interleaved samples in [-1, 1].
type buffer struct {
	samples    []float64
	channels   int
	sampleRate int
}

// frames is the per-channel sample count.
func (b *buffer) frames() int {
	if b.channels == 0 {
		return 0
	}
	return len(b.samples) / b.channels
}

func (b *buffer) durationSeconds() float64 {
	if b.sampleRate == 0 {
		return 0
	}
	return float64(b.frames()) / float64(b.sampleRate)
}

const (
	wavFormatPCM       = 1
	wavFormatIEEEFloat = 3
)

// readWAV decodes a RIFF/WAVE file carrying 16-bit PCM or 32-bit float
// samples. Anything it cannot parse is reported as unreadable audio; exotic
// containers are the ffmpeg decoder's job.
func readWAV(path string) (*buffer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("audio: read %s: %w", path, err)
	}
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return nil, fmt.Errorf("audio: %s: %w", path, domain.ErrUnreadableAudio)
	}

	var (
		format     uint16
		channels   uint16
		sampleRate uint32
		bitsPerSmp uint16
		data       []byte
	)

	r := bytes.NewReader(raw[12:])
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			break
		}
		chunkID := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])
		body := make([]byte, size)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("audio: %s: truncated %q chunk: %w", path, chunkID, domain.ErrUnreadableAudio)
		}
		// chunks are word-aligned
		if size%2 == 1 {
			_, _ = r.Seek(1, io.SeekCurrent)
		}

		switch chunkID {
		case "fmt ":
			if len(body) < 16 {
				return nil, fmt.Errorf("audio: %s: short fmt chunk: %w", path, domain.ErrUnreadableAudio)
			}
			format = binary.LittleEndian.Uint16(body[0:2])
			channels = binary.LittleEndian.Uint16(body[2:4])
			sampleRate = binary.LittleEndian.Uint32(body[4:8])
			bitsPerSmp = binary.LittleEndian.Uint16(body[14:16])
		case "data":
			data = body
		}
	}

	if channels == 0 || sampleRate == 0 || data == nil {
		return nil, fmt.Errorf("audio: %s: missing fmt or data chunk: %w", path, domain.ErrUnreadableAudio)
	}

	var samples []float64
	switch {
	case format == wavFormatPCM && bitsPerSmp == 16:
		n := len(data) / 2
		samples = make([]float64, n)
		for i := 0; i < n; i++ {
			v := int16(binary.LittleEndian.Uint16(data[2*i:]))
			samples[i] = float64(v) / 32768.0
		}
	case format == wavFormatIEEEFloat && bitsPerSmp == 32:
		n := len(data) / 4
		samples = make([]float64, n)
		for i := 0; i < n; i++ {
			samples[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:])))
		}
	default:
		return nil, fmt.Errorf("audio: %s: wav format %d/%d-bit: %w", path, format, bitsPerSmp, domain.ErrUnreadableAudio)
	}

	return &buffer{
		samples:    samples,
		channels:   int(channels),
		sampleRate: int(sampleRate),
	}, nil
}

// writeWAV writes mono samples as an uncompressed 16-bit PCM waveform.
// Samples outside [-1, 1] are clamped at encode time.
func writeWAV(path string, samples []float64, sampleRate int) error {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	dataSize := len(samples) * 2
	byteRate := sampleRate * channels * bitsPerSample / 8

	buf := make([]byte, 0, 44+dataSize)
	w := bytes.NewBuffer(buf)

	w.WriteString("RIFF")
	binary.Write(w, binary.LittleEndian, uint32(36+dataSize))
	w.WriteString("WAVE")

	w.WriteString("fmt ")
	binary.Write(w, binary.LittleEndian, uint32(16))
	binary.Write(w, binary.LittleEndian, uint16(wavFormatPCM))
	binary.Write(w, binary.LittleEndian, uint16(channels))
	binary.Write(w, binary.LittleEndian, uint32(sampleRate))
	binary.Write(w, binary.LittleEndian, uint32(byteRate))
	binary.Write(w, binary.LittleEndian, uint16(channels*bitsPerSample/8))
	binary.Write(w, binary.LittleEndian, uint16(bitsPerSample))

	w.WriteString("data")
	binary.Write(w, binary.LittleEndian, uint32(dataSize))
	for _, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		binary.Write(w, binary.LittleEndian, int16(math.Round(s*32767.0)))
	}

	if err := os.WriteFile(path, w.Bytes(), 0o644); err != nil {
		return fmt.Errorf("audio: write %s: %w", path, err)
	}
	return nil
}
