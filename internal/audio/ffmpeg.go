package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"audio-transcription-platform/internal/domain"
)

// ffmpegDecoder shells out to ffmpeg/ffprobe to decode arbitrary containers
// (mp3, m4a, flac, ...) into raw samples at the source rate and channel
// layout. The binaries are resolved from PATH.
type ffmpegDecoder struct {
	ffmpegBin  string
	ffprobeBin string
}

func newFFmpegDecoder() *ffmpegDecoder {
	return &ffmpegDecoder{ffmpegBin: "ffmpeg", ffprobeBin: "ffprobe"}
}

func (d *ffmpegDecoder) available() bool {
	_, err := exec.LookPath(d.ffmpegBin)
	return err == nil
}

// probe returns the channel count and sample rate of the first audio stream.
func (d *ffmpegDecoder) probe(ctx context.Context, path string) (channels, sampleRate int, err error) {
	cmd := exec.CommandContext(ctx, d.ffprobeBin,
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=channels,sample_rate",
		"-of", "csv=p=0",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return 0, 0, fmt.Errorf("audio: ffprobe %s: %s: %w", path, strings.TrimSpace(string(ee.Stderr)), domain.ErrUnreadableAudio)
		}
		return 0, 0, fmt.Errorf("audio: run ffprobe: %w", err)
	}

	fields := strings.Split(strings.TrimSpace(string(out)), ",")
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("audio: ffprobe %s: no audio stream: %w", path, domain.ErrUnreadableAudio)
	}
	channels, err = strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil || channels <= 0 {
		return 0, 0, fmt.Errorf("audio: ffprobe %s: bad channel count %q: %w", path, fields[0], domain.ErrUnreadableAudio)
	}
	sampleRate, err = strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil || sampleRate <= 0 {
		return 0, 0, fmt.Errorf("audio: ffprobe %s: bad sample rate %q: %w", path, fields[1], domain.ErrUnreadableAudio)
	}
	return channels, sampleRate, nil
}

// decode returns the full clip as interleaved float64 samples.
func (d *ffmpegDecoder) decode(ctx context.Context, path string) (*buffer, error) {
	channels, sampleRate, err := d.probe(ctx, path)
	if err != nil {
		return nil, err
	}

	// ffmpeg -i input -f f64le -acodec pcm_f64le -
	cmd := exec.CommandContext(ctx, d.ffmpegBin,
		"-v", "error",
		"-i", path,
		"-f", "f64le",
		"-acodec", "pcm_f64le",
		"-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("audio: ffmpeg decode %s: %s: %w", path, strings.TrimSpace(stderr.String()), domain.ErrUnreadableAudio)
	}

	raw := stdout.Bytes()
	n := len(raw) / 8
	if n == 0 {
		return nil, fmt.Errorf("audio: ffmpeg decode %s: empty stream: %w", path, domain.ErrUnreadableAudio)
	}
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		samples[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}

	return &buffer{samples: samples, channels: channels, sampleRate: sampleRate}, nil
}
