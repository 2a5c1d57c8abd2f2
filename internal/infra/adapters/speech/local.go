package speech

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"audio-transcription-platform/internal/domain"
	"audio-transcription-platform/internal/domain/model"
	"audio-transcription-platform/internal/domain/ports/adapter"
)

//go:embed assets/faster_whisper.py
var helperScript []byte

// Compile-time assurance this engine satisfies the port
var _ adapter.SpeechTranscriber = (*LocalEngine)(nil)

// LocalEngine runs faster-whisper through an embedded python helper.
// Device and precision are probed once at construction: cuda/float16 when an
// accelerator responds, otherwise cpu/int8. The helper script is materialized
// lazily on first use and removed on Release.
type LocalEngine struct {
	modelName   string
	device      string
	computeType string
	pythonBin   string

	mu         sync.Mutex
	scriptPath string

	log *zerolog.Logger
}

type helperOutput struct {
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start      float64  `json:"start"`
		End        float64  `json:"end"`
		Text       string   `json:"text"`
		AvgLogprob *float64 `json:"avg_logprob"`
	} `json:"segments"`
}

func NewLocalEngine(modelName, preferredDevice, pythonBin string, logger *zerolog.Logger) *LocalEngine {
	if modelName == "" {
		modelName = "large-v3-turbo"
	}
	if pythonBin == "" {
		pythonBin = "python3"
	}
	l := logger.With().Str("component", "LocalEngine").Logger()

	device, computeType := preferredDevice, "float16"
	if device == "" {
		device = "cuda"
	}
	if device == "cuda" && !cudaAvailable() {
		l.Warn().Msg("CUDA is not available, falling back to CPU")
		device = "cpu"
		computeType = "int8"
	}
	if device == "cpu" {
		computeType = "int8"
	}
	l.Info().Str("model", modelName).Str("device", device).Str("compute_type", computeType).
		Msg("speech engine configured")

	return &LocalEngine{
		modelName:   modelName,
		device:      device,
		computeType: computeType,
		pythonBin:   pythonBin,
		log:         &l,
	}
}

// cudaAvailable probes the accelerator by running nvidia-smi; no driver
// bindings needed.
func cudaAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, "nvidia-smi").Run() == nil
}

// ensureScript writes the helper to a stable temp path at most once between
// Release calls.
func (e *LocalEngine) ensureScript() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.scriptPath != "" {
		return e.scriptPath, nil
	}
	path := filepath.Join(os.TempDir(), "transcribe_faster_whisper.py")
	if err := os.WriteFile(path, helperScript, 0o755); err != nil {
		return "", fmt.Errorf("speech: write helper script: %w", err)
	}
	e.scriptPath = path
	return path, nil
}

func (e *LocalEngine) Transcribe(ctx context.Context, req adapter.TranscribeRequest) ([]model.TranscriptSegment, string, error) {
	script, err := e.ensureScript()
	if err != nil {
		return nil, "", err
	}

	prompt := req.DomainPrompt
	if prompt == "" {
		prompt = DefaultDomainPrompt()
	}
	task := req.Task
	if task == "" {
		task = "transcribe"
	}

	args := []string{
		script,
		"--audio", req.AudioPath,
		"--model", e.modelName,
		"--device", e.device,
		"--compute-type", e.computeType,
		"--language", req.Language,
		"--task", task,
		"--initial-prompt", prompt,
	}

	e.log.Info().Str("audio", req.AudioPath).Str("language", req.Language).Msg("starting transcription")
	cmd := exec.CommandContext(ctx, e.pythonBin, args...)
	cmd.Env = os.Environ()
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return nil, "", fmt.Errorf("speech: helper: %s: %w", strings.TrimSpace(string(ee.Stderr)), domain.ErrTranscriptionEngine)
		}
		return nil, "", fmt.Errorf("speech: run helper: %v: %w", err, domain.ErrTranscriptionEngine)
	}

	var parsed helperOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, "", fmt.Errorf("speech: parse helper output: %v: %w", err, domain.ErrTranscriptionEngine)
	}

	segments := make([]model.TranscriptSegment, 0, len(parsed.Segments))
	parts := make([]string, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		text := strings.TrimSpace(s.Text)
		segments = append(segments, model.TranscriptSegment{
			Start:      s.Start,
			End:        s.End,
			Text:       text,
			Confidence: s.AvgLogprob,
		})
		parts = append(parts, text)
	}
	fullText := strings.Join(parts, " ")

	e.log.Info().Int("segments", len(segments)).Str("detected_language", parsed.Language).
		Msg("transcription completed")
	return segments, fullText, nil
}

func (e *LocalEngine) Info() adapter.EngineInfo {
	return adapter.EngineInfo{Model: e.modelName, Device: e.device, ComputeType: e.computeType}
}

// Release drops the materialized helper so accelerator memory held by a
// cancelled helper cache is reclaimable; the next Transcribe re-initializes.
func (e *LocalEngine) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.scriptPath != "" {
		_ = os.Remove(e.scriptPath)
		e.scriptPath = ""
		e.log.Debug().Msg("speech engine released")
	}
}
