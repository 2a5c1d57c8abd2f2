package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/rs/zerolog"

	"audio-transcription-platform/internal/domain"
	"audio-transcription-platform/internal/domain/model"
	"audio-transcription-platform/internal/domain/ports/adapter"
)

var _ adapter.SpeechTranscriber = (*OpenAIEngine)(nil)

// OpenAIEngine transcribes through the hosted audio/transcriptions API.
// Used when no local accelerator is provisioned. The API reports segment
// timings via verbose_json but no per-segment confidence.
type OpenAIEngine struct {
	client openai.Client
	model  string
	log    *zerolog.Logger
}

func NewOpenAIEngine(apiKey, modelName string, logger *zerolog.Logger) (*OpenAIEngine, error) {
	if apiKey == "" {
		return nil, errors.New("speech: openai api key empty")
	}
	if modelName == "" {
		modelName = "whisper-1"
	}
	l := logger.With().Str("component", "OpenAIEngine").Logger()
	return &OpenAIEngine{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  modelName,
		log:    &l,
	}, nil
}

// verboseTranscription mirrors the verbose_json response shape.
type verboseTranscription struct {
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (e *OpenAIEngine) Transcribe(ctx context.Context, req adapter.TranscribeRequest) ([]model.TranscriptSegment, string, error) {
	f, err := os.Open(req.AudioPath)
	if err != nil {
		return nil, "", fmt.Errorf("speech: open audio: %v: %w", err, domain.ErrTranscriptionEngine)
	}
	defer f.Close()

	prompt := req.DomainPrompt
	if prompt == "" {
		prompt = DefaultDomainPrompt()
	}

	params := openai.AudioTranscriptionNewParams{
		File:           f,
		Model:          openai.AudioModel(e.model),
		ResponseFormat: openai.AudioResponseFormatVerboseJSON,
		Prompt:         openai.String(prompt),
	}
	if req.Language != "" {
		params.Language = openai.String(req.Language)
	}

	e.log.Info().Str("audio", req.AudioPath).Str("model", e.model).Msg("starting hosted transcription")

	var verbose verboseTranscription
	_, err = e.client.Audio.Transcriptions.New(ctx, params, option.WithResponseBodyInto(&verbose))
	if err != nil {
		return nil, "", fmt.Errorf("speech: openai transcription: %v: %w", err, domain.ErrTranscriptionEngine)
	}

	segments := make([]model.TranscriptSegment, 0, len(verbose.Segments))
	parts := make([]string, 0, len(verbose.Segments))
	for _, s := range verbose.Segments {
		text := strings.TrimSpace(s.Text)
		segments = append(segments, model.TranscriptSegment{Start: s.Start, End: s.End, Text: text})
		parts = append(parts, text)
	}
	fullText := strings.Join(parts, " ")
	if len(segments) == 0 && strings.TrimSpace(verbose.Text) != "" {
		// some models omit segment timings; degrade to one span
		text := strings.TrimSpace(verbose.Text)
		segments = append(segments, model.TranscriptSegment{Start: 0, End: verbose.Duration, Text: text})
		fullText = text
	}

	e.log.Info().Int("segments", len(segments)).Msg("hosted transcription completed")
	return segments, fullText, nil
}

func (e *OpenAIEngine) Info() adapter.EngineInfo {
	return adapter.EngineInfo{Model: e.model, Device: "api", ComputeType: "hosted"}
}

// Release is a no-op: the hosted engine holds no local accelerator memory.
func (e *OpenAIEngine) Release() {}
