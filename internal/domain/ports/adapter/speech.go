package adapter

import (
	"context"

	"audio-transcription-platform/internal/domain/model"
)

// TranscribeRequest describes one transcription call.
type TranscribeRequest struct {
	AudioPath string
	Language  string // BCP-47-ish code, e.g. "ja"
	Task      string // "transcribe" or "translate"

	// DomainPrompt biases recognition toward known vocabulary. Empty means
	// the engine's default priming prompt.
	DomainPrompt string
}

// EngineInfo describes the loaded speech model.
type EngineInfo struct {
	Model       string
	Device      string // "cuda" or "cpu"
	ComputeType string // "float16", "int8", ...
}

// SpeechTranscriber is the port for speech-to-text engines.
//
// Implementations initialize the underlying model lazily on first use and
// must emit segments in chronological order with trimmed text. FullText is
// the trimmed segment texts joined by single spaces. Engines do not retry
// internally; retry policy belongs to the caller.
type SpeechTranscriber interface {
	Transcribe(ctx context.Context, req TranscribeRequest) ([]model.TranscriptSegment, string, error)
	Info() EngineInfo

	// Release frees accelerator memory held by the loaded model. The next
	// Transcribe call re-initializes. Safe to call when nothing is loaded.
	Release()
}

// ProgressPublisher emits advisory progress events for a status-query path
// outside the pipeline. Publish failures must never affect job processing.
type ProgressPublisher interface {
	Publish(ctx context.Context, ev model.ProgressEvent) error
}

// CancelSignal lets an external caller request cancellation of a job that
// has not yet reached transcription. The pipeline polls it at checkpoints.
type CancelSignal interface {
	Request(ctx context.Context, jobID string) error
	Requested(ctx context.Context, jobID string) (bool, error)
	Clear(ctx context.Context, jobID string) error
}
