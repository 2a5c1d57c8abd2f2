package speech

import (
	"context"
	"sync"

	"audio-transcription-platform/internal/domain/model"
	"audio-transcription-platform/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.SpeechTranscriber = (*exclusiveEngine)(nil)

// exclusiveEngine serializes access to an inner engine. A loaded model is
// not safe for concurrent use by two jobs at once, so every call holds the
// engine for its full duration.
type exclusiveEngine struct {
	inner adapter.SpeechTranscriber
	mu    sync.Mutex
}

func NewExclusive(inner adapter.SpeechTranscriber) adapter.SpeechTranscriber {
	return &exclusiveEngine{inner: inner}
}

func (e *exclusiveEngine) Transcribe(ctx context.Context, req adapter.TranscribeRequest) ([]model.TranscriptSegment, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inner.Transcribe(ctx, req)
}

func (e *exclusiveEngine) Info() adapter.EngineInfo {
	return e.inner.Info()
}

func (e *exclusiveEngine) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inner.Release()
}
