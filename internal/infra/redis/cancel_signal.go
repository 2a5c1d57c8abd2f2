package redis

import (
	"context"
	"time"

	"audio-transcription-platform/internal/domain/ports/adapter"
)

var _ adapter.CancelSignal = (*CancelSignal)(nil)

const cancelKeyPrefix = "transcription:cancel:"

// cancelTTL bounds signal lifetime; a job that never observes its signal is
// terminal anyway by the time the key expires.
const cancelTTL = 24 * time.Hour

// CancelSignal stores cancellation requests as short-lived keys polled by
// the pipeline at checkpoint boundaries.
type CancelSignal struct {
	cli RedisClient
}

func NewCancelSignal(cli RedisClient) *CancelSignal {
	return &CancelSignal{cli: cli}
}

func (c *CancelSignal) Request(ctx context.Context, jobID string) error {
	return c.cli.Set(ctx, cancelKeyPrefix+jobID, "1", cancelTTL)
}

func (c *CancelSignal) Requested(ctx context.Context, jobID string) (bool, error) {
	return c.cli.Exists(ctx, cancelKeyPrefix+jobID)
}

func (c *CancelSignal) Clear(ctx context.Context, jobID string) error {
	return c.cli.Del(ctx, cancelKeyPrefix+jobID)
}
