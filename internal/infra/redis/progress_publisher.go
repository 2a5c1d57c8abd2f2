package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"audio-transcription-platform/internal/domain/model"
	"audio-transcription-platform/internal/domain/ports/adapter"
)

var _ adapter.ProgressPublisher = (*ProgressPublisher)(nil)

// ProgressChannel is the pub/sub channel the status-query path subscribes to.
const ProgressChannel = "transcription:progress"

// ProgressPublisher fans progress events out over redis pub/sub. Events are
// advisory; subscribers that miss one resynchronize from the job row.
type ProgressPublisher struct {
	cli RedisClient
}

func NewProgressPublisher(cli RedisClient) *ProgressPublisher {
	return &ProgressPublisher{cli: cli}
}

func (p *ProgressPublisher) Publish(ctx context.Context, ev model.ProgressEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal progress event: %w", err)
	}
	return p.cli.Publish(ctx, ProgressChannel, b)
}
