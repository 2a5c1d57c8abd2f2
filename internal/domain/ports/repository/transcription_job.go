package repository

import (
	"context"
	"time"

	"audio-transcription-platform/internal/domain/model"
)

type TranscriptionJobRepository interface {
	Create(ctx context.Context, tx Tx, job *model.TranscriptionJob) error
	Update(ctx context.Context, tx Tx, job *model.TranscriptionJob) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.TranscriptionJob, error)

	// FetchAndMarkPreprocessing atomically claims the oldest pending job and
	// moves it to 'preprocessing' so no other worker picks it up.
	// Returns domain.ErrNotFound when no pending job exists.
	FetchAndMarkPreprocessing(ctx context.Context) (*model.TranscriptionJob, error)

	// ListTerminalOlderThan returns jobs in the given terminal status whose
	// reference timestamp (completed_at for completed, created_at otherwise)
	// is before the cutoff.
	ListTerminalOlderThan(ctx context.Context, tx Tx, status model.JobStatus, cutoff time.Time, limit int) ([]*model.TranscriptionJob, error)

	Delete(ctx context.Context, tx Tx, id string) error
}

type UsageRecordRepository interface {
	Save(ctx context.Context, tx Tx, rec *model.UsageRecord) error
	FindByJobID(ctx context.Context, tx Tx, jobID string) (*model.UsageRecord, error)
	DeleteByJobID(ctx context.Context, tx Tx, jobID string) error
}
