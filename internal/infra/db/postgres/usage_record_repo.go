package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"audio-transcription-platform/internal/domain"
	"audio-transcription-platform/internal/domain/model"
	"audio-transcription-platform/internal/domain/ports/repository"
)

var _ repository.UsageRecordRepository = (*usageRecordRepo)(nil)

type usageRecordRepo struct {
	pool *pgxpool.Pool
}

func NewUsageRecordRepo(pool *pgxpool.Pool) *usageRecordRepo {
	return &usageRecordRepo{pool: pool}
}

func (r *usageRecordRepo) Save(ctx context.Context, tx repository.Tx, rec *model.UsageRecord) error {
	const q = `
INSERT INTO usage_records (id, job_id, user_id, audio_duration_seconds, processing_time_seconds, compute_seconds_consumed, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (job_id) DO UPDATE SET
  audio_duration_seconds = EXCLUDED.audio_duration_seconds,
  processing_time_seconds = EXCLUDED.processing_time_seconds,
  compute_seconds_consumed = EXCLUDED.compute_seconds_consumed;`

	_, err := execSQL(ctx, r.pool, tx, q,
		rec.ID, rec.JobID, rec.UserID, rec.AudioDurationSeconds,
		rec.ProcessingTimeSeconds, rec.ComputeSecondsConsumed, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: save usage record: %w", err)
	}
	return nil
}

func (r *usageRecordRepo) FindByJobID(ctx context.Context, tx repository.Tx, jobID string) (*model.UsageRecord, error) {
	const q = `
SELECT id, job_id, user_id, audio_duration_seconds, processing_time_seconds, compute_seconds_consumed, created_at
FROM usage_records WHERE job_id = $1;`

	row, err := pickRow(ctx, r.pool, tx, q, jobID)
	if err != nil {
		return nil, err
	}
	var rec model.UsageRecord
	if err := row.Scan(&rec.ID, &rec.JobID, &rec.UserID, &rec.AudioDurationSeconds,
		&rec.ProcessingTimeSeconds, &rec.ComputeSecondsConsumed, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return &rec, nil
}

func (r *usageRecordRepo) DeleteByJobID(ctx context.Context, tx repository.Tx, jobID string) error {
	// absence is fine: failed jobs may never have produced usage
	if _, err := execSQL(ctx, r.pool, tx, `DELETE FROM usage_records WHERE job_id = $1;`, jobID); err != nil {
		return fmt.Errorf("postgres: delete usage record: %w", err)
	}
	return nil
}
