package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"audio-transcription-platform/internal/domain"
	"audio-transcription-platform/internal/domain/model"
	"audio-transcription-platform/internal/domain/ports/repository"
)

var _ repository.TranscriptionJobRepository = (*transcriptionJobRepo)(nil)

type transcriptionJobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewTranscriptionJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *transcriptionJobRepo {
	return &transcriptionJobRepo{pool: pool, tm: tm}
}

const jobColumns = `id, user_id, status, audio_ref, audio_filename, audio_size_bytes,
audio_duration_seconds, language, segments, full_text, mixed_output, notes,
engine_model, processing_time_seconds, error_message, created_at, started_at, completed_at`

func (r *transcriptionJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.TranscriptionJob) error {
	segs, err := json.Marshal(job.Segments)
	if err != nil {
		return fmt.Errorf("postgres: marshal segments: %w", err)
	}
	const q = `
INSERT INTO transcription_jobs (` + jobColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18);`

	_, err = execSQL(ctx, r.pool, tx, q,
		job.ID, job.UserID, string(job.Status), job.AudioRef, job.AudioFilename, job.AudioSizeBytes,
		job.AudioDurationSeconds, job.Language, segs, job.FullText, job.MixedOutput, job.Notes,
		job.EngineModel, job.ProcessingTimeSeconds, job.ErrorMessage, job.CreatedAt, job.StartedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("postgres: create job: %w", err)
	}
	return nil
}

func (r *transcriptionJobRepo) Update(ctx context.Context, tx repository.Tx, job *model.TranscriptionJob) error {
	segs, err := json.Marshal(job.Segments)
	if err != nil {
		return fmt.Errorf("postgres: marshal segments: %w", err)
	}
	const q = `
UPDATE transcription_jobs SET
  status = $2,
  audio_size_bytes = $3,
  audio_duration_seconds = $4,
  segments = $5,
  full_text = $6,
  mixed_output = $7,
  engine_model = $8,
  processing_time_seconds = $9,
  error_message = $10,
  started_at = $11,
  completed_at = $12
WHERE id = $1;`

	tag, err := execSQL(ctx, r.pool, tx, q,
		job.ID, string(job.Status), job.AudioSizeBytes, job.AudioDurationSeconds,
		segs, job.FullText, job.MixedOutput, job.EngineModel,
		job.ProcessingTimeSeconds, job.ErrorMessage, job.StartedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("postgres: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *transcriptionJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.TranscriptionJob, error) {
	q := `SELECT ` + jobColumns + ` FROM transcription_jobs WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *transcriptionJobRepo) FetchAndMarkPreprocessing(ctx context.Context) (*model.TranscriptionJob, error) {
	var job *model.TranscriptionJob

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const fetchQuery = `
SELECT ` + jobColumns + `
FROM transcription_jobs
WHERE status = 'pending'
ORDER BY created_at
LIMIT 1
FOR UPDATE SKIP LOCKED;`

		row, err := pickRow(ctx, r.pool, tx, fetchQuery)
		if err != nil {
			return err
		}
		fetched, err := scanJob(row)
		if err != nil {
			return err
		}

		if err := fetched.Transition(model.JobStatusPreprocessing); err != nil {
			return err
		}
		if err := r.Update(ctx, tx, fetched); err != nil {
			return err
		}
		job = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (r *transcriptionJobRepo) ListTerminalOlderThan(ctx context.Context, tx repository.Tx, status model.JobStatus, cutoff time.Time, limit int) ([]*model.TranscriptionJob, error) {
	if !status.IsTerminal() {
		return nil, domain.ErrInvalidArgument
	}
	// completed jobs age from completion, others from creation
	tsColumn := "created_at"
	if status == model.JobStatusCompleted {
		tsColumn = "completed_at"
	}
	q := `SELECT ` + jobColumns + ` FROM transcription_jobs
WHERE status = $1 AND ` + tsColumn + ` < $2
ORDER BY ` + tsColumn + `
LIMIT $3;`

	rows, err := pickRows(ctx, r.pool, tx, q, string(status), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.TranscriptionJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *transcriptionJobRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM transcription_jobs WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (*model.TranscriptionJob, error) {
	var (
		j         model.TranscriptionJob
		statusStr string
		segs      []byte
	)
	err := row.Scan(
		&j.ID, &j.UserID, &statusStr, &j.AudioRef, &j.AudioFilename, &j.AudioSizeBytes,
		&j.AudioDurationSeconds, &j.Language, &segs, &j.FullText, &j.MixedOutput, &j.Notes,
		&j.EngineModel, &j.ProcessingTimeSeconds, &j.ErrorMessage, &j.CreatedAt, &j.StartedAt, &j.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	j.Status = model.JobStatus(statusStr)
	if len(segs) > 0 {
		if err := json.Unmarshal(segs, &j.Segments); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &j, nil
}
