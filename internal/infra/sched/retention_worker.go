package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"audio-transcription-platform/internal/config"
	"audio-transcription-platform/internal/domain/model"
	"audio-transcription-platform/internal/domain/ports/repository"
	"audio-transcription-platform/internal/infra/metrics"
)

// RetentionWorker periodically deletes terminal jobs whose retention window
// has elapsed. Usage records go first so a crash between the two deletes never
// leaves an orphaned record.
type RetentionWorker struct {
	jobs  repository.TranscriptionJobRepository
	usage repository.UsageRecordRepository
	tm    repository.TransactionManager
	cfg   config.RetentionConfig
	log   *zerolog.Logger
}

func NewRetentionWorker(
	jobs repository.TranscriptionJobRepository,
	usage repository.UsageRecordRepository,
	tm repository.TransactionManager,
	cfg config.RetentionConfig,
	logger *zerolog.Logger,
) *RetentionWorker {
	l := logger.With().Str("component", "RetentionWorker").Logger()
	return &RetentionWorker{jobs: jobs, usage: usage, tm: tm, cfg: cfg, log: &l}
}

func (w *RetentionWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.cfg.SweepInterval).Msg("starting retention worker")
	ticker := time.NewTicker(w.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping retention worker")
			return ctx.Err()
		case <-ticker.C:
			w.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs one pass over every expired terminal status.
func (w *RetentionWorker) SweepOnce(ctx context.Context) {
	now := time.Now().UTC()
	for _, status := range []model.JobStatus{model.JobStatusCompleted, model.JobStatusFailed, model.JobStatusCancelled} {
		cutoff := now.Add(-RetentionWindow(status, w.cfg))
		n := w.sweepStatus(ctx, status, cutoff)
		if n > 0 {
			metrics.IncRetentionDeleted(string(status), n)
			w.log.Info().Str("status", string(status)).Int("count", n).Msg("expired jobs deleted")
		}
	}
}

// sweepStatus deletes expired jobs in one status. A failure on one job is
// logged and does not stop the rest of the batch.
func (w *RetentionWorker) sweepStatus(ctx context.Context, status model.JobStatus, cutoff time.Time) int {
	jobs, err := w.jobs.ListTerminalOlderThan(ctx, nil, status, cutoff, w.cfg.BatchLimit)
	if err != nil {
		metrics.IncRetentionError()
		w.log.Error().Err(err).Str("status", string(status)).Msg("retention listing failed")
		return 0
	}

	deleted := 0
	for _, job := range jobs {
		if err := w.deleteJob(ctx, job.ID); err != nil {
			metrics.IncRetentionError()
			w.log.Error().Err(err).Str("job_id", job.ID).Msg("retention delete failed")
			continue
		}
		deleted++
	}
	return deleted
}

func (w *RetentionWorker) deleteJob(ctx context.Context, jobID string) error {
	return w.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := w.usage.DeleteByJobID(ctx, tx, jobID); err != nil {
			return err
		}
		return w.jobs.Delete(ctx, tx, jobID)
	})
}

// RetentionWindow returns how long a job in the given terminal status is kept.
func RetentionWindow(status model.JobStatus, cfg config.RetentionConfig) time.Duration {
	if status == model.JobStatusCompleted {
		return cfg.CompletedWindow
	}
	return cfg.FailedWindow
}

// DeletionTime returns when the retention sweeper becomes eligible to delete
// the job, and false for jobs that are not yet terminal.
func DeletionTime(job *model.TranscriptionJob, cfg config.RetentionConfig) (time.Time, bool) {
	if !job.Status.IsTerminal() {
		return time.Time{}, false
	}
	ref := job.CreatedAt
	if job.Status == model.JobStatusCompleted && job.CompletedAt != nil {
		ref = *job.CompletedAt
	}
	return ref.Add(RetentionWindow(job.Status, cfg)), true
}

// TimeUntilDeletion returns the remaining retention for a terminal job,
// clamped at zero once the window has elapsed.
func TimeUntilDeletion(job *model.TranscriptionJob, cfg config.RetentionConfig, now time.Time) (time.Duration, bool) {
	at, ok := DeletionTime(job, cfg)
	if !ok {
		return 0, false
	}
	d := at.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

// FormatTimeRemaining renders a retention countdown for status responses.
func FormatTimeRemaining(d time.Duration) string {
	if d <= 0 {
		return "deletion imminent"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("about %dh %dm left", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("about %dm left", m)
	}
	return "less than a minute left"
}
