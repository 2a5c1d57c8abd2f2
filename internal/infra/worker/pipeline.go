package worker

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"audio-transcription-platform/internal/audio"
	"audio-transcription-platform/internal/config"
	"audio-transcription-platform/internal/domain"
	"audio-transcription-platform/internal/domain/model"
	"audio-transcription-platform/internal/domain/ports/adapter"
	"audio-transcription-platform/internal/domain/ports/repository"
	"audio-transcription-platform/internal/infra/logging"
	"audio-transcription-platform/internal/infra/metrics"
	"audio-transcription-platform/internal/output"
)

// audioNormalizer is the slice of audio.Normalizer the pipeline needs.
type audioNormalizer interface {
	Normalize(ctx context.Context, sourcePath string, opts audio.Options) (string, error)
	Duration(path string) (float64, error)
}

// Pipeline drives claimed jobs through normalize, transcribe and format, and
// owns every status write while a job is active. Cancellation is honored at
// checkpoints up to the start of transcription; after that the job runs to a
// terminal status.
type Pipeline struct {
	jobs       repository.TranscriptionJobRepository
	usage      repository.UsageRecordRepository
	tm         repository.TransactionManager
	engine     adapter.SpeechTranscriber
	cancel     adapter.CancelSignal
	progress   adapter.ProgressPublisher
	normalizer audioNormalizer
	cfg        config.PipelineConfig
	log        *zerolog.Logger
}

func NewPipeline(
	jobs repository.TranscriptionJobRepository,
	usage repository.UsageRecordRepository,
	tm repository.TransactionManager,
	engine adapter.SpeechTranscriber,
	cancel adapter.CancelSignal,
	progress adapter.ProgressPublisher,
	normalizer audioNormalizer,
	cfg config.PipelineConfig,
	log *zerolog.Logger,
) *Pipeline {
	l := log.With().Str("component", "Pipeline").Logger()
	return &Pipeline{
		jobs:       jobs,
		usage:      usage,
		tm:         tm,
		engine:     engine,
		cancel:     cancel,
		progress:   progress,
		normalizer: normalizer,
		cfg:        cfg,
		log:        &l,
	}
}

// Start runs the poll loop until the context is cancelled. Run in a goroutine.
func (p *Pipeline) Start(ctx context.Context, pool *Pool) {
	p.log.Info().Dur("poll_interval", p.cfg.PollInterval).Msg("pipeline started")
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("pipeline stopping")
			return
		case <-ticker.C:
			_ = pool.Submit(func(ctx context.Context) error {
				p.processOne(ctx)
				return nil
			})
		}
	}
}

func (p *Pipeline) processOne(ctx context.Context) {
	job, err := p.jobs.FetchAndMarkPreprocessing(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			p.log.Error().Err(err).Msg("failed to claim job")
		}
		return
	}
	p.runJob(ctx, job)
}

// runJob processes one claimed job to a terminal status. The source audio and
// any intermediate file are removed regardless of outcome.
func (p *Pipeline) runJob(ctx context.Context, job *model.TranscriptionJob) {
	ctx = logging.WithUserID(logging.WithJobID(ctx, job.ID), job.UserID)
	log := *logging.With(ctx, p.log)
	defer logging.TraceDuration(&log, "Pipeline.runJob")()
	log.Info().Str("filename", job.AudioFilename).Msg("processing job")
	start := time.Now()

	ctx, cancelHard := context.WithTimeout(ctx, p.cfg.HardTimeout)
	defer cancelHard()

	soft := time.AfterFunc(p.cfg.SoftTimeout, func() {
		metrics.IncSoftTimeoutWarning()
		log.Warn().Dur("soft_timeout", p.cfg.SoftTimeout).Msg("job nearing hard timeout")
	})
	defer soft.Stop()

	cleanup := []string{job.AudioRef}
	defer func() {
		for _, path := range cleanup {
			if path == "" {
				continue
			}
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				metrics.IncCleanupWarning()
				log.Warn().Err(err).Str("path", path).Msg("cleanup failed")
			}
		}
		p.engine.Release()
	}()

	p.publish(ctx, job, 0)

	if p.checkCancelled(ctx, job, &log) {
		return
	}

	// normalize
	normStart := time.Now()
	normPath, err := p.normalizer.Normalize(ctx, job.AudioRef, audio.Options{
		NoiseReduction:    p.cfg.NoiseReduction,
		LoudnessNormalize: p.cfg.LoudnessNormalize,
	})
	metrics.ObserveStageDuration("normalize", time.Since(normStart).Seconds())
	if err != nil {
		p.finalizeFailed(job, err, start, &log)
		return
	}
	cleanup = append(cleanup, normPath)

	duration, err := p.normalizer.Duration(normPath)
	if err != nil {
		p.finalizeFailed(job, err, start, &log)
		return
	}
	// recorded now so failed jobs still meter the measured duration
	job.AudioDurationSeconds = duration

	if p.checkCancelled(ctx, job, &log) {
		return
	}

	if err := p.advance(ctx, job, model.JobStatusTranscribing, 25); err != nil {
		log.Error().Err(err).Msg("failed to mark transcribing")
		return
	}

	// transcribe
	transStart := time.Now()
	segments, fullText, err := p.engine.Transcribe(ctx, adapter.TranscribeRequest{
		AudioPath: normPath,
		Language:  job.Language,
		Task:      "transcribe",
	})
	metrics.ObserveStageDuration("transcribe", time.Since(transStart).Seconds())
	if err != nil {
		p.finalizeFailed(job, err, start, &log)
		return
	}

	if err := p.advance(ctx, job, model.JobStatusFormatting, 50); err != nil {
		log.Error().Err(err).Msg("failed to mark formatting")
		return
	}

	// format
	fmtStart := time.Now()
	mixed := output.Mixed(segments, job.Notes)
	metrics.ObserveStageDuration("format", time.Since(fmtStart).Seconds())
	p.publish(ctx, job, 75)

	processing := time.Since(start).Seconds()
	if err := job.Complete(segments, fullText, mixed, duration, processing); err != nil {
		p.finalizeFailed(job, err, start, &log)
		return
	}
	job.EngineModel = p.engine.Info().Model

	if err := p.persistTerminal(job); err != nil {
		log.Error().Err(err).Msg("failed to persist completed job")
		return
	}
	metrics.IncJobProcessed(string(job.Status))
	p.publish(context.Background(), job, 100)
	log.Info().
		Float64("audio_duration_s", duration).
		Float64("processing_s", processing).
		Int("segments", len(segments)).
		Msg("job completed")
}

// checkCancelled polls the cancel signal and, when set, moves the job to
// cancelled. Signal lookup errors are logged and treated as not cancelled.
func (p *Pipeline) checkCancelled(ctx context.Context, job *model.TranscriptionJob, log *zerolog.Logger) bool {
	requested, err := p.cancel.Requested(ctx, job.ID)
	if err != nil {
		log.Warn().Err(err).Msg("cancel signal lookup failed")
		return false
	}
	if !requested {
		return false
	}
	if err := job.Cancel(); err != nil {
		log.Error().Err(err).Msg("cancel request on non-cancellable job")
		return false
	}
	if err := p.jobs.Update(context.Background(), nil, job); err != nil {
		log.Error().Err(err).Msg("failed to persist cancelled job")
		return true
	}
	_ = p.cancel.Clear(context.Background(), job.ID)
	metrics.IncJobProcessed(string(model.JobStatusCancelled))
	p.publish(context.Background(), job, 0)
	log.Info().Msg("job cancelled")
	return true
}

// advance moves the job to an intermediate status, persists it and publishes
// the stage checkpoint.
func (p *Pipeline) advance(ctx context.Context, job *model.TranscriptionJob, to model.JobStatus, percent int) error {
	if err := job.Transition(to); err != nil {
		return err
	}
	if err := p.jobs.Update(ctx, nil, job); err != nil {
		return err
	}
	p.publish(ctx, job, percent)
	return nil
}

// finalizeFailed records the failure and writes the terminal row. Failed jobs
// still produce a usage record for the compute they consumed.
func (p *Pipeline) finalizeFailed(job *model.TranscriptionJob, cause error, start time.Time, log *zerolog.Logger) {
	processing := time.Since(start).Seconds()
	if errors.Is(cause, context.DeadlineExceeded) {
		cause = domain.ErrJobTimeout
	}
	log.Error().Err(cause).Msg("job failed")
	if err := job.Fail(cause.Error(), processing); err != nil {
		log.Error().Err(err).Msg("failed to mark job failed")
		return
	}
	if err := p.persistTerminal(job); err != nil {
		log.Error().Err(err).Msg("failed to persist failed job")
		return
	}
	metrics.IncJobProcessed(string(job.Status))
	p.publish(context.Background(), job, 0)
}

// persistTerminal writes the terminal job row and its usage record in one
// transaction. Uses a background context so shutdown cannot strand a job in
// an active status.
func (p *Pipeline) persistTerminal(job *model.TranscriptionJob) error {
	rec := model.NewUsageRecord(job.ID, job.UserID, job.AudioDurationSeconds, job.ProcessingTimeSeconds)
	return p.tm.WithTx(context.Background(), pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := p.jobs.Update(ctx, tx, job); err != nil {
			return err
		}
		return p.usage.Save(ctx, tx, rec)
	})
}

func (p *Pipeline) publish(ctx context.Context, job *model.TranscriptionJob, percent int) {
	err := p.progress.Publish(ctx, model.ProgressEvent{
		JobID:   job.ID,
		Status:  job.Status,
		Percent: percent,
	})
	if err != nil {
		p.log.Debug().Err(err).Str("job_id", job.ID).Msg("progress publish failed")
	}
}
