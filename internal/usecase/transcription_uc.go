package usecase

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"audio-transcription-platform/internal/domain"
	"audio-transcription-platform/internal/domain/model"
	"audio-transcription-platform/internal/domain/ports/adapter"
	"audio-transcription-platform/internal/domain/ports/repository"
	"audio-transcription-platform/internal/output"
)

// renderCacheTTL bounds how long a rendered artifact is served without
// re-rendering. Well under the shortest retention window.
const renderCacheTTL = time.Hour

// allowedMIMETypes are the accepted upload containers. Detection is by
// content sniffing, never by filename extension.
var allowedMIMETypes = map[string]bool{
	"audio/mpeg":  true, // mp3
	"audio/wav":   true,
	"audio/x-wav": true,
	"audio/mp4":   true, // m4a
	"audio/x-m4a": true,
	"audio/flac":  true,
}

// Upload is a validated-on-entry submission payload.
type Upload struct {
	Reader   io.Reader
	Filename string
	Size     int64
	Language string
	Notes    string
}

// Rendering is one downloadable artifact produced from a completed job.
type Rendering struct {
	Content     string
	ContentType string
	Filename    string
}

// RenderCache stores rendered artifacts keyed by job and format. A lookup
// error is treated as a miss.
type RenderCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// Compile-time check
var _ TranscriptionUseCase = (*transcriptionUC)(nil)

type TranscriptionUseCase interface {
	Submit(ctx context.Context, userID string, up Upload) (*model.TranscriptionJob, error)
	Get(ctx context.Context, userID, jobID string) (*model.TranscriptionJob, error)
	Cancel(ctx context.Context, userID, jobID string) error
	Download(ctx context.Context, userID, jobID, format string) (*Rendering, error)
}

type transcriptionUC struct {
	jobs     repository.TranscriptionJobRepository
	cancel   adapter.CancelSignal
	cache    RenderCache
	workDir  string
	maxBytes int64
	log      *zerolog.Logger
}

func NewTranscriptionUseCase(
	jobs repository.TranscriptionJobRepository,
	cancel adapter.CancelSignal,
	cache RenderCache,
	workDir string,
	maxBytes int64,
	logger *zerolog.Logger,
) *transcriptionUC {
	l := logger.With().Str("component", "TranscriptionUC").Logger()
	return &transcriptionUC{
		jobs:     jobs,
		cancel:   cancel,
		cache:    cache,
		workDir:  workDir,
		maxBytes: maxBytes,
		log:      &l,
	}
}

// Submit validates and spools the upload, then creates a pending job. The
// spooled file is owned by the job from here on; the pipeline removes it.
func (u *transcriptionUC) Submit(ctx context.Context, userID string, up Upload) (*model.TranscriptionJob, error) {
	if userID == "" || up.Reader == nil {
		return nil, domain.ErrInvalidArgument
	}
	if up.Size > u.maxBytes {
		return nil, domain.ErrPayloadTooLarge
	}

	spooled, err := u.spool(up)
	if err != nil {
		return nil, err
	}

	mt, err := mimetype.DetectFile(spooled)
	if err != nil {
		os.Remove(spooled)
		return nil, fmt.Errorf("detect content type: %w", err)
	}
	if !allowedMIMETypes[mt.String()] {
		os.Remove(spooled)
		u.log.Warn().Str("user_id", userID).Str("mime", mt.String()).Msg("rejected upload")
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, mt.String())
	}

	job, err := model.NewTranscriptionJob(userID, spooled, filepath.Base(up.Filename), up.Size, up.Language, up.Notes)
	if err != nil {
		os.Remove(spooled)
		return nil, err
	}
	if err := u.jobs.Create(ctx, nil, job); err != nil {
		os.Remove(spooled)
		return nil, err
	}

	u.log.Info().Str("job_id", job.ID).Str("user_id", userID).
		Int64("size_bytes", up.Size).Str("mime", mt.String()).Msg("job submitted")
	return job, nil
}

// spool copies the upload into the work dir, enforcing the byte limit on the
// actual stream rather than the declared size.
func (u *transcriptionUC) spool(up Upload) (string, error) {
	ext := filepath.Ext(up.Filename)
	path := filepath.Join(u.workDir, "upload-"+uuid.NewString()+ext)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("spool upload: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(up.Reader, u.maxBytes+1))
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("spool upload: %w", err)
	}
	if n > u.maxBytes {
		os.Remove(path)
		return "", domain.ErrPayloadTooLarge
	}
	return path, nil
}

func (u *transcriptionUC) Get(ctx context.Context, userID, jobID string) (*model.TranscriptionJob, error) {
	return u.findOwned(ctx, userID, jobID)
}

// Cancel requests cancellation. The pipeline observes the signal at its next
// checkpoint and performs the status write, so jobs past preprocessing are
// rejected here.
func (u *transcriptionUC) Cancel(ctx context.Context, userID, jobID string) error {
	job, err := u.findOwned(ctx, userID, jobID)
	if err != nil {
		return err
	}
	switch job.Status {
	case model.JobStatusPending, model.JobStatusPreprocessing:
	default:
		return domain.ErrJobNotCancellable
	}
	if err := u.cancel.Request(ctx, job.ID); err != nil {
		return fmt.Errorf("request cancellation: %w", err)
	}
	u.log.Info().Str("job_id", job.ID).Str("user_id", userID).Msg("cancellation requested")
	return nil
}

// Download renders the requested artifact from the stored segments and notes.
// Only completed jobs have anything to render.
func (u *transcriptionUC) Download(ctx context.Context, userID, jobID, format string) (*Rendering, error) {
	job, err := u.findOwned(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusCompleted {
		return nil, fmt.Errorf("%w: job is %s", domain.ErrInvalidArgument, job.Status)
	}

	base := strings.TrimSuffix(job.AudioFilename, filepath.Ext(job.AudioFilename))
	if base == "" {
		base = job.ID
	}
	cacheKey := "transcription:render:" + job.ID + ":" + format

	if u.cache != nil {
		if cached, err := u.cache.Get(ctx, cacheKey); err == nil && cached != "" {
			return u.rendering(format, base, cached)
		}
	}

	var content string
	switch format {
	case "txt":
		content = output.PlainText(job.Segments, "", true)
	case "mixed":
		content = job.MixedOutput
	case "json":
		content, err = output.JSON(job.Segments, job.Notes, output.Metadata{
			SourceName: job.AudioFilename,
			CreatedAt:  job.CreatedAt,
		})
		if err != nil {
			return nil, err
		}
	case "html":
		content = output.HTML(job.Segments, job.Notes, output.Metadata{
			SourceName: job.AudioFilename,
			CreatedAt:  job.CreatedAt,
		})
	default:
		return nil, fmt.Errorf("%w: unknown format %q", domain.ErrInvalidArgument, format)
	}

	if u.cache != nil {
		if err := u.cache.Set(ctx, cacheKey, content, renderCacheTTL); err != nil {
			u.log.Debug().Err(err).Str("job_id", job.ID).Msg("render cache write failed")
		}
	}
	return u.rendering(format, base, content)
}

func (u *transcriptionUC) rendering(format, base, content string) (*Rendering, error) {
	switch format {
	case "txt", "mixed":
		return &Rendering{Content: content, ContentType: "text/plain; charset=utf-8", Filename: base + "_transcript.txt"}, nil
	case "json":
		return &Rendering{Content: content, ContentType: "application/json", Filename: base + "_transcript.json"}, nil
	case "html":
		return &Rendering{Content: content, ContentType: "text/html; charset=utf-8", Filename: base + "_transcript.html"}, nil
	}
	return nil, fmt.Errorf("%w: unknown format %q", domain.ErrInvalidArgument, format)
}

// findOwned hides other users' jobs behind ErrNotFound.
func (u *transcriptionUC) findOwned(ctx context.Context, userID, jobID string) (*model.TranscriptionJob, error) {
	if userID == "" || jobID == "" {
		return nil, domain.ErrInvalidArgument
	}
	job, err := u.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return job, nil
}
