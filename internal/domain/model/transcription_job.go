package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"audio-transcription-platform/internal/domain"
)

type JobStatus string

const (
	JobStatusPending       JobStatus = "pending"
	JobStatusPreprocessing JobStatus = "preprocessing"
	JobStatusTranscribing  JobStatus = "transcribing"
	JobStatusFormatting    JobStatus = "formatting"
	JobStatusCompleted     JobStatus = "completed"
	JobStatusFailed        JobStatus = "failed"
	JobStatusCancelled     JobStatus = "cancelled"
)

// IsTerminal reports whether no further processing transitions occur.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// TranscriptSegment is a timed span of recognized speech. Segments are value
// objects owned entirely by their job.
type TranscriptSegment struct {
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

// TranscriptionJob is one submitted audio-to-transcript request and its full
// lifecycle state. It is created pending by the submission path, mutated only
// by the pipeline worker while active, and owned by the retention sweeper
// once terminal.
type TranscriptionJob struct {
	ID     string
	UserID string
	Status JobStatus

	AudioRef             string // source audio path, owned by the job until consumed
	AudioFilename        string
	AudioSizeBytes       int64
	AudioDurationSeconds float64
	Language             string

	Segments    []TranscriptSegment
	FullText    string
	MixedOutput string

	// Notes is optional caller-supplied free text, immutable after creation.
	Notes string

	EngineModel           string
	ProcessingTimeSeconds float64
	ErrorMessage          string

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// NewTranscriptionJob creates a pending job for a validated audio payload.
func NewTranscriptionJob(userID, audioRef, audioFilename string, sizeBytes int64, language, notes string) (*TranscriptionJob, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if audioRef == "" {
		return nil, domain.ErrInvalidArgument
	}
	if language == "" {
		language = "ja"
	}
	return &TranscriptionJob{
		ID:             uuid.NewString(),
		UserID:         userID,
		Status:         JobStatusPending,
		AudioRef:       audioRef,
		AudioFilename:  audioFilename,
		AudioSizeBytes: sizeBytes,
		Language:       language,
		Notes:          strings.TrimSpace(notes),
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// canTransition enforces the allowed state machine edges: a strictly linear
// happy path, failure reachable from any non-terminal state, cancellation
// only before transcription starts.
func canTransition(from, to JobStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == JobStatusFailed {
		return true
	}
	switch from {
	case JobStatusPending:
		return to == JobStatusPreprocessing || to == JobStatusCancelled
	case JobStatusPreprocessing:
		return to == JobStatusTranscribing || to == JobStatusCancelled
	case JobStatusTranscribing:
		return to == JobStatusFormatting
	case JobStatusFormatting:
		return to == JobStatusCompleted
	}
	return false
}

// Transition moves the job to the given status, stamping StartedAt on leaving
// pending and CompletedAt exactly once on entering a terminal status.
func (j *TranscriptionJob) Transition(to JobStatus) error {
	if !canTransition(j.Status, to) {
		return domain.ErrInvalidTransition
	}
	now := time.Now().UTC()
	if j.Status == JobStatusPending && j.StartedAt == nil {
		j.StartedAt = &now
	}
	if to.IsTerminal() && j.CompletedAt == nil {
		j.CompletedAt = &now
	}
	j.Status = to
	return nil
}

// Complete records the successful result and moves the job to completed.
func (j *TranscriptionJob) Complete(segments []TranscriptSegment, fullText, mixedOutput string, durationSec, processingSec float64) error {
	if len(segments) == 0 || fullText == "" {
		return domain.ErrInvalidArgument
	}
	if err := j.Transition(JobStatusCompleted); err != nil {
		return err
	}
	j.Segments = segments
	j.FullText = fullText
	j.MixedOutput = mixedOutput
	j.AudioDurationSeconds = durationSec
	j.ProcessingTimeSeconds = processingSec
	j.ErrorMessage = ""
	return nil
}

// Fail records the error message and moves the job to failed.
func (j *TranscriptionJob) Fail(msg string, processingSec float64) error {
	if err := j.Transition(JobStatusFailed); err != nil {
		return err
	}
	j.ErrorMessage = msg
	j.ProcessingTimeSeconds = processingSec
	return nil
}

// Cancel moves the job to cancelled. Only pending and preprocessing jobs may
// be cancelled.
func (j *TranscriptionJob) Cancel() error {
	if j.Status != JobStatusPending && j.Status != JobStatusPreprocessing {
		return domain.ErrJobNotCancellable
	}
	return j.Transition(JobStatusCancelled)
}

// ProgressEvent is advisory telemetry published at stage checkpoints.
type ProgressEvent struct {
	JobID   string    `json:"job_id"`
	Status  JobStatus `json:"status"`
	Percent int       `json:"percent"`
}
