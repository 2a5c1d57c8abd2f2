//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"audio-transcription-platform/internal/domain"
)

func newTestJob(t *testing.T) *TranscriptionJob {
	t.Helper()
	job, err := NewTranscriptionJob("user-1", "/tmp/work/in.mp3", "session.mp3", 2048, "ja", "  test session  ")
	if err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}
	return job
}

func TestNewTranscriptionJob(t *testing.T) {
	t.Run("should create a pending job with trimmed notes", func(t *testing.T) {
		job := newTestJob(t)
		if job.ID == "" {
			t.Error("expected job ID to be non-empty")
		}
		if job.Status != JobStatusPending {
			t.Errorf("expected status pending, but got %s", job.Status)
		}
		if job.Notes != "test session" {
			t.Errorf("expected trimmed notes, but got %q", job.Notes)
		}
		if job.StartedAt != nil || job.CompletedAt != nil {
			t.Error("expected started/completed timestamps to be unset at creation")
		}
	})

	t.Run("should fail without user or audio ref", func(t *testing.T) {
		if _, err := NewTranscriptionJob("", "/tmp/a", "a", 1, "ja", ""); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, but got %v", err)
		}
		if _, err := NewTranscriptionJob("user-1", "", "a", 1, "ja", ""); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, but got %v", err)
		}
	})

	t.Run("should default language to ja", func(t *testing.T) {
		job, err := NewTranscriptionJob("user-1", "/tmp/a", "a", 1, "", "")
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if job.Language != "ja" {
			t.Errorf("expected language ja, but got %s", job.Language)
		}
	})
}

func TestJobTransitions(t *testing.T) {
	t.Run("happy path runs linearly to completed", func(t *testing.T) {
		job := newTestJob(t)
		for _, next := range []JobStatus{JobStatusPreprocessing, JobStatusTranscribing, JobStatusFormatting, JobStatusCompleted} {
			if err := job.Transition(next); err != nil {
				t.Fatalf("transition to %s: %v", next, err)
			}
		}
		if job.StartedAt == nil {
			t.Error("expected StartedAt to be set after leaving pending")
		}
		if job.CompletedAt == nil {
			t.Error("expected CompletedAt to be set on completion")
		}
	})

	t.Run("failed is reachable from any non-terminal state", func(t *testing.T) {
		for _, from := range []JobStatus{JobStatusPending, JobStatusPreprocessing, JobStatusTranscribing, JobStatusFormatting} {
			job := newTestJob(t)
			job.Status = from
			if err := job.Transition(JobStatusFailed); err != nil {
				t.Errorf("transition %s -> failed: %v", from, err)
			}
			if job.CompletedAt == nil {
				t.Errorf("expected CompletedAt set on failure from %s", from)
			}
		}
	})

	t.Run("skipping stages is rejected", func(t *testing.T) {
		job := newTestJob(t)
		if err := job.Transition(JobStatusTranscribing); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, but got %v", err)
		}
	})

	t.Run("terminal states are absorbing", func(t *testing.T) {
		job := newTestJob(t)
		if err := job.Fail("engine exploded", 1.5); err != nil {
			t.Fatalf("fail: %v", err)
		}
		first := *job.CompletedAt
		time.Sleep(time.Millisecond)
		if err := job.Transition(JobStatusPreprocessing); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition out of failed, but got %v", err)
		}
		if !job.CompletedAt.Equal(first) {
			t.Error("expected CompletedAt to be set exactly once")
		}
	})
}

func TestJobCancel(t *testing.T) {
	t.Run("pending and preprocessing jobs cancel cleanly", func(t *testing.T) {
		job := newTestJob(t)
		if err := job.Cancel(); err != nil {
			t.Fatalf("cancel pending: %v", err)
		}
		if job.Status != JobStatusCancelled || job.CompletedAt == nil {
			t.Error("expected cancelled terminal state with CompletedAt set")
		}

		job = newTestJob(t)
		if err := job.Transition(JobStatusPreprocessing); err != nil {
			t.Fatal(err)
		}
		if err := job.Cancel(); err != nil {
			t.Fatalf("cancel preprocessing: %v", err)
		}
	})

	t.Run("transcribing job refuses cancellation", func(t *testing.T) {
		job := newTestJob(t)
		_ = job.Transition(JobStatusPreprocessing)
		_ = job.Transition(JobStatusTranscribing)
		if err := job.Cancel(); !errors.Is(err, domain.ErrJobNotCancellable) {
			t.Errorf("expected ErrJobNotCancellable, but got %v", err)
		}
	})
}

func TestJobComplete(t *testing.T) {
	seg := []TranscriptSegment{{Start: 0, End: 2.5, Text: "hello"}}

	t.Run("records result fields", func(t *testing.T) {
		job := newTestJob(t)
		_ = job.Transition(JobStatusPreprocessing)
		_ = job.Transition(JobStatusTranscribing)
		_ = job.Transition(JobStatusFormatting)
		if err := job.Complete(seg, "hello", "[00:00:00] hello", 2.5, 0.7); err != nil {
			t.Fatalf("complete: %v", err)
		}
		if job.Status != JobStatusCompleted || len(job.Segments) != 1 || job.FullText != "hello" {
			t.Error("expected completed job to carry segments and full text")
		}
	})

	t.Run("rejects empty results", func(t *testing.T) {
		job := newTestJob(t)
		_ = job.Transition(JobStatusPreprocessing)
		_ = job.Transition(JobStatusTranscribing)
		_ = job.Transition(JobStatusFormatting)
		if err := job.Complete(nil, "", "", 0, 0); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, but got %v", err)
		}
	})
}
