package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"audio-transcription-platform/internal/domain"
	"audio-transcription-platform/internal/domain/model"
	"audio-transcription-platform/internal/infra/sched"
	"audio-transcription-platform/internal/usecase"
)

// userIDHeader carries the caller identity set by the upstream auth layer.
const userIDHeader = "X-User-ID"

type submitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type statusResponse struct {
	ID             string  `json:"id"`
	Status         string  `json:"status"`
	Percent        int     `json:"percent"`
	AudioFilename  string  `json:"audio_filename"`
	AudioDuration  float64 `json:"audio_duration_seconds,omitempty"`
	Language       string  `json:"language"`
	ErrorMessage   string  `json:"error_message,omitempty"`
	CreatedAt      string  `json:"created_at"`
	TimeUntilPurge string  `json:"time_until_deletion,omitempty"`
}

func (s *Server) submitHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		http.Error(w, "Missing "+userIDHeader, http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes+1024*1024)
	file, header, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "Missing audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	job, err := s.uc.Submit(r.Context(), userID, usecase.Upload{
		Reader:   file,
		Filename: header.Filename,
		Size:     header.Size,
		Language: r.FormValue("language"),
		Notes:    r.FormValue("notes"),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(submitResponse{ID: job.ID, Status: string(job.Status)})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	job, err := s.uc.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := statusResponse{
		ID:            job.ID,
		Status:        string(job.Status),
		Percent:       statusPercent(job.Status),
		AudioFilename: job.AudioFilename,
		AudioDuration: job.AudioDurationSeconds,
		Language:      job.Language,
		ErrorMessage:  job.ErrorMessage,
		CreatedAt:     job.CreatedAt.Format(time.RFC3339),
	}
	if d, ok := sched.TimeUntilDeletion(job, s.retention, time.Now().UTC()); ok {
		resp.TimeUntilPurge = sched.FormatTimeRemaining(d)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) cancelHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if err := s.uc.Cancel(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte(`{"status":"cancellation_requested"}`))
}

func (s *Server) downloadHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "txt"
	}

	rendering, err := s.uc.Download(r.Context(), userID, chi.URLParam(r, "id"), format)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", rendering.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+rendering.Filename+`"`)
	w.Write([]byte(rendering.Content))
}

// statusPercent maps a persisted status to the last pipeline checkpoint.
func statusPercent(status model.JobStatus) int {
	switch status {
	case model.JobStatusTranscribing:
		return 25
	case model.JobStatusFormatting:
		return 50
	case model.JobStatusCompleted:
		return 100
	}
	return 0
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrPayloadTooLarge):
		http.Error(w, "Payload too large", http.StatusRequestEntityTooLarge)
	case errors.Is(err, domain.ErrUnsupportedFormat):
		http.Error(w, "Unsupported audio format", http.StatusUnsupportedMediaType)
	case errors.Is(err, domain.ErrJobNotCancellable):
		http.Error(w, "Job can no longer be cancelled", http.StatusConflict)
	case errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.log.Error().Err(err).Msg("request failed")
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}
