package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// Caller input errors, surfaced before a job is created
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrPayloadTooLarge   = errors.New("audio payload too large")

	// Pipeline errors, fatal for the owning job
	ErrUnreadableAudio     = errors.New("audio source cannot be decoded")
	ErrTranscriptionEngine = errors.New("transcription engine failure")
	ErrJobTimeout          = errors.New("job processing time budget exceeded")

	// State machine errors
	ErrJobNotCancellable = errors.New("job can no longer be cancelled")
	ErrInvalidTransition = errors.New("invalid job status transition")

	ErrReadDatabaseRow = errors.New("failed to read database row")
)
