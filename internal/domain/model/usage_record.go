package model

import (
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// UsageRecord captures the metered cost of one finished job. Exactly one is
// written when a job completes or fails, and it is deleted in lockstep with
// the job by the retention sweeper.
type UsageRecord struct {
	ID                     string
	JobID                  string
	UserID                 string
	AudioDurationSeconds   float64
	ProcessingTimeSeconds  float64
	ComputeSecondsConsumed float64
	CreatedAt              time.Time
}

func NewUsageRecord(jobID, userID string, audioDurationSec, processingSec float64) *UsageRecord {
	now := time.Now().UTC()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(now.UnixNano())), 0)
	return &UsageRecord{
		ID:                     ulid.MustNew(ulid.Timestamp(now), entropy).String(),
		JobID:                  jobID,
		UserID:                 userID,
		AudioDurationSeconds:   audioDurationSec,
		ProcessingTimeSeconds:  processingSec,
		ComputeSecondsConsumed: processingSec,
		CreatedAt:              now,
	}
}
