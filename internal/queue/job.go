// Package queue implements the durable batch job store.
//
// All queue state lives in the jobs table. Every transition is a conditional
// update on the row's current status, so concurrent workers never double-claim
// a job and a stale worker cannot overwrite a newer transition.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/linegrade/internal/models"
	"gorm.io/datatypes"
)

// DefaultMaxAttempts bounds how many times a job may be claimed before it
// is marked failed.
const DefaultMaxAttempts = 3

var (
	// ErrNoJob is returned by ClaimNext when no pending job is available.
	ErrNoJob = errors.New("queue: no pending jobs")
	// ErrNotFound is returned when a job id does not exist.
	ErrNotFound = errors.New("queue: job not found")
	// ErrNotClaimed is returned when a transition finds the job in a state
	// that does not permit it (e.g. already terminal, or reclaimed).
	ErrNotClaimed = errors.New("queue: job not in a claimable state")
)

// NewJob builds a pending job for one batch of a session.
func NewJob(sessionID string, batchIndex, totalBatches, maxAttempts int, lines []models.Line) (*models.Job, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("queue: sessionID is required")
	}
	if batchIndex < 0 || batchIndex >= totalBatches {
		return nil, fmt.Errorf("queue: batch index %d out of range [0,%d)", batchIndex, totalBatches)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("queue: batch %d has no lines", batchIndex)
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	payload, err := json.Marshal(lines)
	if err != nil {
		return nil, fmt.Errorf("queue: encode payload: %w", err)
	}
	return &models.Job{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		BatchIndex:   batchIndex,
		TotalBatches: totalBatches,
		Payload:      datatypes.JSON(payload),
		Status:       models.JobPending,
		MaxAttempts:  maxAttempts,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// DecodeLines returns the lines carried in a job's payload.
func DecodeLines(job *models.Job) ([]models.Line, error) {
	var lines []models.Line
	if err := json.Unmarshal(job.Payload, &lines); err != nil {
		return nil, fmt.Errorf("queue: decode payload of job %s: %w", job.ID, err)
	}
	return lines, nil
}

// Summary is the result stored on a completed job.
type Summary struct {
	Rated   int `json:"rated"`
	Cached  int `json:"cached"`
	Errored int `json:"errored"`
}

// DecodeSummary returns the summary stored on a completed job, or the zero
// value when none is stored.
func DecodeSummary(job *models.Job) (Summary, error) {
	var s Summary
	if len(job.Result) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(job.Result, &s); err != nil {
		return s, fmt.Errorf("queue: decode result of job %s: %w", job.ID, err)
	}
	return s, nil
}
