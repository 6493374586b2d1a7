// Package models defines the GORM tables shared by the queue, session and
// phrase cache stores.
package models

import (
	"time"

	"gorm.io/datatypes"
)

// Job is one batch of rep lines waiting to be rated.
type Job struct {
	ID             string         `gorm:"primaryKey;size:36"`
	SessionID      string         `gorm:"size:64;not null;uniqueIndex:idx_jobs_session_batch"`
	BatchIndex     int            `gorm:"not null;uniqueIndex:idx_jobs_session_batch"`
	TotalBatches   int            `gorm:"not null"`
	Payload        datatypes.JSON `gorm:"not null"`
	Status         string         `gorm:"size:16;default:pending;index:idx_jobs_status_created"`
	Attempts       int            `gorm:"default:0"`
	MaxAttempts    int            `gorm:"default:3"`
	Result         datatypes.JSON
	Error          string `gorm:"type:text"`
	ClaimedBy      string `gorm:"size:64"`
	ClaimedAt      *time.Time
	LeaseExpiresAt *time.Time `gorm:"index"`
	CompletedAt    *time.Time
	AlertedAt      *time.Time
	CreatedAt      time.Time `gorm:"index:idx_jobs_status_created"`
	UpdatedAt      time.Time
}

// Job status values.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// Line is a single rep utterance carried in a job payload. LineIndex is the
// utterance's position in the full transcript, not within the batch.
type Line struct {
	LineIndex int    `json:"line_index"`
	Text      string `json:"text"`
}
