package models

import "time"

// GradingSession holds the grading progress of one conversation.
type GradingSession struct {
	ID               string `gorm:"primaryKey;size:64"`
	RepName          string `gorm:"size:128"`
	CustomerName     string `gorm:"size:128"`
	TotalBatches     int    `gorm:"not null;default:0"`
	CompletedBatches int    `gorm:"not null;default:0"`
	GradingStatus    string `gorm:"size:16;default:processing;index"`
	DispatchedAt     time.Time
	CompletedAt      *time.Time
	UpdatedAt        time.Time
}

// Grading status values.
const (
	GradingProcessing = "processing"
	GradingCompleted  = "completed"
)

// BatchCompletion records that a job's batch was counted toward its
// session's completed_batches.
type BatchCompletion struct {
	JobID       string `gorm:"primaryKey;size:36"`
	SessionID   string `gorm:"size:64;index"`
	BatchIndex  int
	CompletedAt time.Time
}
