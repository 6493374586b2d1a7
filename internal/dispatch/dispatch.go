// Package dispatch turns a conversation transcript into batch rating jobs.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/linegrade/internal/metrics"
	"github.com/zulandar/linegrade/internal/models"
	"github.com/zulandar/linegrade/internal/queue"
	"github.com/zulandar/linegrade/internal/transcript"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Defaults applied when Options leaves a field unset.
const (
	DefaultBatchSize   = 5
	DefaultMaxAttempts = 3
)

// DefaultRepSpeakers are the speaker tags treated as the sales rep.
var DefaultRepSpeakers = []string{"rep", "sales_rep", "salesperson", "agent"}

// ErrAlreadyDispatched is returned when the session already has a grading
// record.
var ErrAlreadyDispatched = errors.New("dispatch: session already dispatched")

// ErrInvalidRequest wraps request validation failures.
var ErrInvalidRequest = errors.New("dispatch: invalid request")

// Request is a transcript to grade.
type Request struct {
	SessionID    string
	Transcript   []transcript.Entry
	RepName      string
	CustomerName string
}

// Options controls batching.
type Options struct {
	BatchSize   int
	MaxAttempts int
	RepSpeakers []string
}

// Result describes what was enqueued.
type Result struct {
	SessionID    string   `json:"session_id"`
	TotalBatches int      `json:"total_batches"`
	LineCount    int      `json:"line_count"`
	JobIDs       []string `json:"job_ids"`
}

// Dispatch selects the rep's lines, splits them into batches and, in one
// transaction, creates the session's grading record with its batch total
// and one pending job per batch. A transcript with no rep lines yields a
// session that is already completed.
func Dispatch(ctx context.Context, db *gorm.DB, req Request, opts Options) (*Result, error) {
	if errs := ValidateRequest(req); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(errs, "; "))
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if len(opts.RepSpeakers) == 0 {
		opts.RepSpeakers = DefaultRepSpeakers
	}

	lines := RepLines(req.Transcript, opts.RepSpeakers)
	batches := Batch(lines, opts.BatchSize)
	total := len(batches)
	now := time.Now().UTC()

	jobs := make([]*models.Job, 0, total)
	for i, b := range batches {
		job, err := queue.NewJob(req.SessionID, i, total, opts.MaxAttempts, b)
		if err != nil {
			return nil, fmt.Errorf("dispatch: %w", err)
		}
		// One timestamp per dispatch so claim order follows batch index.
		job.CreatedAt = now
		jobs = append(jobs, job)
	}

	sess := models.GradingSession{
		ID:            req.SessionID,
		RepName:       req.RepName,
		CustomerName:  req.CustomerName,
		TotalBatches:  total,
		GradingStatus: models.GradingProcessing,
		DispatchedAt:  now,
	}
	if total == 0 {
		sess.GradingStatus = models.GradingCompleted
		sess.CompletedAt = &now
	}

	res := &Result{SessionID: req.SessionID, TotalBatches: total, LineCount: len(lines), JobIDs: []string{}}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.GradingSession{}).Where("id = ?", req.SessionID).Count(&existing).Error; err != nil {
			return fmt.Errorf("dispatch: check session %s: %w", req.SessionID, err)
		}
		if existing > 0 {
			return fmt.Errorf("%w: %s", ErrAlreadyDispatched, req.SessionID)
		}
		if err := tx.Create(&sess).Error; err != nil {
			// Lost a race with a concurrent dispatch of the same session.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %s", ErrAlreadyDispatched, req.SessionID)
			}
			return fmt.Errorf("dispatch: create session %s: %w", req.SessionID, err)
		}
		for _, job := range jobs {
			id, err := queue.EnqueueTx(tx, job)
			if err != nil {
				return fmt.Errorf("dispatch: %w", err)
			}
			res.JobIDs = append(res.JobIDs, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.JobsEnqueued.Add(float64(total))
	if total == 0 {
		metrics.SessionsCompleted.Inc()
	}
	zap.S().Named("dispatch").Infow("session dispatched",
		"session", req.SessionID, "lines", len(lines), "batches", total)
	return res, nil
}
