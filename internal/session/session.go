// Package session tracks the grading state of a conversation: the merged
// per-line ratings and how many of its batches have completed.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/zulandar/linegrade/internal/metrics"
	"github.com/zulandar/linegrade/internal/models"
	"github.com/zulandar/linegrade/internal/queue"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a grading session does not exist.
var ErrNotFound = errors.New("session: not found")

// Rating labels.
const (
	RatingExcellent         = "excellent"
	RatingGood              = "good"
	RatingPoor              = "poor"
	RatingMissedOpportunity = "missed-opportunity"
	RatingError             = "error"
)

// Store reads and merges grading state.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// New returns a Store backed by db.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Get returns the session row.
func (s *Store) Get(ctx context.Context, id string) (*models.GradingSession, error) {
	return get(s.db.WithContext(ctx), id)
}

func get(tx *gorm.DB, id string) (*models.GradingSession, error) {
	var sess models.GradingSession
	if err := tx.Where("id = ?", id).First(&sess).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("session: get %s: %w", id, err)
	}
	return &sess, nil
}

// LineResult is the outcome of rating one line.
type LineResult struct {
	LineIndex    int
	Text         string
	Rating       string
	Alternatives []string
	Cached       bool
	Error        string
}

// Batch is a job's set of line results to merge into its session.
// Complete is false when rating was interrupted part way; those lines are
// merged but the batch is not counted. WorkerID and Result are recorded on
// the job when a complete batch moves it to completed.
type Batch struct {
	JobID      string
	WorkerID   string
	SessionID  string
	BatchIndex int
	Lines      []LineResult
	Complete   bool
	Result     queue.Summary
}

// MergeOutcome reports what a merge changed.
type MergeOutcome struct {
	// JobCompleted is true when this merge moved the job to completed.
	JobCompleted bool
	// Counted is true when this merge incremented completed_batches.
	Counted bool
	// Completed is true when this merge moved the session to completed.
	Completed bool
}

// MergeBatch upserts the batch's line ratings by line index. For a
// complete batch it also moves the job to completed and, only when that
// transition applied, counts the batch toward completed_batches and
// recomputes grading_status. A job that was failed, completed, or taken
// over by another worker keeps its state: its lines are merged but the
// batch is not counted. Everything happens in one transaction, so the
// session count and the job status never disagree.
func (s *Store) MergeBatch(ctx context.Context, b Batch) (MergeOutcome, error) {
	var out MergeOutcome
	now := s.now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := get(tx, b.SessionID); err != nil {
			return err
		}

		if b.Complete {
			moved, err := queue.CompleteTx(tx, b.JobID, b.WorkerID, b.Result, now)
			if err != nil {
				return fmt.Errorf("session: %w", err)
			}
			out.JobCompleted = moved
		}

		if len(b.Lines) > 0 {
			rows := make([]models.LineRating, 0, len(b.Lines))
			for _, l := range b.Lines {
				alts, err := encodeAlternatives(l.Alternatives)
				if err != nil {
					return err
				}
				rows = append(rows, models.LineRating{
					SessionID:    b.SessionID,
					LineIndex:    l.LineIndex,
					Text:         l.Text,
					Rating:       l.Rating,
					Alternatives: alts,
					Cached:       l.Cached,
					Error:        l.Error,
					JobID:        b.JobID,
					UpdatedAt:    now,
				})
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "session_id"}, {Name: "line_index"}},
				DoUpdates: clause.AssignmentColumns([]string{"text", "rating", "alternatives", "cached", "error", "job_id", "updated_at"}),
			}).Create(&rows).Error; err != nil {
				return fmt.Errorf("session: upsert line ratings for %s: %w", b.SessionID, err)
			}
		}

		if !out.JobCompleted {
			return nil
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.BatchCompletion{
			JobID:       b.JobID,
			SessionID:   b.SessionID,
			BatchIndex:  b.BatchIndex,
			CompletedAt: now,
		})
		if res.Error != nil {
			return fmt.Errorf("session: record completion of job %s: %w", b.JobID, res.Error)
		}
		if res.RowsAffected == 0 {
			// Already counted by an earlier delivery of this job.
			return nil
		}
		out.Counted = true

		if err := tx.Model(&models.GradingSession{}).
			Where("id = ?", b.SessionID).
			Update("completed_batches", gorm.Expr("completed_batches + 1")).Error; err != nil {
			return fmt.Errorf("session: increment completed batches of %s: %w", b.SessionID, err)
		}

		res = tx.Model(&models.GradingSession{}).
			Where("id = ? AND grading_status <> ? AND completed_batches >= total_batches", b.SessionID, models.GradingCompleted).
			Updates(map[string]interface{}{
				"grading_status": models.GradingCompleted,
				"completed_at":   now,
			})
		if res.Error != nil {
			return fmt.Errorf("session: update grading status of %s: %w", b.SessionID, res.Error)
		}
		out.Completed = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return MergeOutcome{}, err
	}
	if out.JobCompleted {
		metrics.JobTransitions.WithLabelValues(models.JobCompleted).Inc()
	}
	if out.Completed {
		metrics.SessionsCompleted.Inc()
	}
	return out, nil
}

// LineRatingView is one entry of a session's line_ratings map.
type LineRatingView struct {
	Text         string   `json:"text"`
	Rating       string   `json:"rating"`
	Alternatives []string `json:"alternatives"`
	Cached       bool     `json:"cached"`
	Error        string   `json:"error,omitempty"`
}

// GradingState is the pollable view of a session.
type GradingState struct {
	SessionID        string                    `json:"session_id"`
	RepName          string                    `json:"rep_name,omitempty"`
	CustomerName     string                    `json:"customer_name,omitempty"`
	LineRatings      map[string]LineRatingView `json:"line_ratings"`
	CompletedBatches int                       `json:"completed_batches"`
	TotalBatches     int                       `json:"total_batches"`
	GradingStatus    string                    `json:"grading_status"`
	CompletedAt      *time.Time                `json:"completed_at,omitempty"`
}

// State returns the session's grading state with line ratings keyed by
// line index.
func (s *Store) State(ctx context.Context, id string) (*GradingState, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var rows []models.LineRating
	if err := s.db.WithContext(ctx).Where("session_id = ?", id).
		Order("line_index ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("session: list line ratings of %s: %w", id, err)
	}

	state := &GradingState{
		SessionID:        sess.ID,
		RepName:          sess.RepName,
		CustomerName:     sess.CustomerName,
		LineRatings:      make(map[string]LineRatingView, len(rows)),
		CompletedBatches: sess.CompletedBatches,
		TotalBatches:     sess.TotalBatches,
		GradingStatus:    sess.GradingStatus,
		CompletedAt:      sess.CompletedAt,
	}
	for _, r := range rows {
		alts, err := decodeAlternatives(r.Alternatives)
		if err != nil {
			return nil, fmt.Errorf("session: line %d of %s: %w", r.LineIndex, id, err)
		}
		state.LineRatings[strconv.Itoa(r.LineIndex)] = LineRatingView{
			Text:         r.Text,
			Rating:       r.Rating,
			Alternatives: alts,
			Cached:       r.Cached,
			Error:        r.Error,
		}
	}
	return state, nil
}

func encodeAlternatives(alts []string) (datatypes.JSON, error) {
	if alts == nil {
		alts = []string{}
	}
	b, err := json.Marshal(alts)
	if err != nil {
		return nil, fmt.Errorf("session: encode alternatives: %w", err)
	}
	return datatypes.JSON(b), nil
}

func decodeAlternatives(raw datatypes.JSON) ([]string, error) {
	alts := []string{}
	if len(raw) == 0 {
		return alts, nil
	}
	if err := json.Unmarshal(raw, &alts); err != nil {
		return nil, err
	}
	return alts, nil
}
