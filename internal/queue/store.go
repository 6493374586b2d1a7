package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/linegrade/internal/metrics"
	"github.com/zulandar/linegrade/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// claimRetries bounds how often ClaimNext re-selects after losing a race.
const claimRetries = 5

// Store manages job persistence.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// New returns a Store backed by db.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Enqueue persists a new job in pending status and returns its id.
func (s *Store) Enqueue(ctx context.Context, job *models.Job) (string, error) {
	id, err := EnqueueTx(s.db.WithContext(ctx), job)
	if err != nil {
		return "", err
	}
	metrics.JobsEnqueued.Inc()
	return id, nil
}

// EnqueueTx persists a new pending job using the caller's transaction.
func EnqueueTx(tx *gorm.DB, job *models.Job) (string, error) {
	if job == nil {
		return "", fmt.Errorf("queue: job is required")
	}
	if job.ID == "" {
		return "", fmt.Errorf("queue: job id is required")
	}
	job.Status = models.JobPending
	job.Attempts = 0
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = DefaultMaxAttempts
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if err := tx.Create(job).Error; err != nil {
		return "", fmt.Errorf("queue: enqueue job for session %s batch %d: %w", job.SessionID, job.BatchIndex, err)
	}
	return job.ID, nil
}

// ClaimNext atomically selects the oldest pending job, moves it to
// processing under workerID with a lease, and returns it. The row is
// selected with SELECT ... FOR UPDATE SKIP LOCKED where the database
// supports it, and the transition itself only applies while the row is
// still pending, so two callers can never receive the same job.
func (s *Store) ClaimNext(ctx context.Context, workerID string, lease time.Duration) (*models.Job, error) {
	if workerID == "" {
		return nil, fmt.Errorf("queue: workerID is required")
	}
	if lease <= 0 {
		return nil, fmt.Errorf("queue: lease must be positive")
	}

	for attempt := 0; attempt < claimRetries; attempt++ {
		var (
			claimed models.Job
			won     bool
		)
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			result := tx.Where("status = ?", models.JobPending).
				Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
				Order("created_at ASC, batch_index ASC, id ASC").
				Limit(1).
				Find(&claimed)
			if result.Error != nil {
				return fmt.Errorf("queue: find pending job: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				return ErrNoJob
			}

			now := s.now()
			expires := now.Add(lease)
			res := tx.Model(&models.Job{}).
				Where("id = ? AND status = ?", claimed.ID, models.JobPending).
				Updates(map[string]interface{}{
					"status":           models.JobProcessing,
					"claimed_by":       workerID,
					"claimed_at":       now,
					"lease_expires_at": expires,
				})
			if res.Error != nil {
				return fmt.Errorf("queue: claim job %s: %w", claimed.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				// Another claimer got there first; select again.
				return nil
			}
			won = true
			claimed.Status = models.JobProcessing
			claimed.ClaimedBy = workerID
			claimed.ClaimedAt = &now
			claimed.LeaseExpiresAt = &expires
			return nil
		})
		if err != nil {
			return nil, err
		}
		if won {
			metrics.JobTransitions.WithLabelValues(models.JobProcessing).Inc()
			return &claimed, nil
		}
	}
	return nil, ErrNoJob
}

// MarkCompleted records a job's summary and moves it to completed. See
// CompleteTx for which jobs workerID may complete.
func (s *Store) MarkCompleted(ctx context.Context, id, workerID string, summary Summary) error {
	var moved bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		moved, err = CompleteTx(tx, id, workerID, summary, s.now())
		return err
	})
	if err != nil {
		return err
	}
	if !moved {
		return s.missingOrNotClaimed(ctx, id)
	}
	metrics.JobTransitions.WithLabelValues(models.JobCompleted).Inc()
	return nil
}

// CompleteTx moves a job to completed within tx and reports whether it did.
// The job must still be processing under workerID, or be pending again
// after its lease was reclaimed and before anyone re-claimed it. A job that
// is failed, completed, or held by another worker is left untouched.
func CompleteTx(tx *gorm.DB, id, workerID string, summary Summary, now time.Time) (bool, error) {
	result, err := json.Marshal(summary)
	if err != nil {
		return false, fmt.Errorf("queue: encode result for job %s: %w", id, err)
	}
	res := tx.Model(&models.Job{}).
		Where("id = ?", id).
		Where("(status = ? OR (status = ? AND claimed_by = ?))", models.JobPending, models.JobProcessing, workerID).
		Updates(map[string]interface{}{
			"status":           models.JobCompleted,
			"result":           datatypes.JSON(result),
			"error":            "",
			"completed_at":     now,
			"lease_expires_at": nil,
		})
	if res.Error != nil {
		return false, fmt.Errorf("queue: complete job %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkFailed moves a job held by workerID to failed immediately, recording
// the cause. The failed claim counts as an attempt.
func (s *Store) MarkFailed(ctx context.Context, id, workerID, cause string) error {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ? AND claimed_by = ?", id, models.JobProcessing, workerID).
		Updates(map[string]interface{}{
			"status":           models.JobFailed,
			"attempts":         gorm.Expr("attempts + 1"),
			"error":            cause,
			"claimed_by":       "",
			"completed_at":     now,
			"lease_expires_at": nil,
		})
	if res.Error != nil {
		return fmt.Errorf("queue: fail job %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return s.missingOrNotClaimed(ctx, id)
	}
	metrics.JobTransitions.WithLabelValues(models.JobFailed).Inc()
	return nil
}

// MarkForRetry counts a failed attempt on a job held by workerID. The job
// returns to pending while attempts remain, and becomes failed once
// attempts reach MaxAttempts. It returns the resulting status.
func (s *Store) MarkForRetry(ctx context.Context, id, workerID, cause string) (string, error) {
	var next string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.Job
		if err := tx.Where("id = ?", id).First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			return fmt.Errorf("queue: get job %s: %w", id, err)
		}
		if job.Status != models.JobProcessing {
			return fmt.Errorf("%w: %s is %s", ErrNotClaimed, id, job.Status)
		}
		if job.ClaimedBy != workerID {
			return fmt.Errorf("%w: %s is held by %s", ErrNotClaimed, id, job.ClaimedBy)
		}

		attempts := job.Attempts + 1
		updates := map[string]interface{}{
			"attempts":         attempts,
			"error":            cause,
			"claimed_by":       "",
			"lease_expires_at": nil,
		}
		next = models.JobPending
		if attempts >= job.MaxAttempts {
			next = models.JobFailed
			updates["completed_at"] = s.now()
		}
		updates["status"] = next

		// Compare-and-swap on the values read above.
		res := tx.Model(&models.Job{}).
			Where("id = ? AND status = ? AND claimed_by = ? AND attempts = ?", id, models.JobProcessing, workerID, job.Attempts).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("queue: retry job %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s changed concurrently", ErrNotClaimed, id)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	metrics.JobTransitions.WithLabelValues(next).Inc()
	return next, nil
}

// ExtendLease pushes out the lease of a job still held by workerID.
func (s *Store) ExtendLease(ctx context.Context, id, workerID string, lease time.Duration) error {
	res := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ? AND claimed_by = ?", id, models.JobProcessing, workerID).
		Update("lease_expires_at", s.now().Add(lease))
	if res.Error != nil {
		return fmt.Errorf("queue: extend lease of job %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s no longer held by %s", ErrNotClaimed, id, workerID)
	}
	return nil
}

// ReclaimExpired treats processing jobs whose lease expired before now as
// abandoned. Each counts one attempt: jobs with attempts left return to
// pending, the rest become failed.
func (s *Store) ReclaimExpired(ctx context.Context, now time.Time) (requeued, failed int64, err error) {
	now = now.UTC()
	expired := "status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at < ?"

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Job{}).
			Where(expired, models.JobProcessing, now).
			Where("attempts + 1 >= max_attempts").
			Updates(map[string]interface{}{
				"status":           models.JobFailed,
				"attempts":         gorm.Expr("attempts + 1"),
				"error":            "lease expired",
				"claimed_by":       "",
				"lease_expires_at": nil,
				"completed_at":     now,
			})
		if res.Error != nil {
			return fmt.Errorf("queue: fail expired jobs: %w", res.Error)
		}
		failed = res.RowsAffected

		res = tx.Model(&models.Job{}).
			Where(expired, models.JobProcessing, now).
			Where("attempts + 1 < max_attempts").
			Updates(map[string]interface{}{
				"status":           models.JobPending,
				"attempts":         gorm.Expr("attempts + 1"),
				"error":            "lease expired",
				"claimed_by":       "",
				"lease_expires_at": nil,
			})
		if res.Error != nil {
			return fmt.Errorf("queue: requeue expired jobs: %w", res.Error)
		}
		requeued = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	metrics.JobsReclaimed.WithLabelValues("requeued").Add(float64(requeued))
	metrics.JobsReclaimed.WithLabelValues("failed").Add(float64(failed))
	return requeued, failed, nil
}

// RequeueFailed returns a session's failed jobs to pending with a fresh
// attempt budget. It is an operator action; nothing calls it automatically.
func (s *Store) RequeueFailed(ctx context.Context, sessionID string) (int64, error) {
	if sessionID == "" {
		return 0, fmt.Errorf("queue: sessionID is required")
	}
	res := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("session_id = ? AND status = ?", sessionID, models.JobFailed).
		Updates(map[string]interface{}{
			"status":       models.JobPending,
			"attempts":     0,
			"error":        "",
			"completed_at": nil,
			"alerted_at":   nil,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("queue: requeue failed jobs of session %s: %w", sessionID, res.Error)
	}
	metrics.JobTransitions.WithLabelValues(models.JobPending).Add(float64(res.RowsAffected))
	return res.RowsAffected, nil
}

// Get retrieves a job by id.
func (s *Store) Get(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("queue: get job %s: %w", id, err)
	}
	return &job, nil
}

// ListBySession returns a session's jobs ordered by batch index.
func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]models.Job, error) {
	var jobs []models.Job
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).
		Order("batch_index ASC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("queue: list jobs of session %s: %w", sessionID, err)
	}
	return jobs, nil
}

// CountByStatus returns the number of jobs in each status.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := s.db.WithContext(ctx).Model(&models.Job{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("queue: count by status: %w", err)
	}
	counts := map[string]int64{
		models.JobPending:    0,
		models.JobProcessing: 0,
		models.JobCompleted:  0,
		models.JobFailed:     0,
	}
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// UnalertedFailures returns failed jobs nobody has been alerted about yet.
func (s *Store) UnalertedFailures(ctx context.Context, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	var jobs []models.Job
	if err := s.db.WithContext(ctx).
		Where("status = ? AND alerted_at IS NULL", models.JobFailed).
		Order("completed_at ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("queue: list unalerted failures: %w", err)
	}
	return jobs, nil
}

// MarkAlerted records that an alert was sent for a failed job.
func (s *Store) MarkAlerted(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND alerted_at IS NULL", id).
		Update("alerted_at", s.now())
	if res.Error != nil {
		return fmt.Errorf("queue: mark job %s alerted: %w", id, res.Error)
	}
	return nil
}

// missingOrNotClaimed explains why a conditional transition matched no row.
func (s *Store) missingOrNotClaimed(ctx context.Context, id string) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is %s", ErrNotClaimed, id, job.Status)
}
