// Package engine implements the rating worker: it claims batch jobs, rates
// each line through the phrase cache and rating service, and merges the
// results into the session.
package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/linegrade/internal/metrics"
	"github.com/zulandar/linegrade/internal/models"
	"github.com/zulandar/linegrade/internal/phrasecache"
	"github.com/zulandar/linegrade/internal/queue"
	"github.com/zulandar/linegrade/internal/rating"
	"github.com/zulandar/linegrade/internal/session"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Defaults applied when Options leaves a field unset.
const (
	DefaultLease        = 2 * time.Minute
	DefaultPollInterval = 2 * time.Second
)

// finalizeTimeout bounds the store writes that record a batch's outcome,
// which run even after the poll context is cancelled.
const finalizeTimeout = 30 * time.Second

// GenerateID creates a worker ID in wrk-xxxxxxxx format (8-char hex).
func GenerateID() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("engine: generate ID: %w", err)
	}
	return "wrk-" + hex.EncodeToString(b), nil
}

// Options configures a Worker.
type Options struct {
	ID                string
	Lease             time.Duration
	HeartbeatInterval time.Duration
	PollInterval      time.Duration
	// LineConcurrency caps lines rated at once within a batch; 0 rates the
	// whole batch at once.
	LineConcurrency int
}

// Worker drains the job queue.
type Worker struct {
	id       string
	jobs     *queue.Store
	sessions *session.Store
	cache    *phrasecache.Guard
	rater    rating.Rater
	opts     Options
	log      *zap.SugaredLogger
}

// NewWorker returns a Worker. A nil cache disables caching.
func NewWorker(jobs *queue.Store, sessions *session.Store, cache *phrasecache.Guard, rater rating.Rater, opts Options) (*Worker, error) {
	if jobs == nil || sessions == nil {
		return nil, fmt.Errorf("engine: job and session stores are required")
	}
	if rater == nil {
		return nil, fmt.Errorf("engine: rater is required")
	}
	if opts.ID == "" {
		id, err := GenerateID()
		if err != nil {
			return nil, err
		}
		opts.ID = id
	}
	if opts.Lease <= 0 {
		opts.Lease = DefaultLease
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if cache == nil {
		cache = phrasecache.NewGuard(nil)
	}
	return &Worker{
		id:       opts.ID,
		jobs:     jobs,
		sessions: sessions,
		cache:    cache,
		rater:    rater,
		opts:     opts,
		log:      zap.S().Named("engine").With("worker", opts.ID),
	}, nil
}

// ID returns the worker's identifier.
func (w *Worker) ID() string { return w.id }

// Summary describes one Poll. RatedCount counts lines that received a real
// rating, CachedCount the subset served from cache, ErrorCount the lines
// recorded as degraded. Status is the job's status after the poll.
type Summary struct {
	Processed   bool   `json:"processed"`
	JobID       string `json:"job_id,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	RatedCount  int    `json:"rated_count"`
	CachedCount int    `json:"cached_count"`
	ErrorCount  int    `json:"error_count"`
	Status      string `json:"status,omitempty"`
}

// Poll claims at most one job and processes it to a terminal or retry
// state. It returns a zero Summary when the queue is empty. Errors are
// returned only when the job's outcome could not be recorded.
func (w *Worker) Poll(ctx context.Context) (Summary, error) {
	job, err := w.jobs.ClaimNext(ctx, w.id, w.opts.Lease)
	if errors.Is(err, queue.ErrNoJob) {
		return Summary{}, nil
	}
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{Processed: true, JobID: job.ID, SessionID: job.SessionID}
	log := w.log.With("job", job.ID, "session", job.SessionID, "batch", job.BatchIndex)

	// Outcome writes must land even when ctx is cancelled mid-batch.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	sess, err := w.sessions.Get(ctx, job.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return w.fail(storeCtx, log, job, sum, err)
		}
		return w.retry(storeCtx, log, job, sum, err)
	}

	lines, err := queue.DecodeLines(job)
	if err != nil {
		return w.fail(storeCtx, log, job, sum, err)
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	hbErr := StartLeaseHeartbeat(hbCtx, w.jobs, job.ID, w.id, w.opts.Lease, w.opts.HeartbeatInterval)
	results, complete := w.rateLines(ctx, lines, rating.Context{RepName: sess.RepName, CustomerName: sess.CustomerName})
	stopHeartbeat()
	select {
	case err := <-hbErr:
		// The merge below is idempotent, so a lost lease is not fatal.
		log.Warnw("lease heartbeat stopped", "error", err)
	default:
	}

	for _, r := range results {
		switch {
		case r.Rating == session.RatingError:
			sum.ErrorCount++
		case r.Cached:
			sum.RatedCount++
			sum.CachedCount++
		default:
			sum.RatedCount++
		}
	}

	out, mergeErr := w.sessions.MergeBatch(storeCtx, session.Batch{
		JobID:      job.ID,
		WorkerID:   w.id,
		SessionID:  job.SessionID,
		BatchIndex: job.BatchIndex,
		Lines:      results,
		Complete:   complete,
		Result: queue.Summary{
			Rated:   sum.RatedCount,
			Cached:  sum.CachedCount,
			Errored: sum.ErrorCount,
		},
	})

	if errors.Is(mergeErr, session.ErrNotFound) {
		return w.fail(storeCtx, log, job, sum, mergeErr)
	}
	if !complete {
		if mergeErr != nil {
			log.Warnw("partial merge failed", "error", mergeErr)
		}
		cause := ctx.Err()
		if cause == nil {
			cause = errors.New("batch interrupted")
		}
		log.Infow("batch interrupted", "rated_lines", len(results), "total_lines", len(lines))
		return w.retry(storeCtx, log, job, sum, cause)
	}
	if mergeErr != nil {
		return w.retry(storeCtx, log, job, sum, mergeErr)
	}
	if !out.JobCompleted {
		return w.superseded(storeCtx, log, job, sum, "batch merged after losing the job")
	}

	sum.Status = models.JobCompleted
	log.Infow("batch completed", "rated", sum.RatedCount, "cached", sum.CachedCount, "errored", sum.ErrorCount)
	return sum, nil
}

func (w *Worker) fail(ctx context.Context, log *zap.SugaredLogger, job *models.Job, sum Summary, cause error) (Summary, error) {
	err := w.jobs.MarkFailed(ctx, job.ID, w.id, cause.Error())
	if errors.Is(err, queue.ErrNotClaimed) {
		return w.superseded(ctx, log, job, sum, "job lost before it could be failed")
	}
	if err != nil {
		return sum, fmt.Errorf("engine: fail job %s: %w", job.ID, err)
	}
	log.Errorw("job failed", "error", cause)
	sum.Status = models.JobFailed
	return sum, nil
}

func (w *Worker) retry(ctx context.Context, log *zap.SugaredLogger, job *models.Job, sum Summary, cause error) (Summary, error) {
	status, err := w.jobs.MarkForRetry(ctx, job.ID, w.id, cause.Error())
	if errors.Is(err, queue.ErrNotClaimed) {
		return w.superseded(ctx, log, job, sum, "job lost before it could be retried")
	}
	if err != nil {
		return sum, fmt.Errorf("engine: retry job %s: %w", job.ID, err)
	}
	if status == models.JobFailed {
		log.Errorw("job failed after max attempts", "attempts", job.Attempts+1, "error", cause)
	} else {
		log.Warnw("job returned to queue", "attempts", job.Attempts+1, "error", cause)
	}
	sum.Status = status
	return sum, nil
}

// superseded reports the status of a job this worker no longer holds: its
// lease was reclaimed and the job was requeued, failed, or claimed again.
func (w *Worker) superseded(ctx context.Context, log *zap.SugaredLogger, job *models.Job, sum Summary, msg string) (Summary, error) {
	current, err := w.jobs.Get(ctx, job.ID)
	if err != nil {
		return sum, fmt.Errorf("engine: read job %s: %w", job.ID, err)
	}
	log.Warnw(msg, "status", current.Status, "claimed_by", current.ClaimedBy)
	sum.Status = current.Status
	return sum, nil
}

// rateLines rates every line. complete is false when ctx was cancelled
// before every line finished; results then hold only the finished lines.
func (w *Worker) rateLines(ctx context.Context, lines []models.Line, rc rating.Context) ([]session.LineResult, bool) {
	type outcome struct {
		result session.LineResult
		done   bool
	}
	outcomes := make([]outcome, len(lines))

	var g errgroup.Group
	if w.opts.LineConcurrency > 0 {
		g.SetLimit(w.opts.LineConcurrency)
	}
	for i, l := range lines {
		i, l := i, l
		g.Go(func() error {
			r, done := w.rateLine(ctx, l, rc)
			outcomes[i] = outcome{result: r, done: done}
			return nil
		})
	}
	_ = g.Wait()

	results := make([]session.LineResult, 0, len(lines))
	complete := ctx.Err() == nil
	for _, o := range outcomes {
		if !o.done {
			complete = false
			continue
		}
		results = append(results, o.result)
	}
	return results, complete
}

// rateLine serves a line from cache or the rating service. A service
// failure yields a degraded error rating; done is false only when ctx was
// cancelled before the line was rated.
func (w *Worker) rateLine(ctx context.Context, l models.Line, rc rating.Context) (session.LineResult, bool) {
	res := session.LineResult{LineIndex: l.LineIndex, Text: l.Text, Alternatives: []string{}}
	key := phrasecache.Normalize(l.Text)

	if e, ok := w.cache.Get(ctx, key); ok {
		res.Rating = e.Rating
		res.Alternatives = e.Alternatives
		res.Cached = true
		metrics.LinesRated.WithLabelValues("cache").Inc()
		return res, true
	}

	rated, err := w.rater.Rate(ctx, l.Text, rc)
	if err != nil {
		if ctx.Err() != nil {
			return res, false
		}
		res.Rating = session.RatingError
		res.Error = err.Error()
		metrics.LinesRated.WithLabelValues("error").Inc()
		w.log.Debugw("line degraded", "line", l.LineIndex, "error", err)
		return res, true
	}

	// Error ratings never reach this point, so the cache only holds real labels.
	w.cache.Put(ctx, key, phrasecache.Entry{Rating: rated.Rating, Alternatives: rated.Alternatives})
	res.Rating = rated.Rating
	if rated.Alternatives != nil {
		res.Alternatives = rated.Alternatives
	}
	metrics.LinesRated.WithLabelValues("service").Inc()
	return res, true
}
