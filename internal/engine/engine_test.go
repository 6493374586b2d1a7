package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/linegrade/internal/db"
	"github.com/zulandar/linegrade/internal/dispatch"
	"github.com/zulandar/linegrade/internal/models"
	"github.com/zulandar/linegrade/internal/phrasecache"
	"github.com/zulandar/linegrade/internal/queue"
	"github.com/zulandar/linegrade/internal/rating"
	"github.com/zulandar/linegrade/internal/session"
	"github.com/zulandar/linegrade/internal/transcript"
	"gorm.io/gorm"
)

// fakeRater rates every line "good" unless told otherwise.
type fakeRater struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
	hook  func(ctx context.Context, text string) error
}

func newFakeRater() *fakeRater {
	return &fakeRater{calls: map[string]int{}, fail: map[string]error{}}
}

func (f *fakeRater) Rate(ctx context.Context, text string, rc rating.Context) (rating.Result, error) {
	f.mu.Lock()
	f.calls[text]++
	err := f.fail[text]
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		if herr := hook(ctx, text); herr != nil {
			return rating.Result{}, herr
		}
	}
	if err != nil {
		return rating.Result{}, err
	}
	return rating.Result{Rating: rating.Good, Alternatives: []string{"Better: " + text}}, nil
}

func (f *fakeRater) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// failingCache fails every operation.
type failingCache struct{}

func (failingCache) Get(context.Context, string) (phrasecache.Entry, bool, error) {
	return phrasecache.Entry{}, false, errors.New("cache backend unavailable")
}

func (failingCache) Put(context.Context, string, phrasecache.Entry) error {
	return errors.New("cache backend unavailable")
}

type env struct {
	db       *gorm.DB
	jobs     *queue.Store
	sessions *session.Store
	cache    *phrasecache.GormCache
	rater    *fakeRater
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gdb, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	return &env{
		db:       gdb,
		jobs:     queue.New(gdb),
		sessions: session.New(gdb),
		cache:    phrasecache.NewGormCache(gdb),
		rater:    newFakeRater(),
	}
}

func (e *env) worker(t *testing.T, cache phrasecache.Cache) *Worker {
	t.Helper()
	w, err := NewWorker(e.jobs, e.sessions, phrasecache.NewGuard(cache), e.rater, Options{
		ID:              "wrk-test",
		Lease:           time.Minute,
		PollInterval:    10 * time.Millisecond,
		LineConcurrency: 1,
	})
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	return w
}

func (e *env) dispatch(t *testing.T, sessionID string, repLines []string, maxAttempts int) *dispatch.Result {
	t.Helper()
	var entries []transcript.Entry
	for _, l := range repLines {
		entries = append(entries,
			transcript.Entry{Speaker: "rep", Text: l},
			transcript.Entry{Speaker: "customer", Text: "uh huh"},
		)
	}
	res, err := dispatch.Dispatch(context.Background(), e.db, dispatch.Request{
		SessionID:    sessionID,
		Transcript:   entries,
		RepName:      "Dana",
		CustomerName: "Lee",
	}, dispatch.Options{BatchSize: 5, MaxAttempts: maxAttempts})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	return res
}

func numbered(n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("rep line %d", i)
	}
	return lines
}

func TestGenerateID_Format(t *testing.T) {
	id, err := GenerateID()
	if err != nil {
		t.Fatalf("GenerateID() error: %v", err)
	}
	if !strings.HasPrefix(id, "wrk-") || len(id) != 12 {
		t.Errorf("ID = %q, want wrk- plus 8 hex chars", id)
	}
	for _, c := range id[4:] {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Errorf("ID %q contains non-hex char %c", id, c)
		}
	}
}

func TestNewWorker_Validation(t *testing.T) {
	e := newEnv(t)
	if _, err := NewWorker(nil, e.sessions, nil, e.rater, Options{}); err == nil {
		t.Error("expected error without job store")
	}
	if _, err := NewWorker(e.jobs, e.sessions, nil, nil, Options{}); err == nil {
		t.Error("expected error without rater")
	}
	w, err := NewWorker(e.jobs, e.sessions, nil, e.rater, Options{})
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	if !strings.HasPrefix(w.ID(), "wrk-") {
		t.Errorf("generated ID = %q", w.ID())
	}
	if w.opts.Lease != DefaultLease || w.opts.PollInterval != DefaultPollInterval {
		t.Errorf("defaults = %+v", w.opts)
	}
}

func TestPoll_EmptyQueue(t *testing.T) {
	e := newEnv(t)
	sum, err := e.worker(t, e.cache).Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if sum.Processed {
		t.Errorf("summary = %+v, want not processed", sum)
	}
}

func TestPoll_EndToEndTwelveLines(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.dispatch(t, "sess-12", numbered(12), 3)
	if res.TotalBatches != 3 {
		t.Fatalf("TotalBatches = %d, want 3", res.TotalBatches)
	}

	w := e.worker(t, e.cache)
	wantRated := []int{5, 5, 2}
	for i := 0; i < 3; i++ {
		sum, err := w.Poll(ctx)
		if err != nil {
			t.Fatalf("Poll %d: %v", i, err)
		}
		if !sum.Processed || sum.Status != models.JobCompleted {
			t.Fatalf("Poll %d summary = %+v", i, sum)
		}
		if sum.RatedCount != wantRated[i] || sum.ErrorCount != 0 {
			t.Errorf("Poll %d rated = %d errors = %d, want %d/0", i, sum.RatedCount, sum.ErrorCount, wantRated[i])
		}
	}

	sum, err := w.Poll(ctx)
	if err != nil || sum.Processed {
		t.Fatalf("fourth Poll = %+v, %v; want empty", sum, err)
	}

	state, err := e.sessions.State(ctx, "sess-12")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.CompletedBatches != 3 || state.TotalBatches != 3 {
		t.Errorf("batches = %d/%d, want 3/3", state.CompletedBatches, state.TotalBatches)
	}
	if state.GradingStatus != models.GradingCompleted {
		t.Errorf("status = %s, want completed", state.GradingStatus)
	}
	if len(state.LineRatings) != 12 {
		t.Errorf("line ratings = %d, want 12", len(state.LineRatings))
	}
	// Rep lines sit at even transcript positions.
	if got := state.LineRatings["22"]; got.Rating != rating.Good || got.Text != "rep line 11" {
		t.Errorf("line 22 = %+v", got)
	}

	jobs, _ := e.jobs.ListBySession(ctx, "sess-12")
	for _, j := range jobs {
		if j.Status != models.JobCompleted {
			t.Errorf("job %d status = %s", j.BatchIndex, j.Status)
		}
	}
}

func TestPoll_DegradedLineIsolated(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.rater.fail["rep line 2"] = errors.New("rating: http 503: upstream down")
	e.dispatch(t, "sess-5", numbered(5), 3)

	sum, err := e.worker(t, e.cache).Poll(ctx)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if sum.Status != models.JobCompleted || sum.RatedCount != 4 || sum.ErrorCount != 1 {
		t.Errorf("summary = %+v, want completed with 4 rated 1 error", sum)
	}

	state, _ := e.sessions.State(ctx, "sess-5")
	if state.GradingStatus != models.GradingCompleted || len(state.LineRatings) != 5 {
		t.Fatalf("state = %+v", state)
	}
	for idx, lr := range state.LineRatings {
		if idx == "4" {
			if lr.Rating != session.RatingError || len(lr.Alternatives) != 0 || !strings.Contains(lr.Error, "503") {
				t.Errorf("degraded line = %+v", lr)
			}
			continue
		}
		if lr.Rating != rating.Good || lr.Error != "" {
			t.Errorf("line %s = %+v, want good", idx, lr)
		}
	}

	if _, ok, _ := e.cache.Get(ctx, phrasecache.Normalize("rep line 2")); ok {
		t.Error("degraded rating was cached")
	}
	if _, ok, _ := e.cache.Get(ctx, phrasecache.Normalize("rep line 1")); !ok {
		t.Error("good rating was not cached")
	}
}

func TestPoll_CacheHitSkipsRater(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if err := e.cache.Put(ctx, phrasecache.Normalize("Hi there!"), phrasecache.Entry{
		Rating:       rating.Excellent,
		Alternatives: []string{"Hello, thanks for calling!"},
	}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	e.dispatch(t, "sess-hit", []string{"  hi   THERE! "}, 3)

	sum, err := e.worker(t, e.cache).Poll(ctx)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if e.rater.total() != 0 {
		t.Errorf("rater called %d times, want 0", e.rater.total())
	}
	if sum.CachedCount != 1 || sum.RatedCount != 1 {
		t.Errorf("summary = %+v", sum)
	}

	state, _ := e.sessions.State(ctx, "sess-hit")
	lr := state.LineRatings["0"]
	if !lr.Cached || lr.Rating != rating.Excellent || len(lr.Alternatives) != 1 {
		t.Errorf("line 0 = %+v, want cached excellent", lr)
	}
}

func TestPoll_RepeatedPhraseServedFromCache(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	w := e.worker(t, phrasecache.NewLayered(phrasecache.NewMemoryCache(16), e.cache))

	e.dispatch(t, "first", []string{"Thanks for calling"}, 3)
	if _, err := w.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	e.dispatch(t, "second", []string{"thanks for   calling"}, 3)
	sum, err := w.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if sum.CachedCount != 1 {
		t.Errorf("second summary = %+v, want cached", sum)
	}
	if e.rater.total() != 1 {
		t.Errorf("rater calls = %d, want 1", e.rater.total())
	}
}

func TestPoll_CacheUnavailable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.dispatch(t, "sess-nocache", numbered(3), 3)

	sum, err := e.worker(t, failingCache{}).Poll(ctx)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if sum.Status != models.JobCompleted || sum.RatedCount != 3 || sum.CachedCount != 0 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestPoll_MissingSessionFailsImmediately(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	job, err := queue.NewJob("ghost", 0, 1, 3, []models.Line{{LineIndex: 0, Text: "hello"}})
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	if _, err := e.jobs.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	sum, err := e.worker(t, e.cache).Poll(ctx)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if sum.Status != models.JobFailed {
		t.Errorf("Status = %s, want failed", sum.Status)
	}
	got, _ := e.jobs.Get(ctx, job.ID)
	if got.Status != models.JobFailed || got.Attempts != 1 {
		t.Errorf("job = %s attempts %d, want failed after 1", got.Status, got.Attempts)
	}
	if e.rater.total() != 0 {
		t.Error("rater called for a missing session")
	}
}

// stallOn makes the rater cancel the poll context when it reaches text.
func stallOn(r *fakeRater, text string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = func(ctx context.Context, t string) error {
		if t == text {
			cancel()
		}
		return ctx.Err()
	}
}

func TestPoll_InterruptedMergesPartial(t *testing.T) {
	e := newEnv(t)
	e.dispatch(t, "sess-int", []string{"first", "stall", "third"}, 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stallOn(e.rater, "stall", cancel)

	sum, err := e.worker(t, e.cache).Poll(ctx)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if sum.Status != models.JobPending {
		t.Errorf("Status = %s, want pending", sum.Status)
	}

	state, _ := e.sessions.State(context.Background(), "sess-int")
	if state.CompletedBatches != 0 || state.GradingStatus != models.GradingProcessing {
		t.Errorf("state batches=%d status=%s", state.CompletedBatches, state.GradingStatus)
	}
	if len(state.LineRatings) != 1 || state.LineRatings["0"].Text != "first" {
		t.Errorf("line ratings = %+v, want only the first line", state.LineRatings)
	}

	job, _ := e.jobs.Get(context.Background(), sum.JobID)
	if job.Attempts != 1 || job.Status != models.JobPending {
		t.Errorf("job = %s attempts %d", job.Status, job.Attempts)
	}

	// A later poll finishes the batch and counts it once.
	e.rater.mu.Lock()
	e.rater.hook = nil
	e.rater.mu.Unlock()
	sum, err = e.worker(t, e.cache).Poll(context.Background())
	if err != nil || sum.Status != models.JobCompleted {
		t.Fatalf("second Poll = %+v, %v", sum, err)
	}
	state, _ = e.sessions.State(context.Background(), "sess-int")
	if state.CompletedBatches != 1 || len(state.LineRatings) != 3 || state.GradingStatus != models.GradingCompleted {
		t.Errorf("final state = %+v", state)
	}
}

func TestPoll_RetryUntilFailed(t *testing.T) {
	e := newEnv(t)
	const maxAttempts = 3
	res := e.dispatch(t, "sess-retry", []string{"stall"}, maxAttempts)
	w := e.worker(t, e.cache)

	for i := 1; i <= maxAttempts; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		stallOn(e.rater, "stall", cancel)
		sum, err := w.Poll(ctx)
		cancel()
		if err != nil {
			t.Fatalf("Poll %d: %v", i, err)
		}
		want := models.JobPending
		if i == maxAttempts {
			want = models.JobFailed
		}
		if sum.Status != want {
			t.Errorf("Poll %d status = %s, want %s", i, sum.Status, want)
		}
	}

	job, _ := e.jobs.Get(context.Background(), res.JobIDs[0])
	if job.Status != models.JobFailed || job.Attempts != maxAttempts {
		t.Errorf("job = %s attempts %d, want failed/%d", job.Status, job.Attempts, maxAttempts)
	}
	sum, err := w.Poll(context.Background())
	if err != nil || sum.Processed {
		t.Errorf("Poll after failure = %+v, %v; want empty", sum, err)
	}

	state, _ := e.sessions.State(context.Background(), "sess-retry")
	if state.GradingStatus != models.GradingProcessing {
		t.Errorf("status = %s, want processing with a failed batch", state.GradingStatus)
	}
}

// reclaimDuring makes the rater expire the worker's lease once, before the
// first line is rated, then run after against the reclaimed queue.
func reclaimDuring(e *env, after func(ctx context.Context) error) {
	var once sync.Once
	e.rater.mu.Lock()
	defer e.rater.mu.Unlock()
	e.rater.hook = func(ctx context.Context, _ string) error {
		var err error
		once.Do(func() {
			if _, _, err = e.jobs.ReclaimExpired(ctx, time.Now().Add(time.Hour)); err != nil {
				return
			}
			if after != nil {
				err = after(ctx)
			}
		})
		return err
	}
}

func TestPoll_ReclaimedAndFailedIsNotCounted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.dispatch(t, "sess-lost", numbered(2), 1)
	reclaimDuring(e, nil)

	sum, err := e.worker(t, e.cache).Poll(ctx)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if sum.Status != models.JobFailed {
		t.Errorf("Status = %s, want failed", sum.Status)
	}

	job, _ := e.jobs.Get(ctx, res.JobIDs[0])
	if job.Status != models.JobFailed || job.Attempts != 1 {
		t.Errorf("job = %s attempts %d, want failed/1", job.Status, job.Attempts)
	}
	state, _ := e.sessions.State(ctx, "sess-lost")
	if state.CompletedBatches != 0 || state.GradingStatus != models.GradingProcessing {
		t.Errorf("session = %d batches %s, want 0 processing", state.CompletedBatches, state.GradingStatus)
	}
	if len(state.LineRatings) != 2 {
		t.Errorf("line ratings = %d, want 2 merged", len(state.LineRatings))
	}
}

func TestPoll_ReclaimedAndClaimedElsewhereIsNotCounted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.dispatch(t, "sess-stolen", numbered(1), 3)
	reclaimDuring(e, func(ctx context.Context) error {
		_, err := e.jobs.ClaimNext(ctx, "wrk-other", time.Minute)
		return err
	})

	sum, err := e.worker(t, e.cache).Poll(ctx)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if sum.Status != models.JobProcessing {
		t.Errorf("Status = %s, want processing", sum.Status)
	}

	job, _ := e.jobs.Get(ctx, res.JobIDs[0])
	if job.Status != models.JobProcessing || job.ClaimedBy != "wrk-other" {
		t.Errorf("job = %s held by %q, want processing by wrk-other", job.Status, job.ClaimedBy)
	}
	state, _ := e.sessions.State(ctx, "sess-stolen")
	if state.CompletedBatches != 0 {
		t.Errorf("CompletedBatches = %d, want 0", state.CompletedBatches)
	}
}

func TestPoll_ReclaimedAndRequeuedStillCompletes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.dispatch(t, "sess-requeued", numbered(1), 3)
	reclaimDuring(e, nil)

	sum, err := e.worker(t, e.cache).Poll(ctx)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if sum.Status != models.JobCompleted {
		t.Errorf("Status = %s, want completed", sum.Status)
	}
	job, _ := e.jobs.Get(ctx, res.JobIDs[0])
	if job.Status != models.JobCompleted {
		t.Errorf("job status = %s, want completed", job.Status)
	}
	state, _ := e.sessions.State(ctx, "sess-requeued")
	if state.CompletedBatches != 1 || state.GradingStatus != models.GradingCompleted {
		t.Errorf("session = %d batches %s, want 1 completed", state.CompletedBatches, state.GradingStatus)
	}
}

func TestPoll_SessionReadErrorRetriesUntilFailed(t *testing.T) {
	e := newEnv(t)
	const maxAttempts = 3
	res := e.dispatch(t, "sess-dbdown", numbered(1), maxAttempts)

	err := e.db.Callback().Query().Before("gorm:query").Register("test:fail_session_reads", func(tx *gorm.DB) {
		if tx.Statement.Table == "grading_sessions" {
			_ = tx.AddError(errors.New("database is unavailable"))
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	w := e.worker(t, e.cache)
	for i := 1; i <= maxAttempts; i++ {
		sum, err := w.Poll(context.Background())
		if err != nil {
			t.Fatalf("Poll %d: %v", i, err)
		}
		want := models.JobPending
		if i == maxAttempts {
			want = models.JobFailed
		}
		if sum.Status != want {
			t.Errorf("Poll %d status = %s, want %s", i, sum.Status, want)
		}
	}

	job, _ := e.jobs.Get(context.Background(), res.JobIDs[0])
	if job.Status != models.JobFailed || job.Attempts != maxAttempts {
		t.Errorf("job = %s attempts %d, want failed/%d", job.Status, job.Attempts, maxAttempts)
	}
	if !strings.Contains(job.Error, "database is unavailable") {
		t.Errorf("job error = %q", job.Error)
	}
	if e.rater.total() != 0 {
		t.Errorf("rater called %d times without a session", e.rater.total())
	}
}

func TestPoll_SessionDeletedDuringRatingFails(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	res := e.dispatch(t, "sess-gone", []string{"first", "stall"}, 3)

	e.rater.mu.Lock()
	e.rater.hook = func(hctx context.Context, text string) error {
		if text == "stall" {
			if err := e.db.Where("id = ?", "sess-gone").Delete(&models.GradingSession{}).Error; err != nil {
				return err
			}
			cancel()
		}
		return hctx.Err()
	}
	e.rater.mu.Unlock()

	sum, err := e.worker(t, e.cache).Poll(ctx)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if sum.Status != models.JobFailed {
		t.Errorf("Status = %s, want failed", sum.Status)
	}
	job, _ := e.jobs.Get(context.Background(), res.JobIDs[0])
	if job.Status != models.JobFailed || job.Attempts != 1 {
		t.Errorf("job = %s attempts %d, want failed/1", job.Status, job.Attempts)
	}
}

func TestRunPool_DrainsQueue(t *testing.T) {
	e := newEnv(t)
	e.dispatch(t, "sess-pool", numbered(12), 3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunPool(ctx, 2, func(i int) (*Worker, error) {
			return NewWorker(e.jobs, e.sessions, phrasecache.NewGuard(e.cache), e.rater, Options{
				ID:           fmt.Sprintf("wrk-%d", i),
				Lease:        time.Minute,
				PollInterval: 10 * time.Millisecond,
			})
		})
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		state, err := e.sessions.State(context.Background(), "sess-pool")
		if err == nil && state.GradingStatus == models.GradingCompleted {
			if len(state.LineRatings) != 12 || state.CompletedBatches != 3 {
				t.Errorf("state = %+v", state)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("pool did not complete the session in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("RunPool: %v", err)
	}
}

func TestRunPool_InvalidSize(t *testing.T) {
	if err := RunPool(context.Background(), 0, nil); err == nil {
		t.Error("expected error for zero workers")
	}
}

func TestStartLeaseHeartbeat(t *testing.T) {
	e := newEnv(t)
	e.dispatch(t, "sess-hb", numbered(1), 3)
	job, err := e.jobs.ClaimNext(context.Background(), "wrk-a", time.Second)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := StartLeaseHeartbeat(ctx, e.jobs, job.ID, "wrk-a", time.Hour, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		t.Fatalf("unexpected heartbeat error: %v", err)
	default:
	}
	got, _ := e.jobs.Get(context.Background(), job.ID)
	if got.LeaseExpiresAt == nil || !got.LeaseExpiresAt.After(job.LeaseExpiresAt.Add(time.Minute)) {
		t.Errorf("lease not extended: %v", got.LeaseExpiresAt)
	}

	lostCh := StartLeaseHeartbeat(context.Background(), e.jobs, job.ID, "wrk-b", time.Hour, 10*time.Millisecond)
	select {
	case err := <-lostCh:
		if !errors.Is(err, queue.ErrNotClaimed) {
			t.Errorf("err = %v, want ErrNotClaimed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("heartbeat for a foreign worker did not report an error")
	}
}
