package dashboard

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zulandar/linegrade/internal/dispatch"
	"github.com/zulandar/linegrade/internal/engine"
	"github.com/zulandar/linegrade/internal/models"
	"github.com/zulandar/linegrade/internal/queue"
	"github.com/zulandar/linegrade/internal/session"
	"github.com/zulandar/linegrade/internal/transcript"
	"gorm.io/gorm"
)

type handlers struct {
	db               *gorm.DB
	jobs             *queue.Store
	sessions         *session.Store
	dispatchOpts     dispatch.Options
	worker           *engine.Worker
	gatherer         prometheus.Gatherer
	progressInterval time.Duration
}

func newHandlers(opts Options) *handlers {
	return &handlers{
		db:               opts.DB,
		jobs:             queue.New(opts.DB),
		sessions:         session.New(opts.DB),
		dispatchOpts:     opts.Dispatch,
		worker:           opts.Worker,
		gatherer:         opts.Gatherer,
		progressInterval: opts.ProgressInterval,
	}
}

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, h *handlers) {
	router.GET("/healthz", h.healthz)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	api.POST("/sessions/:id/grade", h.grade)
	api.GET("/sessions/:id/grading", h.grading)
	api.GET("/sessions/:id/jobs", h.sessionJobs)
	api.POST("/sessions/:id/requeue", h.requeue)
	api.GET("/sessions/:id/events", h.progress)
	api.POST("/worker/poll", h.poll)
	api.GET("/queue/stats", h.queueStats)
}

// gradeRequest is the body of POST /api/sessions/:id/grade.
type gradeRequest struct {
	Transcript   []transcript.Entry `json:"transcript" binding:"required"`
	RepName      string             `json:"rep_name"`
	CustomerName string             `json:"customer_name"`
}

// jobView is the API representation of a batch job.
type jobView struct {
	ID           string     `json:"id"`
	BatchIndex   int        `json:"batch_index"`
	TotalBatches int        `json:"total_batches"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"max_attempts"`
	Error        string     `json:"error,omitempty"`
	ClaimedBy    string     `json:"claimed_by,omitempty"`
	LeaseExpires *time.Time `json:"lease_expires_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func newJobView(j models.Job) jobView {
	return jobView{
		ID:           j.ID,
		BatchIndex:   j.BatchIndex,
		TotalBatches: j.TotalBatches,
		Status:       j.Status,
		Attempts:     j.Attempts,
		MaxAttempts:  j.MaxAttempts,
		Error:        j.Error,
		ClaimedBy:    j.ClaimedBy,
		LeaseExpires: j.LeaseExpiresAt,
		CompletedAt:  j.CompletedAt,
		CreatedAt:    j.CreatedAt,
	}
}

func errorJSON(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		c.Error(err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *handlers) healthz(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		errorJSON(c, http.StatusServiceUnavailable, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) grade(c *gin.Context) {
	var body gradeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	res, err := dispatch.Dispatch(c.Request.Context(), h.db, dispatch.Request{
		SessionID:    c.Param("id"),
		Transcript:   body.Transcript,
		RepName:      body.RepName,
		CustomerName: body.CustomerName,
	}, h.dispatchOpts)
	switch {
	case errors.Is(err, dispatch.ErrAlreadyDispatched):
		errorJSON(c, http.StatusConflict, err)
		return
	case errors.Is(err, dispatch.ErrInvalidRequest):
		errorJSON(c, http.StatusBadRequest, err)
		return
	case err != nil:
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

func (h *handlers) grading(c *gin.Context) {
	state, err := h.sessions.State(c.Request.Context(), c.Param("id"))
	if errors.Is(err, session.ErrNotFound) {
		errorJSON(c, http.StatusNotFound, err)
		return
	}
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *handlers) sessionJobs(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := h.sessions.Get(ctx, id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrNotFound) {
			status = http.StatusNotFound
		}
		errorJSON(c, status, err)
		return
	}
	jobs, err := h.jobs.ListBySession(ctx, id)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	views := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, newJobView(j))
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "jobs": views})
}

func (h *handlers) requeue(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := h.sessions.Get(ctx, id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrNotFound) {
			status = http.StatusNotFound
		}
		errorJSON(c, status, err)
		return
	}
	n, err := h.jobs.RequeueFailed(ctx, id)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "requeued": n})
}

func (h *handlers) poll(c *gin.Context) {
	if h.worker == nil {
		errorJSON(c, http.StatusServiceUnavailable, errors.New("no worker configured on this server"))
		return
	}
	sum, err := h.worker.Poll(c.Request.Context())
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *handlers) queueStats(c *gin.Context) {
	counts, err := h.jobs.CountByStatus(c.Request.Context())
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}
