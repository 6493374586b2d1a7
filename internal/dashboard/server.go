// Package dashboard serves the linegrade HTTP API: grading triggers, the
// pollable grading state, queue inspection, and prometheus metrics.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zulandar/linegrade/internal/dispatch"
	"github.com/zulandar/linegrade/internal/engine"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options holds configuration for the HTTP server.
type Options struct {
	DB       *gorm.DB
	Port     int
	Dispatch dispatch.Options
	// Worker backs POST /api/worker/poll. Nil answers 503.
	Worker *engine.Worker
	// Gatherer backs GET /metrics. Defaults to the prometheus default registry.
	Gatherer prometheus.Gatherer
	// ProgressInterval is how often the progress stream re-reads state.
	ProgressInterval time.Duration
}

// Start launches the HTTP server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts Options) error {
	if opts.Port <= 0 {
		opts.Port = 8080
	}
	gin.SetMode(gin.ReleaseMode)
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	zap.S().Named("server").Infow("listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts Options) (*gin.Engine, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("dashboard: db is required")
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 2 * time.Second
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(zap.S().Named("http")))
	registerRoutes(router, newHandlers(opts))
	return router, nil
}

// requestLogger logs one line per request through zap.
func requestLogger(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		kv := []interface{}{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			kv = append(kv, "error", c.Errors.String())
		}
		switch {
		case status >= 500:
			log.Errorw("request", kv...)
		case status >= 400:
			log.Warnw("request", kv...)
		default:
			log.Debugw("request", kv...)
		}
	}
}
