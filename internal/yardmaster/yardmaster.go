// Package yardmaster implements the queue supervisor. On a cron schedule it
// reclaims jobs whose lease expired and alerts on jobs that failed for good.
package yardmaster

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/linegrade/internal/queue"
	"github.com/zulandar/linegrade/internal/telegraph"
	"go.uber.org/zap"
)

// Defaults applied when Options leaves a field unset.
const (
	DefaultSchedule   = "@every 30s"
	DefaultAlertLimit = 50
)

// Options configures a Supervisor.
type Options struct {
	Schedule   string // standard cron expression or @every descriptor
	Alert      bool   // send failed-job alerts through the notifier
	AlertLimit int    // max failed jobs reported per sweep
}

// Supervisor runs the periodic maintenance sweeps for the job queue.
type Supervisor struct {
	jobs     *queue.Store
	notifier *telegraph.Notifier
	opts     Options
	schedule cron.Schedule
	now      func() time.Time
	log      *zap.SugaredLogger
}

// New returns a Supervisor. A nil notifier disables alerts.
func New(jobs *queue.Store, notifier *telegraph.Notifier, opts Options) (*Supervisor, error) {
	if jobs == nil {
		return nil, fmt.Errorf("yardmaster: job store is required")
	}
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if opts.AlertLimit <= 0 {
		opts.AlertLimit = DefaultAlertLimit
	}
	sched, err := cron.ParseStandard(opts.Schedule)
	if err != nil {
		return nil, fmt.Errorf("yardmaster: schedule %q: %w", opts.Schedule, err)
	}
	if notifier == nil {
		notifier = telegraph.NewNotifier()
	}
	return &Supervisor{
		jobs:     jobs,
		notifier: notifier,
		opts:     opts,
		schedule: sched,
		now:      time.Now,
		log:      zap.S().Named("yardmaster"),
	}, nil
}
