package yardmaster

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// sweepTimeout bounds a single scheduled sweep.
const sweepTimeout = time.Minute

// Run sweeps once immediately and then on the configured schedule until ctx
// is cancelled. A sweep that is still running when the next one is due
// causes that tick to be skipped.
func (s *Supervisor) Run(ctx context.Context) error {
	logger := cronLogger{s.log}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() { s.runSweep(ctx) }))

	s.log.Infow("supervisor started", "schedule", s.opts.Schedule, "alerts", s.opts.Alert && s.notifier.Enabled())
	s.runSweep(ctx)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	if err := s.notifier.Close(); err != nil {
		s.log.Warnw("close notifier", "error", err)
	}
	s.log.Infow("supervisor stopped")
	return nil
}

func (s *Supervisor) runSweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()
	res, err := s.Sweep(sweepCtx)
	if err != nil {
		s.log.Errorw("sweep failed", "error", err)
		return
	}
	s.log.Debugw("sweep done", "requeued", res.Requeued, "failed", res.Failed, "alerted", res.Alerted)
}

// cronLogger routes cron's internal logging through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
