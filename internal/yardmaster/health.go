package yardmaster

import (
	"context"
	"fmt"

	"github.com/zulandar/linegrade/internal/telegraph"
)

// SweepResult reports what one Sweep did.
type SweepResult struct {
	Requeued int64 `json:"requeued"`
	Failed   int64 `json:"failed"`
	Alerted  int   `json:"alerted"`
}

// Sweep reclaims expired leases and then, when alerts are enabled, reports
// permanently failed jobs that have not been reported yet.
func (s *Supervisor) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	requeued, failed, err := s.jobs.ReclaimExpired(ctx, s.now())
	if err != nil {
		return res, fmt.Errorf("yardmaster: reclaim: %w", err)
	}
	res.Requeued, res.Failed = requeued, failed
	if requeued > 0 || failed > 0 {
		s.log.Warnw("reclaimed expired leases", "requeued", requeued, "failed", failed)
	}

	if !s.opts.Alert || !s.notifier.Enabled() {
		return res, nil
	}
	n, err := s.alertFailures(ctx, res)
	res.Alerted = n
	if err != nil {
		return res, err
	}
	return res, nil
}

// alertFailures sends one digest for the unreported failed jobs and marks
// each as alerted. Jobs stay unreported when delivery fails so the next
// sweep tries again.
func (s *Supervisor) alertFailures(ctx context.Context, res SweepResult) (int, error) {
	jobs, err := s.jobs.UnalertedFailures(ctx, s.opts.AlertLimit)
	if err != nil {
		return 0, fmt.Errorf("yardmaster: list failures: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	var lead []telegraph.FormattedEvent
	if res.Failed > 0 {
		lead = append(lead, telegraph.FormatReclaim(res.Requeued, res.Failed))
	}
	msg := telegraph.FailureDigest(jobs, lead...)
	if err := s.notifier.Notify(ctx, msg); err != nil {
		return 0, fmt.Errorf("yardmaster: alert: %w", err)
	}

	alerted := 0
	for _, j := range jobs {
		if err := s.jobs.MarkAlerted(ctx, j.ID); err != nil {
			s.log.Errorw("mark alerted", "job", j.ID, "error", err)
			continue
		}
		alerted++
	}
	s.log.Infow("failed jobs alerted", "count", alerted)
	return alerted, nil
}
