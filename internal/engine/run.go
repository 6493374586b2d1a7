package engine

import (
	"context"
	"fmt"

	"github.com/lthibault/jitterbug/v2"
	"golang.org/x/sync/errgroup"
)

// Run polls until ctx is cancelled. While jobs are available it drains them
// back to back; once the queue is empty it waits for the next jittered tick
// so idle workers do not poll in lockstep.
func (w *Worker) Run(ctx context.Context) error {
	ticker := jitterbug.New(w.opts.PollInterval, &jitterbug.Norm{Stdev: w.opts.PollInterval / 10})
	defer ticker.Stop()

	w.log.Infow("worker started", "lease", w.opts.Lease, "poll_interval", w.opts.PollInterval)
	for {
		for ctx.Err() == nil {
			sum, err := w.Poll(ctx)
			if err != nil {
				if ctx.Err() == nil {
					w.log.Errorw("poll failed", "error", err)
				}
				break
			}
			if !sum.Processed {
				break
			}
		}

		select {
		case <-ctx.Done():
			w.log.Infow("worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunPool runs n workers built by factory until ctx is cancelled or one of
// them returns an error.
func RunPool(ctx context.Context, n int, factory func(i int) (*Worker, error)) error {
	if n <= 0 {
		return fmt.Errorf("engine: pool size must be positive")
	}
	workers := make([]*Worker, 0, n)
	for i := 0; i < n; i++ {
		w, err := factory(i)
		if err != nil {
			return fmt.Errorf("engine: build worker %d: %w", i, err)
		}
		workers = append(workers, w)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		w := w
		g.Go(func() error { return w.Run(gctx) })
	}
	return g.Wait()
}
