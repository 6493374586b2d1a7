package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/linegrade/internal/queue"
)

// DefaultHeartbeatInterval is used when the lease is too short to derive one.
const DefaultHeartbeatInterval = 10 * time.Second

// heartbeatInterval renews a lease three times per lease period.
func heartbeatInterval(lease time.Duration) time.Duration {
	if lease <= 0 {
		return DefaultHeartbeatInterval
	}
	return lease / 3
}

// StartLeaseHeartbeat launches a goroutine that periodically extends the
// lease on a claimed job. It returns a channel that receives an error if
// the job is no longer held by workerID or the extension fails. The
// goroutine exits when ctx is cancelled.
func StartLeaseHeartbeat(ctx context.Context, jobs *queue.Store, jobID, workerID string, lease, interval time.Duration) <-chan error {
	if interval <= 0 {
		interval = heartbeatInterval(lease)
	}

	errCh := make(chan error, 1)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := jobs.ExtendLease(ctx, jobID, workerID, lease); err != nil {
					if ctx.Err() != nil {
						return
					}
					errCh <- fmt.Errorf("engine: heartbeat %s: %w", jobID, err)
					return
				}
			}
		}
	}()

	return errCh
}
