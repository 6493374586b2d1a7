package rating

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

type limited struct {
	next Rater
	sem  *semaphore.Weighted
}

// Limit wraps r so that at most n Rate calls run at once across every
// goroutine sharing the returned Rater.
func Limit(r Rater, n int) Rater {
	if n <= 0 {
		return r
	}
	return &limited{next: r, sem: semaphore.NewWeighted(int64(n))}
}

func (l *limited) Rate(ctx context.Context, text string, rc Context) (Result, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return Result{}, fmt.Errorf("rating: wait for slot: %w", err)
	}
	defer l.sem.Release(1)
	return l.next.Rate(ctx, text, rc)
}
