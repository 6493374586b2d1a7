package phrasecache

import (
	"context"

	"github.com/zulandar/linegrade/internal/metrics"
	"go.uber.org/zap"
)

// Guard wraps a Cache so that failures never reach the caller: a failed Get
// is a miss and a failed Put is a no-op. A Guard with no backend always
// misses.
type Guard struct {
	inner Cache
	log   *zap.SugaredLogger
}

// NewGuard wraps inner. inner may be nil to disable caching.
func NewGuard(inner Cache) *Guard {
	return &Guard{inner: inner, log: zap.S().Named("phrasecache")}
}

// Get returns the cached entry, treating any error as a miss.
func (g *Guard) Get(ctx context.Context, text string) (Entry, bool) {
	if g.inner == nil {
		return Entry{}, false
	}
	e, ok, err := g.inner.Get(ctx, text)
	if err != nil {
		metrics.CacheErrors.WithLabelValues("get").Inc()
		g.log.Debugw("cache get failed, treating as miss", "error", err)
		return Entry{}, false
	}
	return e, ok
}

// Put stores the entry, ignoring any error.
func (g *Guard) Put(ctx context.Context, text string, e Entry) {
	if g.inner == nil {
		return
	}
	if err := g.inner.Put(ctx, text, e); err != nil {
		metrics.CacheErrors.WithLabelValues("put").Inc()
		g.log.Debugw("cache put failed, skipping", "error", err)
	}
}
