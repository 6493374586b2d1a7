package phrasecache

import "context"

// Layered checks a fast front cache before a durable back cache, and fills
// the front from the back on a hit.
type Layered struct {
	front Cache
	back  Cache
}

// NewLayered returns a cache that reads front first and writes through to
// both.
func NewLayered(front, back Cache) *Layered {
	return &Layered{front: front, back: back}
}

// Get returns the front entry, else the back entry.
func (l *Layered) Get(ctx context.Context, text string) (Entry, bool, error) {
	if e, ok, err := l.front.Get(ctx, text); err == nil && ok {
		return e, true, nil
	}
	e, ok, err := l.back.Get(ctx, text)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	// Refilling the front is best effort; the back entry is authoritative.
	_ = l.front.Put(ctx, text, e)
	return e, true, nil
}

// Put writes the back cache, then the front.
func (l *Layered) Put(ctx context.Context, text string, e Entry) error {
	if err := l.back.Put(ctx, text, e); err != nil {
		return err
	}
	return l.front.Put(ctx, text, e)
}
