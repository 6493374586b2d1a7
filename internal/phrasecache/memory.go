package phrasecache

import (
	"container/list"
	"context"
	"sync"
)

// MemoryCache is a bounded in-process cache that evicts the least recently
// used entry once full.
type MemoryCache struct {
	mu      sync.Mutex
	max     int
	order   *list.List
	entries map[string]*list.Element
}

type memoryItem struct {
	text  string
	entry Entry
}

// NewMemoryCache returns a cache holding at most max entries.
func NewMemoryCache(max int) *MemoryCache {
	if max <= 0 {
		max = 1
	}
	return &MemoryCache{
		max:     max,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// Get returns the entry for normalized text.
func (c *MemoryCache) Get(_ context.Context, text string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[text]
	if !ok {
		return Entry{}, false, nil
	}
	c.order.MoveToFront(el)
	return copyEntry(el.Value.(*memoryItem).entry), true, nil
}

// Put stores the entry for normalized text.
func (c *MemoryCache) Put(_ context.Context, text string, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[text]; ok {
		el.Value.(*memoryItem).entry = copyEntry(e)
		c.order.MoveToFront(el)
		return nil
	}
	c.entries[text] = c.order.PushFront(&memoryItem{text: text, entry: copyEntry(e)})
	for c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*memoryItem).text)
	}
	return nil
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func copyEntry(e Entry) Entry {
	alts := make([]string, len(e.Alternatives))
	copy(alts, e.Alternatives)
	return Entry{Rating: e.Rating, Alternatives: alts}
}
