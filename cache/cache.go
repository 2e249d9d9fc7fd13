// Package cache memoizes finished try-on results so repeated requests for
// the same subject/garment combination skip regeneration.
package cache

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry is the cached payload for a finished composite. It carries only the
// delivery URL and display metadata; session bookkeeping always happens per
// request, cache hit or not.
type Entry struct {
	ResultURL       string
	ModelName       string
	ProductName     string
	ModelImageURL   string
	ProductImageURL string
	Provider        string
}

// Cache is the result-cache abstraction. Implementations must be safe for
// concurrent use; they need not prevent duplicate concurrent regeneration.
type Cache interface {
	Get(key string) (Entry, bool)
	Put(key string, e Entry, ttl time.Duration)
}

// Key builds a deterministic cache key from the subject id and garment ids.
// Garment ids are sorted so [A,B] and [B,A] hit the same entry.
func Key(subjectID string, garmentIDs ...string) string {
	ids := append([]string(nil), garmentIDs...)
	sort.Strings(ids)
	return "tryon:" + subjectID + ":" + strings.Join(ids, ":")
}

type item struct {
	entry     Entry
	expiresAt time.Time
}

// InMemory is a process-lifetime Cache with lazy TTL eviction.
type InMemory struct {
	mu    sync.Mutex
	items map[string]item
	now   func() time.Time
}

// NewInMemory creates an empty in-memory cache.
func NewInMemory() *InMemory {
	return &InMemory{items: make(map[string]item), now: time.Now}
}

// Get returns the entry for key if present and not expired. Expired entries
// are evicted on lookup.
func (c *InMemory) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[key]
	if !ok {
		return Entry{}, false
	}
	if !c.now().Before(it.expiresAt) {
		delete(c.items, key)
		return Entry{}, false
	}
	return it.entry, true
}

// Put stores an entry under key for ttl.
func (c *InMemory) Put(key string, e Entry, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = item{entry: e, expiresAt: c.now().Add(ttl)}
}
