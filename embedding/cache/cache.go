// Package cache maps content fingerprints to embedding vectors so identical
// bytes never trigger a second embedder call while the entry is resident.
//
// The cache is purely an optimization layer: eviction never invalidates
// already-indexed records, it only forces recomputation on a future miss.
package cache

import (
	"container/list"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/visearch/fingerprint"
)

// ErrInconsistentEmbedding indicates a Put for a fingerprint that already
// holds a different vector. Fingerprints are content-derived, so this is an
// integrity violation: the embedder is non-deterministic or corrupted.
var ErrInconsistentEmbedding = errors.New("inconsistent embedding")

// DefaultCapacity is the entry limit used when none is configured.
const DefaultCapacity = 4096

// Entry is a cached embedding. Entries are created on first successful embed
// for a fingerprint and never mutated.
type Entry struct {
	Fingerprint fingerprint.Fingerprint
	Vector      []float32
	ComputedAt  time.Time
}

// Cache is a bounded LRU embedding cache. Safe for concurrent use.
type Cache struct {
	mu        sync.Mutex
	capacity  int
	items     map[fingerprint.Fingerprint]*list.Element
	evictList *list.List

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache bounded to capacity entries.
// A capacity <= 0 selects DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity:  capacity,
		items:     make(map[fingerprint.Fingerprint]*list.Element),
		evictList: list.New(),
	}
}

// Get returns the cached vector for fp. The returned slice is shared and
// must be treated as read-only.
func (c *Cache) Get(fp fingerprint.Fingerprint) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[fp]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(ent)
		return ent.Value.(*Entry).Vector, true
	}
	c.misses.Add(1)
	return nil, false
}

// Put stores the vector for fp. A second Put with an identical vector is an
// idempotent no-op; a different vector returns ErrInconsistentEmbedding and
// leaves the cached entry untouched.
func (c *Cache) Put(fp fingerprint.Fingerprint, vector []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[fp]; ok {
		if !slices.Equal(ent.Value.(*Entry).Vector, vector) {
			return ErrInconsistentEmbedding
		}
		c.evictList.MoveToFront(ent)
		return nil
	}

	element := c.evictList.PushFront(&Entry{
		Fingerprint: fp,
		Vector:      slices.Clone(vector),
		ComputedAt:  time.Now(),
	})
	c.items[fp] = element

	for len(c.items) > c.capacity {
		back := c.evictList.Back()
		if back == nil {
			break
		}
		c.removeElement(back)
	}
	return nil
}

func (c *Cache) removeElement(e *list.Element) {
	c.evictList.Remove(e)
	delete(c.items, e.Value.(*Entry).Fingerprint)
}

// Len returns the number of resident entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns hit and miss counters.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Entries returns a copy of all resident entries, most recently used first.
// Used by snapshots.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]Entry, 0, len(c.items))
	for e := c.evictList.Front(); e != nil; e = e.Next() {
		ent := e.Value.(*Entry)
		entries = append(entries, Entry{
			Fingerprint: ent.Fingerprint,
			Vector:      slices.Clone(ent.Vector),
			ComputedAt:  ent.ComputedAt,
		})
	}
	return entries
}

// Restore loads entries preserving LRU order: entries[0] becomes the most
// recently used. Entries beyond capacity are dropped. Used when reloading a
// snapshot.
func (c *Cache) Restore(entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := len(entries) - 1; i >= 0; i-- {
		ent := entries[i]
		if existing, ok := c.items[ent.Fingerprint]; ok {
			c.evictList.MoveToFront(existing)
			continue
		}
		element := c.evictList.PushFront(&Entry{
			Fingerprint: ent.Fingerprint,
			Vector:      slices.Clone(ent.Vector),
			ComputedAt:  ent.ComputedAt,
		})
		c.items[ent.Fingerprint] = element
	}
	for len(c.items) > c.capacity {
		back := c.evictList.Back()
		if back == nil {
			break
		}
		c.removeElement(back)
	}
}
