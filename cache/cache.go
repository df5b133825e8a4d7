// Package cache deduplicates expensive analysis and generation calls.
//
// Entries are keyed by content fingerprint plus stage name, are immutable
// after insertion, and are evicted on TTL expiry or LRU pressure.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"
)

// Artifact is one cached stage output.
type Artifact struct {
	Fingerprint string
	Stage       string
	Value       any
	StoredAt    time.Time
}

// entry wraps an artifact with its LRU bookkeeping.
type entry struct {
	artifact Artifact
	elem     *list.Element
}

// call tracks an in-flight computation so concurrent lookups for the same
// key wait for one result instead of recomputing.
type call struct {
	done chan struct{}
	val  any
	err  error
}

// Cache is a TTL + LRU cache of stage artifacts. Safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	lru        *list.List // front = most recent
	inflight   map[string]*call
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// Default cache sizing.
const (
	DefaultMaxEntries = 256
	DefaultTTL        = 24 * time.Hour
)

// New creates a cache holding at most maxEntries artifacts, each valid for
// ttl after insertion. Zero values select the defaults.
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries:    make(map[string]*entry),
		lru:        list.New(),
		inflight:   make(map[string]*call),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

func key(fingerprint, stage string) string {
	return fingerprint + "/" + stage
}

// Get returns the cached value for (fingerprint, stage) if present and not
// expired.
func (c *Cache) Get(fingerprint, stage string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key(fingerprint, stage))
}

// Put stores a value. An existing entry for the same key is replaced; the
// stored artifact itself is never mutated.
func (c *Cache) Put(fingerprint, stage string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(key(fingerprint, stage), Artifact{
		Fingerprint: fingerprint,
		Stage:       stage,
		Value:       value,
		StoredAt:    c.now(),
	})
}

// GetOrCompute returns the cached value for the key, or runs compute to
// produce and store it. Concurrent callers for the same key share a single
// computation; errors are returned to all waiters and never cached.
func (c *Cache) GetOrCompute(ctx context.Context, fingerprint, stage string, compute func(ctx context.Context) (any, error)) (any, error) {
	k := key(fingerprint, stage)

	c.mu.Lock()
	if v, ok := c.getLocked(k); ok {
		c.mu.Unlock()
		return v, nil
	}
	if inflight, ok := c.inflight[k]; ok {
		c.mu.Unlock()
		select {
		case <-inflight.done:
			return inflight.val, inflight.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	cl := &call{done: make(chan struct{})}
	c.inflight[k] = cl
	c.mu.Unlock()

	cl.val, cl.err = compute(ctx)

	c.mu.Lock()
	delete(c.inflight, k)
	if cl.err == nil {
		c.putLocked(k, Artifact{
			Fingerprint: fingerprint,
			Stage:       stage,
			Value:       cl.val,
			StoredAt:    c.now(),
		})
	}
	c.mu.Unlock()
	close(cl.done)

	return cl.val, cl.err
}

// Len returns the number of live (unexpired) entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, e := range c.entries {
		if c.now().Sub(e.artifact.StoredAt) < c.ttl {
			n++
		}
	}
	return n
}

// getLocked looks up and freshens a key. Must be called with the mutex held.
func (c *Cache) getLocked(k string) (any, bool) {
	e, ok := c.entries[k]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.artifact.StoredAt) >= c.ttl {
		c.removeLocked(k, e)
		return nil, false
	}
	c.lru.MoveToFront(e.elem)
	return e.artifact.Value, true
}

// putLocked inserts an artifact, evicting the least recently used entry
// when over capacity. Must be called with the mutex held.
func (c *Cache) putLocked(k string, a Artifact) {
	if e, ok := c.entries[k]; ok {
		c.removeLocked(k, e)
	}

	for len(c.entries) >= c.maxEntries {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		ok := oldest.Value.(string)
		c.removeLocked(ok, c.entries[ok])
	}

	elem := c.lru.PushFront(k)
	c.entries[k] = &entry{artifact: a, elem: elem}
}

func (c *Cache) removeLocked(k string, e *entry) {
	c.lru.Remove(e.elem)
	delete(c.entries, k)
}

// String describes cache occupancy, for logs.
func (c *Cache) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("cache(%d/%d entries, ttl %v)", len(c.entries), c.maxEntries, c.ttl)
}
