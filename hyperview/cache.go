// Package hyperview implements the bounded, coherently-invalidated cache
// of materialized HyperViews: an LRU keyed by
// (objectId, schemaId, depth, atTimestampOrNow), invalidated on every
// object id an appended delta references.
package hyperview

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"hyperdelta.dev/engine/delta"
	"hyperdelta.dev/engine/materialize"
)

type key struct {
	objectID string
	schemaID string
	depth    int
	at       int64
	atSet    bool
}

// Stats are the cache's read-only counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// Cache is disabled (every Get misses, every Put is a no-op) when
// constructed with capacity 0.
type Cache struct {
	mu        sync.Mutex
	inner     *lru.Cache[key, materialize.View]
	hits      int64
	misses    int64
	evictions int64
	// byObject indexes live keys by the object ids they were computed
	// for, so InvalidateForDelta doesn't need to enumerate the whole LRU.
	// Entries can go stale when the LRU capacity-evicts a key out from
	// under us (we learn about capacity eviction only via Add's return
	// value, not which key it took); a stale entry just costs one harmless
	// no-op Remove the next time that object is invalidated.
	byObject map[string]map[key]struct{}
}

// New builds a cache with the given bounded capacity. capacity <= 0
// disables caching entirely.
func New(capacity int) *Cache {
	if capacity <= 0 {
		return &Cache{}
	}
	inner, err := lru.New[key, materialize.View](capacity)
	if err != nil {
		// capacity is validated > 0 above; lru.New only errors on size <= 0.
		panic(err)
	}
	return &Cache{inner: inner, byObject: make(map[string]map[key]struct{})}
}

func mkKey(objectID, schemaID string, depth int, at *int64) key {
	k := key{objectID: objectID, schemaID: schemaID, depth: depth}
	if at != nil {
		k.at, k.atSet = *at, true
	}
	return k
}

// Get returns the cached view for (objectID, schemaID, depth, at), where a
// nil at means "materialized as of now".
func (c *Cache) Get(objectID, schemaID string, depth int, at *int64) (materialize.View, bool) {
	if c.inner == nil {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	v, ok := c.inner.Get(mkKey(objectID, schemaID, depth, at))
	if ok {
		atomic.AddInt64(&c.hits, 1)
		return v, true
	}
	atomic.AddInt64(&c.misses, 1)
	return nil, false
}

// Put stores view under (objectID, schemaID, depth, at).
func (c *Cache) Put(objectID, schemaID string, depth int, at *int64, view materialize.View) {
	if c.inner == nil {
		return
	}
	k := mkKey(objectID, schemaID, depth, at)
	if evicted := c.inner.Add(k, view); evicted {
		atomic.AddInt64(&c.evictions, 1)
	}
	c.track(k)
}

func (c *Cache) track(k key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.byObject[k.objectID]
	if !ok {
		set = make(map[key]struct{})
		c.byObject[k.objectID] = set
	}
	set[k] = struct{}{}
}

// InvalidateForDelta evicts every cache entry keyed by an object id that d
// directly references via an object-target pointer, across every schema,
// depth, and time-travel instant. Time-travel entries go stale too: a
// past-t query may now see a newly appended delta whose timestamp is
// earlier than t.
func (c *Cache) InvalidateForDelta(d *delta.Delta) {
	if c.inner == nil {
		return
	}
	seen := make(map[string]struct{})
	for _, p := range d.Pointers {
		if !p.Target.IsObject() {
			continue
		}
		if _, ok := seen[p.Target.ObjectID]; ok {
			continue
		}
		seen[p.Target.ObjectID] = struct{}{}
		c.invalidateObject(p.Target.ObjectID)
	}
}

func (c *Cache) invalidateObject(objectID string) {
	c.mu.Lock()
	keys := make([]key, 0, len(c.byObject[objectID]))
	for k := range c.byObject[objectID] {
		keys = append(keys, k)
	}
	delete(c.byObject, objectID)
	c.mu.Unlock()
	for _, k := range keys {
		c.inner.Remove(k)
	}
}

// Stats returns a snapshot of the cache's counters.
func (c *Cache) Stats() Stats {
	size := 0
	if c.inner != nil {
		size = c.inner.Len()
	}
	return Stats{
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Evictions: atomic.LoadInt64(&c.evictions),
		Size:      size,
	}
}
