package workflow

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dreamware/relay/internal/metrics"
)

// entry carries the cache metadata alongside the workflow handle.
type entry struct {
	wf       *Workflow
	lastUsed time.Time
	turns    int
}

// Cache is the per-worker bounded map from session id to instantiated
// workflow.
//
// Eviction combines two policies, in order:
//  1. Idle: entries unused for longer than the idle window are dropped
//     first. Because LRU order is last-used order, idle entries sit at the
//     cold end and are swept from there in O(evicted).
//  2. Capacity: beyond the configured bound, the least recently used entry
//     is dropped.
//
// Eviction never fails a request; the next access recreates the workflow
// via its factory. The cache is purely local to one worker process and is
// never consulted for routing decisions: a stale entry left behind after a
// session's affinity moved elsewhere is harmless and ages out.
//
// Thread safety: all methods are safe for concurrent use from many
// in-flight requests.
type Cache struct {
	mu   sync.Mutex
	lru  *lru.Cache[string, *entry]
	idle time.Duration
	now  func() time.Time // injectable clock for tests
}

// NewCache creates a cache bounded at capacity entries with the given idle
// window. capacity must be positive.
func NewCache(capacity int, idle time.Duration) (*Cache, error) {
	inner, err := lru.NewWithEvict[string, *entry](capacity, func(string, *entry) {
		metrics.CacheEvictions.Inc()
	})
	if err != nil {
		return nil, err
	}
	return &Cache{lru: inner, idle: idle, now: time.Now}, nil
}

// GetOrCreate returns the session's workflow, building it via factory on a
// miss. A hit refreshes the entry's last-used time and turn count.
func (c *Cache) GetOrCreate(sessionID string, factory func() *Workflow) *Workflow {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.evictIdleLocked(now)

	if e, ok := c.lru.Get(sessionID); ok {
		e.lastUsed = now
		e.turns++
		metrics.CacheHits.Inc()
		return e.wf
	}

	metrics.CacheMisses.Inc()
	wf := factory()
	c.lru.Add(sessionID, &entry{wf: wf, lastUsed: now, turns: 1})
	return wf
}

// Remove drops a session's entry, if present.
func (c *Cache) Remove(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(sessionID)
}

// Len returns the number of cached workflows.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Contains reports whether a session has a live entry, without refreshing
// its recency.
func (c *Cache) Contains(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Contains(sessionID)
}

// Purge drops every entry. Called at worker shutdown.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// evictIdleLocked pops entries from the cold end while they exceed the idle
// window. Caller holds c.mu.
func (c *Cache) evictIdleLocked(now time.Time) {
	if c.idle <= 0 {
		return
	}
	for {
		_, e, ok := c.lru.GetOldest()
		if !ok || now.Sub(e.lastUsed) <= c.idle {
			return
		}
		c.lru.RemoveOldest()
	}
}
