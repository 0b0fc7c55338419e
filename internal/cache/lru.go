package cache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// entry is one cached value with its bookkeeping. A zero expiresAt means the
// entry never expires on its own.
type entry struct {
	value        []byte
	createdAt    time.Time
	expiresAt    time.Time
	lastAccessed time.Time
	accessCount  int64
	size         int64
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Stats is a point-in-time snapshot of the local tier.
type Stats struct {
	Hits           int64 `json:"hits"`
	Misses         int64 `json:"misses"`
	Evictions      int64 `json:"evictions"`
	Entries        int   `json:"entries"`
	TotalSizeBytes int64 `json:"total_size_bytes"`
	MaxSizeBytes   int64 `json:"max_size_bytes"`
	MaxEntries     int   `json:"max_entries"`
}

// LRU is the in-process cache tier: least-recently-used eviction under both
// a byte budget and an entry cap, with per-entry TTLs. All state is guarded
// by one mutex; the byte counter is maintained under the same mutex.
type LRU struct {
	mu         sync.Mutex
	ll         *simplelru.LRU[string, *entry]
	maxBytes   int64
	maxEntries int
	curBytes   int64
	hits       int64
	misses     int64
	evictions  int64
	// set while removals are deliberate so the evict callback does not
	// count them as pressure evictions
	deleting bool
}

const (
	DefaultMaxBytes   = 50 * 1024 * 1024
	DefaultMaxEntries = 1000
)

func NewLRU(maxBytes int64, maxEntries int) *LRU {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	c := &LRU{maxBytes: maxBytes, maxEntries: maxEntries}
	// simplelru owns the entry cap; the byte budget is enforced in Set
	ll, err := simplelru.NewLRU[string, *entry](maxEntries, c.onEvict)
	if err != nil {
		// only reachable with a non-positive size, which is guarded above
		panic(err)
	}
	c.ll = ll
	return c
}

func (c *LRU) onEvict(_ string, e *entry) {
	c.curBytes -= e.size
	if !c.deleting {
		c.evictions++
	}
}

// Get returns the value for key when present and unexpired. Expired entries
// are dropped on access and count as misses.
func (c *LRU) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.ll.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}
	now := time.Now()
	if e.expired(now) {
		c.deleting = true
		c.ll.Remove(key)
		c.deleting = false
		c.misses++
		return nil, false
	}
	e.accessCount++
	e.lastAccessed = now
	c.hits++
	return e.value, true
}

// Set inserts or replaces key. A ttl of zero means no expiry. Values larger
// than the whole byte budget are not cached.
func (c *LRU) Set(key string, value []byte, ttl time.Duration) {
	size := int64(len(key) + len(value))
	if size > c.maxBytes {
		return
	}
	now := time.Now()
	e := &entry{
		value:        value,
		createdAt:    now,
		lastAccessed: now,
		size:         size,
	}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// replace-in-place must not double count bytes
	if _, ok := c.ll.Peek(key); ok {
		c.deleting = true
		c.ll.Remove(key)
		c.deleting = false
	}
	c.dropExpiredLocked(now)

	c.ll.Add(key, e)
	c.curBytes += size

	for c.curBytes > c.maxBytes {
		if _, _, ok := c.ll.RemoveOldest(); !ok {
			break
		}
	}
}

// Delete removes key if present. Explicit removal is not an eviction.
func (c *LRU) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleting = true
	c.ll.Remove(key)
	c.deleting = false
}

// Purge empties the cache and resets the byte counter, keeping hit/miss
// counters intact.
func (c *LRU) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleting = true
	c.ll.Purge()
	c.deleting = false
	c.curBytes = 0
}

func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *LRU) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:           c.hits,
		Misses:         c.misses,
		Evictions:      c.evictions,
		Entries:        c.ll.Len(),
		TotalSizeBytes: c.curBytes,
		MaxSizeBytes:   c.maxBytes,
		MaxEntries:     c.maxEntries,
	}
}

// dropExpiredLocked removes every expired entry so stale values never crowd
// out live ones. Caller holds the mutex.
func (c *LRU) dropExpiredLocked(now time.Time) {
	var stale []string
	for _, key := range c.ll.Keys() {
		if e, ok := c.ll.Peek(key); ok && e.expired(now) {
			stale = append(stale, key)
		}
	}
	if len(stale) == 0 {
		return
	}
	c.deleting = true
	for _, key := range stale {
		c.ll.Remove(key)
	}
	c.deleting = false
}
