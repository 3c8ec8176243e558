package termctx

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pairadmin/terminal-gateway/internal/config"
)

// Cache memoizes formatted context strings between buffer mutations.
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(key string) (string, bool)
	Put(key, content string)
	Invalidate(key string)
	InvalidateAll()
	Stats() CacheStats
}

// CacheStats reports cache effectiveness for observability.
type CacheStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

// HitRate returns hits/(hits+misses), or 0 before any access.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// cacheEntry is one stored context string with its write timestamp.
type cacheEntry struct {
	key       string
	content   string
	createdAt time.Time
}

// TTLCache is an LRU cache whose entries expire a fixed duration after they
// are written. An expired entry found by Get is evicted and counted as a
// miss, so stale context is never served.
type TTLCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	items    map[string]*list.Element
	order    *list.List // front = most recently used

	hits   atomic.Int64
	misses atomic.Int64

	// now is swappable for expiry tests.
	now func() time.Time

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// NewTTLCache creates a cache with the given entry lifetime and capacity.
// Non-positive arguments fall back to the defaults.
func NewTTLCache(ttl time.Duration, capacity int) *TTLCache {
	if ttl <= 0 {
		ttl = config.DefaultCacheTTL
	}
	if capacity <= 0 {
		capacity = config.DefaultCacheMaxEntries
	}
	return &TTLCache{
		ttl:       ttl,
		capacity:  capacity,
		items:     make(map[string]*list.Element),
		order:     list.New(),
		now:       time.Now,
		stopSweep: make(chan struct{}),
	}
}

// Get returns the stored content when present and fresh.
func (c *TTLCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return "", false
	}

	entry := el.Value.(*cacheEntry)
	if c.now().Sub(entry.createdAt) >= c.ttl {
		c.removeLocked(el)
		c.misses.Add(1)
		return "", false
	}

	c.order.MoveToFront(el)
	c.hits.Add(1)
	return entry.content, true
}

// Put stores content under key, resetting its TTL. The least recently used
// entry is evicted when the cache is at capacity.
func (c *TTLCache) Put(key, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.content = content
		entry.createdAt = c.now()
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeLocked(oldest)
		}
	}

	el := c.order.PushFront(&cacheEntry{key: key, content: content, createdAt: c.now()})
	c.items[key] = el
}

// Invalidate removes one entry eagerly.
func (c *TTLCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
}

// InvalidateAll removes every entry. Hit/miss counters are preserved.
func (c *TTLCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// Stats returns a snapshot of cache effectiveness.
func (c *TTLCache) Stats() CacheStats {
	c.mu.Lock()
	entries := c.order.Len()
	c.mu.Unlock()
	return CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: entries,
	}
}

// Sweep removes expired entries and returns how many were dropped.
// Get already refuses expired entries; sweeping just frees memory early.
func (c *TTLCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	now := c.now()
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if now.Sub(el.Value.(*cacheEntry).createdAt) >= c.ttl {
			c.removeLocked(el)
			removed++
		}
		el = prev
	}
	return removed
}

// StartSweeper runs Sweep on the given interval until StopSweeper is called.
// Safe to call once; later calls are ignored.
func (c *TTLCache) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = config.DefaultCacheSweepInterval
	}
	c.sweepOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					c.Sweep()
				case <-c.stopSweep:
					return
				}
			}
		}()
	})
}

// StopSweeper stops the background sweeper if it is running.
func (c *TTLCache) StopSweeper() {
	select {
	case <-c.stopSweep:
	default:
		close(c.stopSweep)
	}
}

// removeLocked drops an element from both index and order list.
// Caller must hold c.mu.
func (c *TTLCache) removeLocked(el *list.Element) {
	entry := el.Value.(*cacheEntry)
	delete(c.items, entry.key)
	c.order.Remove(el)
}

// NoopCache is the disabled-cache implementation: every Get misses and Put
// stores nothing, so callers need no conditional logic around caching.
type NoopCache struct{}

func (NoopCache) Get(string) (string, bool) { return "", false }
func (NoopCache) Put(string, string)        {}
func (NoopCache) Invalidate(string)         {}
func (NoopCache) InvalidateAll()            {}
func (NoopCache) Stats() CacheStats         { return CacheStats{} }

var (
	_ Cache = (*TTLCache)(nil)
	_ Cache = NoopCache{}
)
