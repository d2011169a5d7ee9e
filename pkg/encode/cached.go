// CachedEncoder wraps any Encoder with an LRU cache so repeated tokens skip
// re-encoding. Encoding is deterministic, which makes the cache trivially
// correct: same token, same vector, forever.
package encode

import (
	"container/list"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// CachedEncoder wraps an Encoder with LRU caching.
//
// The cache is keyed by xxhash of the token. Cached vectors are returned
// directly (not copied); callers must honor the immutability contract on
// feature vectors.
//
// Thread-safe: all methods can be called from multiple goroutines.
type CachedEncoder struct {
	base Encoder

	mu      sync.RWMutex
	cache   map[string]*list.Element
	lru     *list.List
	maxSize int

	// Statistics
	hits   uint64
	misses uint64
}

type cacheEntry struct {
	key    string
	vector []float64
}

// NewCachedEncoder wraps an existing encoder with LRU caching.
// maxSize <= 0 selects the default of 4096 entries (~4MB at 128 dims).
func NewCachedEncoder(base Encoder, maxSize int) *CachedEncoder {
	if maxSize <= 0 {
		maxSize = 4096
	}

	return &CachedEncoder{
		base:    base,
		cache:   make(map[string]*list.Element, maxSize),
		lru:     list.New(),
		maxSize: maxSize,
	}
}

// hashToken creates a cache key using xxhash, fast and collision-resistant
// enough for cache keying.
func hashToken(token string) string {
	return strconv.FormatUint(xxhash.Sum64String(token), 36)
}

// Encode returns the cached vector for token, encoding on first sight.
func (c *CachedEncoder) Encode(token string) []float64 {
	key := hashToken(token)

	c.mu.RLock()
	if elem, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		atomic.AddUint64(&c.hits, 1)

		c.mu.Lock()
		c.lru.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		c.mu.Unlock()

		return entry.vector
	}
	c.mu.RUnlock()

	atomic.AddUint64(&c.misses, 1)

	v := c.base.Encode(token)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have encoded it meanwhile.
	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).vector
	}

	for c.lru.Len() >= c.maxSize {
		c.evictOldest()
	}

	entry := &cacheEntry{key: key, vector: v}
	elem := c.lru.PushFront(entry)
	c.cache[key] = elem

	return v
}

// Dim returns the wrapped encoder's vector dimension.
func (c *CachedEncoder) Dim() int {
	return c.base.Dim()
}

// Stats returns cache performance counters.
func (c *CachedEncoder) Stats() CacheStats {
	hits := atomic.LoadUint64(&c.hits)
	misses := atomic.LoadUint64(&c.misses)

	c.mu.RLock()
	size := c.lru.Len()
	c.mu.RUnlock()

	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	return CacheStats{
		Size:    size,
		MaxSize: c.maxSize,
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate,
	}
}

// CacheStats holds encoder cache counters.
type CacheStats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"` // percentage, 0-100
}

// Clear removes all cached vectors.
func (c *CachedEncoder) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*list.Element, c.maxSize)
	c.lru.Init()
}

// evictOldest removes the least recently used entry.
// Caller must hold the write lock.
func (c *CachedEncoder) evictOldest() {
	elem := c.lru.Back()
	if elem != nil {
		entry := elem.Value.(*cacheEntry)
		delete(c.cache, entry.key)
		c.lru.Remove(elem)
	}
}
