// Package cache provides the concept-affinity cache for MuninDB.
//
// Affinity caching remembers which clusters answered for a concept label
// recently, letting the process path skip the full region similarity search
// for repeated inputs.
//
// Features:
// - LRU eviction for bounded memory
// - TTL expiration so drifting centroids don't serve stale routings forever
// - Invalidation by cluster id when a cluster is evicted from memory
// - Cache hit/miss statistics
//
// Usage:
//
//	ac := cache.NewAffinityCache(1024, 5*time.Minute)
//
//	// Check cache before searching
//	if hits, ok := ac.Get("apple"); ok {
//		return hits // Cache hit
//	}
//
//	// Search and cache
//	hits := searchClusters(vec)
//	ac.Put("apple", hits)
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ClusterAffinity is one ranked routing entry: a cluster and the similarity
// score it earned when the concept was last resolved.
type ClusterAffinity struct {
	ClusterID string
	Score     float64
}

// AffinityCache is a thread-safe LRU cache from concept label to ranked
// cluster routings.
//
// The cache uses:
// - Hash map for O(1) lookups (keys are xxhash of the label)
// - Doubly-linked list for LRU ordering
// - TTL for automatic expiration
//
// Stale routings are harmless but wasteful, so the cache favors dropping
// entries over defending them: TTL expiry, LRU pressure, and explicit
// cluster invalidation all simply remove the entry and force a re-search.
type AffinityCache struct {
	mu sync.RWMutex

	maxSize int
	ttl     time.Duration

	// LRU list and map
	list  *list.List
	items map[uint64]*list.Element

	// Statistics
	hits   uint64
	misses uint64
}

// affinityEntry holds one cached routing with metadata.
type affinityEntry struct {
	key       uint64
	concept   string
	clusters  []ClusterAffinity
	expiresAt time.Time
}

// NewAffinityCache creates a new affinity cache.
//
// Parameters:
//   - maxSize: Maximum number of cached concepts (LRU eviction when exceeded)
//   - ttl: Time-to-live for cached routings (0 = no expiration)
func NewAffinityCache(maxSize int, ttl time.Duration) *AffinityCache {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &AffinityCache{
		maxSize: maxSize,
		ttl:     ttl,
		list:    list.New(),
		items:   make(map[uint64]*list.Element, maxSize),
	}
}

func labelKey(concept string) uint64 {
	return xxhash.Sum64String(concept)
}

// Get retrieves the cached routing for a concept if present and not expired.
//
// Returns (clusters, true) on cache hit, (nil, false) on miss. Moves the
// entry to the front of the LRU list on hit. The returned slice is a copy;
// callers may sort or truncate it freely.
func (c *AffinityCache) Get(concept string) ([]ClusterAffinity, bool) {
	key := labelKey(concept)

	c.mu.RLock()
	elem, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	entry := elem.Value.(*affinityEntry)

	// Check TTL
	if c.ttl > 0 && time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		c.removeElement(elem)
		c.mu.Unlock()
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	c.mu.Lock()
	c.list.MoveToFront(elem)
	out := make([]ClusterAffinity, len(entry.clusters))
	copy(out, entry.clusters)
	c.mu.Unlock()

	atomic.AddUint64(&c.hits, 1)
	return out, true
}

// Put stores the routing for a concept.
//
// If the cache is full, the least recently used concept is evicted. If the
// concept is already cached, its routing is replaced and the TTL restarts.
func (c *AffinityCache) Put(concept string, clusters []ClusterAffinity) {
	key := labelKey(concept)
	stored := make([]ClusterAffinity, len(clusters))
	copy(stored, clusters)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*affinityEntry)
		entry.clusters = stored
		if c.ttl > 0 {
			entry.expiresAt = time.Now().Add(c.ttl)
		}
		c.list.MoveToFront(elem)
		return
	}

	for c.list.Len() >= c.maxSize {
		c.evictOldest()
	}

	entry := &affinityEntry{
		key:      key,
		concept:  concept,
		clusters: stored,
	}
	if c.ttl > 0 {
		entry.expiresAt = time.Now().Add(c.ttl)
	}

	elem := c.list.PushFront(entry)
	c.items[key] = elem
}

// Remove drops a concept's routing from the cache.
func (c *AffinityCache) Remove(concept string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[labelKey(concept)]; ok {
		c.removeElement(elem)
	}
}

// InvalidateCluster drops every routing that references the cluster. Called
// when a cluster is evicted from memory so the cache never routes to a
// cluster that would need silent re-hydration mid-read.
func (c *AffinityCache) InvalidateCluster(clusterID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var doomed []*list.Element
	for elem := c.list.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(*affinityEntry)
		for _, ca := range entry.clusters {
			if ca.ClusterID == clusterID {
				doomed = append(doomed, elem)
				break
			}
		}
	}
	for _, elem := range doomed {
		c.removeElement(elem)
	}
	return len(doomed)
}

// Clear removes all entries from the cache.
func (c *AffinityCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.list.Init()
	c.items = make(map[uint64]*list.Element, c.maxSize)
}

// Len returns the number of cached concepts.
func (c *AffinityCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.list.Len()
}

// Stats returns cache performance statistics.
func (c *AffinityCache) Stats() Stats {
	hits := atomic.LoadUint64(&c.hits)
	misses := atomic.LoadUint64(&c.misses)

	c.mu.RLock()
	size := c.list.Len()
	c.mu.RUnlock()

	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	return Stats{
		Size:    size,
		MaxSize: c.maxSize,
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate,
	}
}

// Stats holds cache performance statistics.
type Stats struct {
	Size    int     // Current number of entries
	MaxSize int     // Maximum capacity
	Hits    uint64  // Number of cache hits
	Misses  uint64  // Number of cache misses
	HitRate float64 // Hit rate percentage (0-100)
}

// evictOldest removes the least recently used entry.
// Caller must hold the lock.
func (c *AffinityCache) evictOldest() {
	elem := c.list.Back()
	if elem != nil {
		c.removeElement(elem)
	}
}

// removeElement removes an element from the cache.
// Caller must hold the lock.
func (c *AffinityCache) removeElement(elem *list.Element) {
	c.list.Remove(elem)
	entry := elem.Value.(*affinityEntry)
	delete(c.items, entry.key)
}
