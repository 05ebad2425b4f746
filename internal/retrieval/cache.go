package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"deepreport/internal/types"
)

// cacheEntry holds one cached search response.
type cacheEntry struct {
	items     []types.RetrievedItem
	createdAt time.Time
	expiresAt time.Time
}

// SearchCache is an in-memory TTL cache for web search responses. Repeated
// queries across sections of one report, and across reports in one process,
// reuse the same results.
type SearchCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	hits, misses int
}

// NewSearchCache creates a cache with the given size limit and TTL.
func NewSearchCache(maxSize int, ttl time.Duration) *SearchCache {
	if maxSize <= 0 {
		maxSize = 500
	}
	return &SearchCache{
		entries: make(map[string]*cacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a copy of the cached items for key.
func (c *SearchCache) Get(key string) ([]types.RetrievedItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expiresAt) {
		if ok {
			delete(c.entries, key)
		}
		c.misses++
		return nil, false
	}
	c.hits++
	return append([]types.RetrievedItem(nil), entry.items...), true
}

// Set stores items under key, evicting the oldest entry when full.
func (c *SearchCache) Set(key string, items []types.RetrievedItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	now := c.now()
	c.entries[key] = &cacheEntry{
		items:     append([]types.RetrievedItem(nil), items...),
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	}
}

// Clear removes all entries.
func (c *SearchCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

// Size returns the number of entries, expired ones included.
func (c *SearchCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns hit and miss counters.
func (c *SearchCache) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

func (c *SearchCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.createdAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.createdAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// cacheKey hashes a provider, query and result count into a key.
func cacheKey(provider, query string, k int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d", provider, query, k)
	return hex.EncodeToString(h.Sum(nil))[:16]
}
