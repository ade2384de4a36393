package services

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

type cacheEntry struct {
	payload  []byte
	expireAt time.Time
}

// QuoteCache is a process-local TTL cache for market quotes. Values are stored
// JSON-serialized so callers never share references with cache internals.
// Expired entries are removed lazily on Get; Cleanup purges them in bulk and
// is safe to call on any schedule or never.
type QuoteCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewQuoteCache creates an empty cache
func NewQuoteCache() *QuoteCache {
	return &QuoteCache{
		entries: make(map[string]cacheEntry),
	}
}

// Set stores value under key with absolute expiry now+ttl, overwriting any
// existing entry.
func (c *QuoteCache) Set(key string, value interface{}, ttl time.Duration) {
	payload, err := json.Marshal(value)
	if err != nil {
		log.Printf("Cache set skipped for %q: %v", key, err)
		return
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{
		payload:  payload,
		expireAt: time.Now().Add(ttl),
	}
	c.mu.Unlock()
}

// Get unmarshals the cached value into dest and reports whether a fresh entry
// existed. An expired entry behaves as absent and is removed.
func (c *QuoteCache) Get(key string, dest interface{}) bool {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return false
	}

	if time.Now().After(entry.expireAt) {
		c.Delete(key)
		return false
	}

	if err := json.Unmarshal(entry.payload, dest); err != nil {
		log.Printf("Cache entry for %q is corrupt, dropping: %v", key, err)
		c.Delete(key)
		return false
	}
	return true
}

// Delete removes an entry unconditionally
func (c *QuoteCache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Cleanup purges all expired entries and returns how many were removed
func (c *QuoteCache) Cleanup() int {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if now.After(entry.expireAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Stats returns counters for the monitoring endpoint
func (c *QuoteCache) Stats() map[string]interface{} {
	now := time.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	active := 0
	for _, entry := range c.entries {
		if !now.After(entry.expireAt) {
			active++
		}
	}

	return map[string]interface{}{
		"total_items":   len(c.entries),
		"active_items":  active,
		"expired_items": len(c.entries) - active,
	}
}
