package fetch

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Entry is one cached payload with the moment it was fetched from the origin.
// Freshness is judged at read time against the caller's TTL; entries are never
// evicted on a timer.
type Entry struct {
	Payload   json.RawMessage `json:"payload"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// Fresh reports whether the entry is still usable under the given TTL.
func (e Entry) Fresh(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 || e.FetchedAt.IsZero() {
		return false
	}
	return now.Sub(e.FetchedAt) < ttl
}

// Cache stores the last known good payload per resource key.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
}

// MemoryCache is a process-local Cache for single-instance deployments and tests.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Entry)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	return entry, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, entry Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry
	return nil
}
