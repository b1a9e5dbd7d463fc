package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/subwise/resilience/internal/fetch"
)

const cacheKeyPrefix = "fetch:cache:"

var _ fetch.Cache = (*Cache)(nil)

// Cache stores last-known-good fetch payloads in Redis so all instances share
// one view of upstream data. Entries carry their fetch time and are judged
// fresh or stale by the reader; Redis itself never expires them.
type Cache struct {
	client *goredis.Client
}

func NewCache(client *goredis.Client) (*Cache, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &Cache{client: client}, nil
}

func (c *Cache) Get(ctx context.Context, key string) (fetch.Entry, bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	raw, err := c.client.Get(ctx, cacheKeyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return fetch.Entry{}, false, nil
	}
	if err != nil {
		return fetch.Entry{}, false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var entry fetch.Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return fetch.Entry{}, false, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return entry, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, entry fetch.Entry) error {
	if ctx == nil {
		ctx = context.Background()
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	if err := c.client.Set(ctx, cacheKeyPrefix+key, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}
