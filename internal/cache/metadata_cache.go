package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"image-annotator/internal/model"
)

type MetadataCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewMetadataCache(client *redisv9.Client, ttl time.Duration) *MetadataCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &MetadataCache{client: client, ttl: ttl}
}

func (c *MetadataCache) Get(ctx context.Context, key string) (model.Metadata, bool, error) {
	raw, err := c.client.Get(ctx, c.cacheKey(key)).Bytes()
	if err == redisv9.Nil {
		return model.Metadata{}, false, nil
	}
	if err != nil {
		return model.Metadata{}, false, fmt.Errorf("redis get metadata failed: %w", err)
	}

	var record model.Metadata
	if err := json.Unmarshal(raw, &record); err != nil {
		return model.Metadata{}, false, fmt.Errorf("unmarshal cached metadata failed: %w", err)
	}
	return record, true, nil
}

func (c *MetadataCache) Set(ctx context.Context, key string, record model.Metadata) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal metadata cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.cacheKey(key), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set metadata failed: %w", err)
	}
	return nil
}

// Add stores record only when key has no cached entry. It reports whether
// the entry was written.
func (c *MetadataCache) Add(ctx context.Context, key string, record model.Metadata) (bool, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("marshal metadata cache failed: %w", err)
	}
	added, err := c.client.SetNX(ctx, c.cacheKey(key), payload, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx metadata failed: %w", err)
	}
	return added, nil
}

func (c *MetadataCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.cacheKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete metadata failed: %w", err)
	}
	return nil
}

func (c *MetadataCache) cacheKey(key string) string {
	return "caption:meta:" + key
}
