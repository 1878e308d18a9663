package session

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "rfm:fit:"

// RedisCache shares fit results across processes. Every failure degrades to
// a cache miss; Redis being down never blocks an analysis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*FitState, bool) {
	data, err := c.client.Get(ctx, cacheKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("Snapshot cache read failed for %s: %v", key, err)
		}
		return nil, false
	}

	var state FitState
	if err := json.Unmarshal(data, &state); err != nil {
		log.Printf("Snapshot cache entry %s is corrupt, ignoring: %v", key, err)
		return nil, false
	}
	return &state, true
}

func (c *RedisCache) Set(ctx context.Context, key string, state *FitState) {
	data, err := json.Marshal(state)
	if err != nil {
		log.Printf("Snapshot cache marshal failed for %s: %v", key, err)
		return
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+key, data, c.ttl).Err(); err != nil {
		log.Printf("Snapshot cache write failed for %s: %v", key, err)
	}
}
