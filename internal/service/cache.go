package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Cache.Get when the key is absent
var ErrCacheMiss = errors.New("cache miss")

// Cache is the small key/value surface the service needs from redis. Entries
// carry the plan version they were built from and never move backwards.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	// SetIfNewer stores value unless the key already holds the same or a later
	// version, and reports whether it wrote.
	SetIfNewer(ctx context.Context, key string, value string, version int, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
}

// Entries are hashes of {version, payload}; the compare and the write happen
// in one script so a slow reader cannot overwrite a newer plan.
var setIfNewerScript = redis.NewScript(`
local current = redis.call("HGET", KEYS[1], "version")
if current and tonumber(current) >= tonumber(ARGV[1]) then
	return 0
end
redis.call("HSET", KEYS[1], "version", ARGV[1], "payload", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return 1
`)

type redisCache struct {
	client redis.UniversalClient
}

// NewRedisCache adapts a go-redis client to Cache
func NewRedisCache(client redis.UniversalClient) Cache {
	return &redisCache{client: client}
}

func (c *redisCache) Get(ctx context.Context, key string) (string, error) {
	value, err := c.client.HGet(ctx, key, "payload").Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return value, err
}

func (c *redisCache) SetIfNewer(ctx context.Context, key string, value string, version int, ttl time.Duration) (bool, error) {
	written, err := setIfNewerScript.Run(ctx, c.client, []string{key}, version, value, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return written == 1, nil
}

func (c *redisCache) Del(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func scheduleCacheKey(loanID string) string {
	return "loan:" + loanID + ":schedule"
}
