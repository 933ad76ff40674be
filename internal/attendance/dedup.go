package attendance

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDedup claims attendance slots so each is credited once across instances.
type RedisDedup struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisDedup creates a slot claimer. Keys expire after ttl.
func NewRedisDedup(client redis.Cmdable, prefix string, ttl time.Duration) *RedisDedup {
	return &RedisDedup{client: client, prefix: prefix + "attendance:slot:", ttl: ttl}
}

// First reports whether key is seen for the first time, claiming it.
func (d *RedisDedup) First(ctx context.Context, key string) (bool, error) {
	return d.client.SetNX(ctx, d.prefix+key, 1, d.ttl).Result()
}

// Forget releases key so the slot may be retried.
func (d *RedisDedup) Forget(ctx context.Context, key string) error {
	return d.client.Del(ctx, d.prefix+key).Err()
}
