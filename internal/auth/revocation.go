package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRevocations keeps signed-out token ids until the token would have expired anyway.
type RedisRevocations struct {
	client redis.Cmdable
	prefix string
}

// NewRedisRevocations creates a revocation list under prefix.
func NewRedisRevocations(client redis.Cmdable, prefix string) *RedisRevocations {
	return &RedisRevocations{client: client, prefix: prefix + "auth:revoked:"}
}

// Revoke marks tokenID revoked for ttl.
func (r *RedisRevocations) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, r.prefix+tokenID, 1, ttl).Err()
}

// IsRevoked reports whether tokenID was signed out.
func (r *RedisRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
