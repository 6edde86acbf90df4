package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/soma-edu/soma/internal/domain"
)

// opTimeout bounds each store call independently of the caller's
// cancellation, so a hung store never blocks a request indefinitely.
const opTimeout = 5 * time.Second

// KV is the capability interface over the shared key-value store. It is
// satisfied by RedisKV in production and by in-memory fakes in tests.
type KV interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes the value with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Expire resets the TTL of an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Delete removes the key, reporting whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
}

// RedisKV implements KV on a pooled go-redis client.
type RedisKV struct {
	client *redis.Client
}

var _ KV = (*RedisKV)(nil)

// NewRedisKV wraps a shared Redis client.
func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

// Get returns the value and whether the key exists.
func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.WithMessagef(domain.ErrUnavailable, "redis get %s: %v", key, err)
	}
	return val, true, nil
}

// Set writes the value with the given TTL.
func (r *RedisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return errors.WithMessagef(domain.ErrUnavailable, "redis set %s: %v", key, err)
	}
	return nil
}

// Expire resets the TTL of an existing key.
func (r *RedisKV) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
		return errors.WithMessagef(domain.ErrUnavailable, "redis expire %s: %v", key, err)
	}
	return nil
}

// Delete removes the key, reporting whether it existed.
func (r *RedisKV) Delete(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	n, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return false, errors.WithMessagef(domain.ErrUnavailable, "redis del %s: %v", key, err)
	}
	return n > 0, nil
}
