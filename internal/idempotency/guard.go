// Package idempotency guards against the same anchor callback being processed twice.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a claimed key blocks duplicates.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "callbackd:idempotency:"

// Guard claims callback keys so retries of the same callback are detected.
type Guard interface {
	// Claim reports whether key was claimed by this call. A false result
	// means another request already holds it.
	Claim(ctx context.Context, key string) (bool, error)
	// Release gives key back, letting a later retry be processed.
	Release(ctx context.Context, key string) error
}

// RedisGuard is a Guard backed by SET NX with an expiry.
type RedisGuard struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisGuard creates a RedisGuard. A non-positive ttl uses DefaultTTL.
func NewRedisGuard(client redis.Cmdable, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, keyPrefix+key, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

type noop struct{}

func (noop) Claim(context.Context, string) (bool, error) { return true, nil }
func (noop) Release(context.Context, string) error       { return nil }

// Noop returns a Guard that claims every key. It is used when Redis is not
// configured; duplicates are then caught by the database unique index.
func Noop() Guard { return noop{} }
