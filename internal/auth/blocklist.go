package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Blocklist remembers revoked token ids until the tokens would have expired
// anyway.
type Blocklist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	Revoked(ctx context.Context, jti string) (bool, error)
}

// MemoryBlocklist keeps revocations for at most one access token lifetime.
// Revocations are lost on restart and not shared between processes.
type MemoryBlocklist struct {
	entries *expirable.LRU[string, struct{}]
}

func NewMemoryBlocklist(size int, ttl time.Duration) *MemoryBlocklist {
	return &MemoryBlocklist{entries: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

func (b *MemoryBlocklist) Revoke(_ context.Context, jti string, _ time.Duration) error {
	b.entries.Add(jti, struct{}{})
	return nil
}

func (b *MemoryBlocklist) Revoked(_ context.Context, jti string) (bool, error) {
	return b.entries.Contains(jti), nil
}

const blocklistPrefix = "dm:auth:revoked:"

type RedisBlocklist struct {
	client redis.UniversalClient
}

func NewRedisBlocklist(client redis.UniversalClient) *RedisBlocklist {
	return &RedisBlocklist{client: client}
}

func (b *RedisBlocklist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := b.client.Set(ctx, blocklistPrefix+jti, 1, ttl).Err(); err != nil {
		return fmt.Errorf("revoke token %s: %w", jti, err)
	}
	return nil
}

func (b *RedisBlocklist) Revoked(ctx context.Context, jti string) (bool, error) {
	n, err := b.client.Exists(ctx, blocklistPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("check token %s: %w", jti, err)
	}
	return n > 0, nil
}
