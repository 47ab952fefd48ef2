package services

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RunGuard is the scheduler's idempotency lock: Acquire returns true for
// exactly one caller per slot key, across every process sharing the backend.
type RunGuard interface {
	Acquire(ctx context.Context, slotKey string) (bool, error)
}

// RedisRunGuard marks a slot with SETNX; the TTL just keeps old slot keys
// from piling up.
type RedisRunGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisRunGuard(rdb *redis.Client, ttl time.Duration) *RedisRunGuard {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &RedisRunGuard{rdb: rdb, ttl: ttl}
}

func (g *RedisRunGuard) Acquire(ctx context.Context, slotKey string) (bool, error) {
	return g.rdb.SetNX(ctx, "ckt:"+slotKey, "1", g.ttl).Result()
}

// MemoryRunGuard is the single-process fallback (dev, tests).
type MemoryRunGuard struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryRunGuard() *MemoryRunGuard {
	return &MemoryRunGuard{seen: make(map[string]struct{})}
}

func (g *MemoryRunGuard) Acquire(_ context.Context, slotKey string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen[slotKey]; ok {
		return false, nil
	}
	g.seen[slotKey] = struct{}{}
	return true, nil
}
