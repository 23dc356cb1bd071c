package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Mark is the outcome of claiming an idempotency key.
type Mark int

const (
	// MarkAcquired means the caller owns the key and must Complete or Fail it.
	MarkAcquired Mark = iota
	// MarkCached means a previous payment under the key succeeded.
	MarkCached
	// MarkInFlight means another payment under the key has not finished.
	MarkInFlight
)

// Guard makes payment at-most-once per idempotency key. Failed payments
// are not remembered so a deliberate retry can pay.
type Guard interface {
	CheckAndMark(ctx context.Context, key string) (Mark, string, error)
	Complete(ctx context.Context, key, body string) error
	Fail(ctx context.Context, key string) error
}

const DefaultGuardTTL = 10 * time.Minute

type memoryEntry struct {
	done    bool
	body    string
	expires time.Time
}

type MemoryGuard struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	if ttl <= 0 {
		ttl = DefaultGuardTTL
	}
	return &MemoryGuard{entries: make(map[string]memoryEntry), ttl: ttl, now: time.Now}
}

func (g *MemoryGuard) CheckAndMark(_ context.Context, key string) (Mark, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if e, ok := g.entries[key]; ok && now.Before(e.expires) {
		if e.done {
			return MarkCached, e.body, nil
		}
		return MarkInFlight, "", nil
	}
	g.entries[key] = memoryEntry{expires: now.Add(g.ttl)}
	g.sweep(now)
	return MarkAcquired, "", nil
}

func (g *MemoryGuard) Complete(_ context.Context, key, body string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries[key] = memoryEntry{done: true, body: body, expires: g.now().Add(g.ttl)}
	return nil
}

func (g *MemoryGuard) Fail(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, key)
	return nil
}

func (g *MemoryGuard) sweep(now time.Time) {
	for k, e := range g.entries {
		if !now.Before(e.expires) {
			delete(g.entries, k)
		}
	}
}

const (
	redisKeyPrefix = "x402relay:idempotency:"
	redisInFlight  = "inflight"
	redisDone      = "done:"
)

// RedisGuard shares idempotency state between payer replicas.
type RedisGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisGuard(rdb *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = DefaultGuardTTL
	}
	return &RedisGuard{rdb: rdb, ttl: ttl}
}

func (g *RedisGuard) CheckAndMark(ctx context.Context, key string) (Mark, string, error) {
	ok, err := g.rdb.SetNX(ctx, redisKeyPrefix+key, redisInFlight, g.ttl).Result()
	if err != nil {
		return 0, "", fmt.Errorf("payment: marking idempotency key: %w", err)
	}
	if ok {
		return MarkAcquired, "", nil
	}

	val, err := g.rdb.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between the two calls; try once more.
		return g.CheckAndMark(ctx, key)
	}
	if err != nil {
		return 0, "", fmt.Errorf("payment: reading idempotency key: %w", err)
	}
	if body, found := strings.CutPrefix(val, redisDone); found {
		return MarkCached, body, nil
	}
	return MarkInFlight, "", nil
}

func (g *RedisGuard) Complete(ctx context.Context, key, body string) error {
	if err := g.rdb.Set(ctx, redisKeyPrefix+key, redisDone+body, g.ttl).Err(); err != nil {
		return fmt.Errorf("payment: caching payment result: %w", err)
	}
	return nil
}

func (g *RedisGuard) Fail(ctx context.Context, key string) error {
	if err := g.rdb.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("payment: clearing idempotency key: %w", err)
	}
	return nil
}
