package redelivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter tracks how many times a message has failed.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// MemoryCounter is a process-local Counter. Counts are lost on restart and
// are not shared between worker replicas. Like RedisCounter, a key expires
// ttl after its last increment; ttl <= 0 keeps keys until Reset.
type MemoryCounter struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	counts    map[string]memoryCount
	lastSweep time.Time
}

type memoryCount struct {
	n         int64
	expiresAt time.Time
}

func NewMemoryCounter(ttl time.Duration) *MemoryCounter {
	return &MemoryCounter{ttl: ttl, now: time.Now, counts: make(map[string]memoryCount)}
}

func (c *MemoryCounter) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweep(now)

	cur, ok := c.counts[key]
	if ok && c.expired(cur, now) {
		cur = memoryCount{}
	}
	cur.n++
	if c.ttl > 0 {
		cur.expiresAt = now.Add(c.ttl)
	}
	c.counts[key] = cur
	return cur.n, nil
}

func (c *MemoryCounter) Reset(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, key)
	return nil
}

// Len reports how many keys are held, expired ones included until the next sweep.
func (c *MemoryCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.counts)
}

func (c *MemoryCounter) expired(mc memoryCount, now time.Time) bool {
	return c.ttl > 0 && !now.Before(mc.expiresAt)
}

// sweep drops expired keys at most once per ttl.
func (c *MemoryCounter) sweep(now time.Time) {
	if c.ttl <= 0 || now.Sub(c.lastSweep) < c.ttl {
		return
	}
	c.lastSweep = now
	for k, mc := range c.counts {
		if c.expired(mc, now) {
			delete(c.counts, k)
		}
	}
}

const redisKeyPrefix = "task-insights:redelivery:"

// RedisCounter keeps failure counts in Redis so replicas agree on them.
// Every key expires ttl after its last increment.
type RedisCounter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCounter connects to the Redis server at addr ("host:port").
func NewRedisCounter(addr string, ttl time.Duration) *RedisCounter {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &RedisCounter{rdb: rdb, ttl: ttl}
}

// Ping verifies the server is reachable.
func (c *RedisCounter) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (c *RedisCounter) Incr(ctx context.Context, key string) (int64, error) {
	k := redisKeyPrefix + key

	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	if c.ttl > 0 {
		pipe.Expire(ctx, k, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incr %s: %w", k, err)
	}
	return incr.Val(), nil
}

func (c *RedisCounter) Reset(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, redisKeyPrefix+key).Err()
}

func (c *RedisCounter) Close() error {
	return c.rdb.Close()
}
