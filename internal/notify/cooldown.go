package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCooldown is returned when a trip was notified too recently.
var ErrCooldown = errors.New("notification cooldown active")

const cooldownPrefix = "splitopus:cooldown:"

// Cooldown grants at most one notification per key within a ttl window.
type Cooldown interface {
	// Acquire reports whether the caller may notify for key, and if so
	// starts a new window of length ttl.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release ends the window for key early.
	Release(ctx context.Context, key string) error
}

// RedisCooldown keeps cooldown windows in Redis so they survive restarts
// and are shared between replicas.
type RedisCooldown struct {
	client redis.Cmdable
}

// NewRedisCooldown creates a cooldown on top of a Redis client.
func NewRedisCooldown(client redis.Cmdable) *RedisCooldown {
	return &RedisCooldown{client: client}
}

// Acquire sets the key with NX so only the first caller in a window wins.
func (c *RedisCooldown) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, cooldownPrefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire cooldown %s: %w", key, err)
	}
	return ok, nil
}

// Release deletes the key.
func (c *RedisCooldown) Release(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, cooldownPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release cooldown %s: %w", key, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (c *RedisCooldown) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// MemoryCooldown is an in-process Cooldown for single instance deployments
// without Redis.
type MemoryCooldown struct {
	mu      sync.Mutex
	until   map[string]time.Time
	nowFunc func() time.Time
}

// NewMemoryCooldown creates an empty in-process cooldown.
func NewMemoryCooldown() *MemoryCooldown {
	return &MemoryCooldown{until: make(map[string]time.Time), nowFunc: time.Now}
}

// Acquire implements Cooldown.
func (c *MemoryCooldown) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	if until, ok := c.until[key]; ok && now.Before(until) {
		return false, nil
	}
	c.until[key] = now.Add(ttl)
	return true, nil
}

// Release implements Cooldown.
func (c *MemoryCooldown) Release(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.until, key)
	return nil
}
