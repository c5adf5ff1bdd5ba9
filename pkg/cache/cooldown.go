package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cooldown is a redis-backed once-per-window guard keyed by an arbitrary
// string, used for scan anti-replay.
type Cooldown struct {
	client *redis.Client
	window time.Duration
}

func NewCooldown(client *redis.Client, window time.Duration) *Cooldown {
	return &Cooldown{client: client, window: window}
}

func cooldownKey(key string) string {
	return fmt.Sprintf("scan_cooldown:%s", key)
}

// Acquire claims the window for key. It returns false when the key was
// already claimed inside the window, and an error only when redis itself
// fails (the caller decides the fallback).
func (c *Cooldown) Acquire(ctx context.Context, key string) (bool, error) {
	if c == nil || c.client == nil {
		return false, redis.ErrClosed
	}
	return c.client.SetNX(ctx, cooldownKey(key), "1", c.window).Result()
}
