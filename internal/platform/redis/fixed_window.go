package redis

import (
	"context"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// FixedWindow is a fixed-window request counter. The first request
// from a key starts a window; requests beyond max inside the window
// are rejected until the key expires.
type FixedWindow struct {
	client *redisv9.Client
	window time.Duration
	max    int
}

func NewFixedWindow(client *redisv9.Client, window time.Duration, max int) *FixedWindow {
	if window <= 0 {
		window = 60 * time.Second
	}
	if max <= 0 {
		max = 30
	}
	return &FixedWindow{
		client: client,
		window: window,
		max:    max,
	}
}

// Allow counts the request against key's current window. The expiry
// travels with the increment in one transaction, so a counter can
// never be left without a TTL; EXPIRE NX keeps later requests from
// pushing the window forward.
func (w *FixedWindow) Allow(ctx context.Context, key string) (bool, error) {
	counterKey := w.counterKey(key)

	pipe := w.client.TxPipeline()
	count := pipe.Incr(ctx, counterKey)
	pipe.ExpireNX(ctx, counterKey, w.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis window increment failed: %w", err)
	}
	return count.Val() <= int64(w.max), nil
}

func (w *FixedWindow) counterKey(key string) string {
	return fmt.Sprintf("chat:ratelimit:%s", key)
}
