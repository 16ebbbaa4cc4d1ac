package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/polymathbot/polymath/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// Wait polls Allow at this interval until a slot opens.
const waitPoll = 50 * time.Millisecond

// RateLimiter implements domain.RateLimiter with a sliding window held in a
// Redis sorted set. The window check and the insert run atomically in a Lua
// script, so multiple processes can share one limit.
type RateLimiter struct {
	rdb    *redis.Client
	window *redis.Script
}

var _ domain.RateLimiter = (*RateLimiter)(nil)

// NewRateLimiter builds a limiter on the shared client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		rdb:    c.Underlying(),
		window: redis.NewScript(slidingWindowLua),
	}
}

// Allow records a request under key if fewer than limit requests landed in
// the trailing window, and reports whether it was admitted.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	res, err := rl.window.Run(ctx, rl.rdb,
		[]string{"ratelimit:" + key},
		time.Now().UnixMicro(),
		window.Microseconds(),
		limit,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(res) < 2 {
		return false, fmt.Errorf("redis: rate limit %s: script returned %d values", key, len(res))
	}
	return res[0] == 1, nil
}

// Wait blocks until key admits a request at 1 request per second, or the
// context ends. Callers needing other limits should loop on Allow.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	t := time.NewTicker(waitPoll)
	defer t.Stop()

	for {
		allowed, err := rl.Allow(ctx, key, 1, time.Second)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-t.C:
		}
	}
}
