package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisTracker keeps per-device failure timestamps in a Redis sorted set so
// multiple gate instances share one failure budget.
type redisTracker struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// NewRedisTracker connects to Redis and returns a shared failure tracker.
func NewRedisTracker(redisURL string, limit int, window time.Duration) (Tracker, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &redisTracker{
		client: client,
		limit:  int64(limit),
		window: window,
	}, nil
}

func (r *redisTracker) key(deviceID string) string {
	return "failures:" + deviceID
}

func (r *redisTracker) RecordFailure(ctx context.Context, deviceID string) error {
	now := time.Now().UnixNano()

	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, r.key(deviceID), redis.Z{Score: float64(now), Member: now})
	// Keep the key around a little past the window so stale devices expire.
	pipe.Expire(ctx, r.key(deviceID), r.window+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

// Allowed prunes and counts atomically via a Lua script.
func (r *redisTracker) Allowed(ctx context.Context, deviceID string) (bool, error) {
	now := time.Now().UnixNano()
	windowStart := now - r.window.Nanoseconds()

	script := `
		local key = KEYS[1]
		local window_start = tonumber(ARGV[1])

		redis.call('ZREMRANGEBYSCORE', key, 0, window_start)
		return redis.call('ZCARD', key)
	`

	count, err := r.client.Eval(ctx, script, []string{r.key(deviceID)}, windowStart).Int64()
	if err != nil {
		return false, fmt.Errorf("failure count check failed: %w", err)
	}

	return count < r.limit, nil
}

func (r *redisTracker) Close() error {
	return r.client.Close()
}
