package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"docchat/internal/domain"
)

// RedisLimiter is a fixed-window limiter backed by Redis, so the limit holds
// across replicas. The window key carries a TTL; Redis does the cleanup.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRedisLimiter creates a limiter from a Redis URL.
func NewRedisLimiter(redisURL string, perMinute int) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return &RedisLimiter{
		client: redis.NewClient(opts),
		limit:  perMinute,
		window: time.Minute,
	}, nil
}

// Allow increments the caller's window counter and reports whether it is
// still within the limit.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	windowKey := fmt.Sprintf("ratelimit:%s:%d", key, time.Now().Unix()/int64(l.window.Seconds()))

	pipe := l.client.TxPipeline()
	count := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to update rate limit counter: %w", err)
	}

	return count.Val() <= int64(l.limit), nil
}

// Ping verifies the Redis connection.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close releases the underlying connection.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

var _ domain.RateLimiter = (*RedisLimiter)(nil)
