package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blastline/blastline-backend/utils"
	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles outbound sends per channel. limit is the channel's
// messages-per-second quota assigned by the platform.
type RateLimiter interface {
	Allow(ctx context.Context, channelID uint, limit int) (bool, error)
}

// RedisRateLimiter implements a fixed one-second window counter in Redis,
// shared across dispatcher instances.
type RedisRateLimiter struct {
	client *redis.Client
}

// NewRedisRateLimiter creates a redis-backed rate limiter
func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client}
}

// Allow increments the channel's counter for the current second and reports
// whether the send fits the quota.
func (l *RedisRateLimiter) Allow(ctx context.Context, channelID uint, limit int) (bool, error) {
	if limit <= 0 {
		return true, nil
	}

	now := utils.UTCNow()
	key := fmt.Sprintf("%s%d:%d", utils.RateLimiterKeyPrefix, channelID, now.Unix())

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("rate limiter incr failed: %w", err)
	}
	if count == 1 {
		// First hit in this window owns the expiry.
		if err := l.client.Expire(ctx, key, 2*time.Second).Err(); err != nil {
			return false, fmt.Errorf("rate limiter expire failed: %w", err)
		}
	}

	return count <= int64(limit), nil
}

// MemoryRateLimiter is a single-process token bucket used when Redis is not
// configured and in tests.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	buckets map[uint]*tokenBucket
}

type tokenBucket struct {
	tokens   float64
	lastFill time.Time
}

// NewMemoryRateLimiter creates an in-process rate limiter
func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{buckets: make(map[uint]*tokenBucket)}
}

// Allow refills the channel's bucket at limit tokens per second and takes one
func (l *MemoryRateLimiter) Allow(ctx context.Context, channelID uint, limit int) (bool, error) {
	if limit <= 0 {
		return true, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := utils.UTCNow()
	b, ok := l.buckets[channelID]
	if !ok {
		b = &tokenBucket{tokens: float64(limit), lastFill: now}
		l.buckets[channelID] = b
	}

	b.tokens += now.Sub(b.lastFill).Seconds() * float64(limit)
	if max := float64(limit); b.tokens > max {
		b.tokens = max
	}
	b.lastFill = now

	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}
