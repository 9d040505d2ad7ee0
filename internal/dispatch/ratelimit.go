package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter enforces per-tenant dispatch rates using an atomic Redis Lua
// script. GET → check → INCR as separate commands would race under
// concurrent dispatch cycles; the script checks and increments in one step.
type RateLimiter struct {
	redis  *redis.Client
	script *redis.Script
	now    func() time.Time
}

// Lua script for atomic check-and-increment against a per-minute bucket.
const rateLimitLuaScript = `
local key = KEYS[1]
local increment = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local current = tonumber(redis.call("GET", key) or "0")

if current + increment > limit then
    return {0, current}  -- denied
end

local newVal = redis.call("INCRBY", key, increment)
if newVal == increment then
    redis.call("EXPIRE", key, ttl)
end

return {1, newVal}  -- allowed
`

// NewRateLimiter creates a rate limiter with a pre-compiled Lua script.
func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		script: redis.NewScript(rateLimitLuaScript),
		now:    time.Now,
	}
}

// NewRateLimiterFromURL creates a rate limiter by connecting to Redis.
func NewRateLimiterFromURL(redisURL string) (*RateLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewRateLimiter(client), nil
}

// Allow atomically consumes one slot from the tenant's per-minute bucket.
// A limit of zero or less means unlimited.
func (r *RateLimiter) Allow(ctx context.Context, tenantID string, limitPerMinute int) (bool, error) {
	if limitPerMinute <= 0 {
		return true, nil
	}

	key := fmt.Sprintf("dispatch:rate:%s:%d", tenantID, r.now().Unix()/60)
	result, err := r.script.Run(ctx, r.redis,
		[]string{key},
		1,
		limitPerMinute,
		120, // 2 minute TTL covers clock skew across dispatchers
	).Slice()
	if err != nil {
		return false, fmt.Errorf("rate limit check: %w", err)
	}

	return result[0].(int64) == 1, nil
}

// Close closes the Redis connection.
func (r *RateLimiter) Close() error {
	return r.redis.Close()
}
