package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow trims the sorted set to the window, then admits the request
// if fewer than limit members remain. Returns {allowed, remaining, reset_ms}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local reset = window
  if oldest[2] then
    reset = tonumber(oldest[2]) + window - now
  end
  return {0, 0, reset}
end

redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)
return {1, limit - count - 1, window}
`)

// Redis is a sliding-window limiter shared by every server instance
type Redis struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// NewRedis creates a limiter from a redis:// URL
func NewRedis(redisURL string, limit int, window time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return NewRedisWithClient(redis.NewClient(opts), limit, window), nil
}

// NewRedisWithClient wraps an existing client
func NewRedisWithClient(client *redis.Client, limit int, window time.Duration) *Redis {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Redis{client: client, prefix: "docscanner:ratelimit:", limit: limit, window: window}
}

// Ping checks connectivity
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Allow records a request for key if it fits in the window
func (r *Redis) Allow(ctx context.Context, key string) (Result, error) {
	now := time.Now().UnixMilli()
	vals, err := slidingWindow.Run(ctx, r.client,
		[]string{r.prefix + key},
		now, r.window.Milliseconds(), r.limit, fmt.Sprintf("%d-%s", now, uuid.NewString()),
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(vals) != 3 {
		return Result{}, fmt.Errorf("rate limit script returned %d values", len(vals))
	}

	reset := time.Duration(vals[2]) * time.Millisecond
	if vals[0] == 0 {
		return Result{Allowed: false, ResetAfter: atLeastSecond(reset)}, nil
	}
	return Result{Allowed: true, Remaining: int(vals[1]), ResetAfter: reset}, nil
}

// Close releases the connection pool
func (r *Redis) Close() error {
	return r.client.Close()
}
