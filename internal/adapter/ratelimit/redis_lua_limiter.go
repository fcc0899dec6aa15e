// Package ratelimit throttles repeated evaluation triggers with a Redis token bucket.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether one more unit of work for key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// BucketConfig is a token bucket: Capacity tokens refilled at RefillRate per second.
type BucketConfig struct {
	Capacity   int64
	RefillRate float64
}

// NewBucketConfigFromPerMinute allows perMinute units with a burst of the same size.
func NewBucketConfigFromPerMinute(perMinute int) BucketConfig {
	if perMinute <= 0 {
		return BucketConfig{}
	}
	return BucketConfig{Capacity: int64(perMinute), RefillRate: float64(perMinute) / 60.0}
}

// RedisLuaLimiter keeps one bucket per key in a Redis hash and updates it atomically.
type RedisLuaLimiter struct {
	rdb    redis.Scripter
	cfg    BucketConfig
	prefix string
	script *redis.Script
	now    func() time.Time
}

// NewRedisLuaLimiter returns nil when rdb is nil; a nil limiter allows everything.
func NewRedisLuaLimiter(rdb redis.Scripter, prefix string, cfg BucketConfig) *RedisLuaLimiter {
	if rdb == nil {
		return nil
	}
	return &RedisLuaLimiter{rdb: rdb, cfg: cfg, prefix: prefix, script: redis.NewScript(luaTokenBucketScript), now: time.Now}
}

// Lua numbers come back as truncated integers, so the wait is returned in milliseconds.
const luaTokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local tokens = capacity
local last_refill = now
local data = redis.call("HMGET", key, "tokens", "last_refill")
if data[1] then tokens = tonumber(data[1]) end
if data[2] then last_refill = tonumber(data[2]) end

local delta = math.max(0, now - last_refill)
tokens = math.min(capacity, tokens + delta * refill_rate)

local allowed = 0
local retry_ms = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
else
  retry_ms = math.ceil((1 - tokens) / refill_rate * 1000)
end

redis.call("HSET", key, "tokens", tostring(tokens), "last_refill", tostring(now))
redis.call("EXPIRE", key, math.ceil(capacity / refill_rate) + 1)
return { allowed, retry_ms }
`

// Allow takes one token from key's bucket. Redis errors fail open.
func (l *RedisLuaLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if l == nil || l.cfg.Capacity <= 0 || l.cfg.RefillRate <= 0 {
		return true, 0, nil
	}
	nowSec := float64(l.now().UnixNano()) / 1e9
	res, err := l.script.Run(ctx, l.rdb, []string{l.prefix + key}, l.cfg.Capacity, l.cfg.RefillRate, nowSec).Int64Slice()
	if err != nil {
		slog.Error("rate limiter script error", slog.String("key", key), slog.String("error", err.Error()))
		return true, 0, err
	}
	if len(res) < 2 {
		return true, 0, nil
	}
	return res[0] == 1, time.Duration(res[1]) * time.Millisecond, nil
}
