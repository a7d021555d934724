// Package ratelimiter implements a shared token bucket on Redis so every
// replica draws from the same per-client budget.
package ratelimiter

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// BucketConfig sizes one token bucket.
type BucketConfig struct {
	Capacity   int64
	RefillRate float64 // tokens per second
}

// NewBucketConfigFromPerMinute builds a bucket that allows perMinute requests
// in a burst and refills at the same rate.
func NewBucketConfigFromPerMinute(perMinute int) BucketConfig {
	if perMinute <= 0 {
		return BucketConfig{}
	}
	return BucketConfig{
		Capacity:   int64(perMinute),
		RefillRate: float64(perMinute) / 60.0,
	}
}

// ttl is how long an idle bucket lives: twice the time to refill from empty.
func (c BucketConfig) ttl() time.Duration {
	if c.RefillRate <= 0 {
		return time.Hour
	}
	return 2 * time.Duration(float64(c.Capacity)/c.RefillRate*float64(time.Second))
}

// RedisLuaLimiter evaluates the bucket atomically in a Lua script. Keys
// without an override use the default bucket.
type RedisLuaLimiter struct {
	redis     *redis.Client
	script    *redis.Script
	prefix    string
	now       func() time.Time
	defBucket BucketConfig

	mu      sync.RWMutex
	buckets map[string]BucketConfig
}

// Option customises a RedisLuaLimiter.
type Option func(*RedisLuaLimiter)

// WithClock overrides the time source passed to the script.
func WithClock(now func() time.Time) Option {
	return func(l *RedisLuaLimiter) { l.now = now }
}

// WithKeyPrefix namespaces the Redis keys.
func WithKeyPrefix(p string) Option {
	return func(l *RedisLuaLimiter) { l.prefix = p }
}

// NewRedisLuaLimiter returns nil when rdb is nil; a nil limiter allows
// everything.
func NewRedisLuaLimiter(rdb *redis.Client, def BucketConfig, opts ...Option) *RedisLuaLimiter {
	if rdb == nil {
		return nil
	}
	l := &RedisLuaLimiter{
		redis:     rdb,
		script:    redis.NewScript(luaTokenBucketScript),
		prefix:    "aicalc:rate:",
		now:       time.Now,
		defBucket: def,
		buckets:   map[string]BucketConfig{},
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Redis truncates Lua numbers to integers on return, so the remaining tokens
// are floored and the wait is returned in whole milliseconds.
const luaTokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local ttl_ms = tonumber(ARGV[5])

local tokens = capacity
local last_refill = now

local data = redis.call("HMGET", key, "tokens", "last_refill")
if data[1] then
  tokens = tonumber(data[1])
end
if data[2] then
  last_refill = tonumber(data[2])
end

local delta = now - last_refill
if delta < 0 then
  delta = 0
end

tokens = math.min(capacity, tokens + delta * refill_rate)

local allowed = 0
local retry_after_ms = 0
if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
elseif refill_rate > 0 then
  retry_after_ms = math.ceil((cost - tokens) / refill_rate * 1000)
end

redis.call("HSET", key, "tokens", tostring(tokens), "last_refill", tostring(now))
redis.call("PEXPIRE", key, ttl_ms)

return { allowed, math.floor(tokens), retry_after_ms }
`

func (l *RedisLuaLimiter) bucketFor(key string) BucketConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if cfg, ok := l.buckets[key]; ok {
		return cfg
	}
	return l.defBucket
}

// Allow spends cost tokens from key's bucket. Redis failures fail open and
// are returned alongside allowed=true.
func (l *RedisLuaLimiter) Allow(ctx context.Context, key string, cost int64) (bool, time.Duration, error) {
	if l == nil || l.redis == nil {
		return true, 0, nil
	}
	cfg := l.bucketFor(key)
	if cfg.Capacity <= 0 || cfg.RefillRate <= 0 {
		return true, 0, nil
	}
	if cost <= 0 {
		cost = 1
	}

	nowSec := float64(l.now().UnixNano()) / 1e9
	res, err := l.script.Run(ctx, l.redis, []string{l.prefix + key},
		cfg.Capacity, cfg.RefillRate, nowSec, cost, cfg.ttl().Milliseconds()).Result()
	if err != nil {
		slog.Error("redis rate limiter script error", slog.String("key", key), slog.Any("error", err))
		return true, 0, err
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) < 3 {
		slog.Error("redis rate limiter unexpected script result", slog.String("key", key), slog.Any("result", res))
		return true, 0, nil
	}
	allowed := toInt64(vals[0]) == 1
	retryAfter := time.Duration(toInt64(vals[2])) * time.Millisecond
	return allowed, retryAfter, nil
}

// SetBucketConfig overrides the bucket for one key. It is safe for
// concurrent use.
func (l *RedisLuaLimiter) SetBucketConfig(key string, cfg BucketConfig) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[key] = cfg
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		if math.IsNaN(t) {
			return 0
		}
		return int64(t)
	default:
		return 0
	}
}
