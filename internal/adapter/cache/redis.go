package cache

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-calculator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-calculator/internal/domain"
)

const keyPrefix = "aicalc:solve:"

// Redis is a response cache shared across processes. Every operation fails
// soft: an unreachable server is a miss on read and a dropped write on store.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis wraps an existing client. Expiry is delegated to Redis.
func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

// Lookup fetches and decodes a stored result.
func (r *Redis) Lookup(ctx domain.Context, key string) (domain.SolveResult, bool) {
	raw, err := r.rdb.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			observability.LoggerFromContext(ctx).Warn("response cache read failed", slog.Any("error", err))
		}
		observability.ObserveCacheLookup(false)
		return domain.SolveResult{}, false
	}
	var v domain.SolveResult
	if err := json.Unmarshal(raw, &v); err != nil {
		observability.LoggerFromContext(ctx).Warn("response cache entry undecodable", slog.Any("error", err))
		observability.ObserveCacheLookup(false)
		return domain.SolveResult{}, false
	}
	observability.ObserveCacheLookup(true)
	return v, true
}

// Store writes value with the configured TTL.
func (r *Redis) Store(ctx domain.Context, key string, value domain.SolveResult) {
	raw, err := json.Marshal(value)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("response cache encode failed", slog.Any("error", err))
		return
	}
	if err := r.rdb.Set(ctx, keyPrefix+key, raw, r.ttl).Err(); err != nil {
		observability.LoggerFromContext(ctx).Warn("response cache write failed", slog.Any("error", err))
	}
}
