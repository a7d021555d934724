package app

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Pinger is anything that can report whether it is reachable, such as the
// Docker plot sandbox.
type Pinger interface{ Ping(ctx context.Context) error }

// BuildReadinessChecks returns the redis and sandbox readiness checks. A nil
// dependency yields a nil check, which /readyz skips.
func BuildReadinessChecks(rdb *redis.Client, sandbox Pinger) (
	redisCheck func(ctx context.Context) error,
	sandboxCheck func(ctx context.Context) error,
) {
	if rdb != nil {
		redisCheck = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	if sandbox != nil {
		sandboxCheck = sandbox.Ping
	}
	return redisCheck, sandboxCheck
}
