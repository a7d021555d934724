// Package config defines retry and rate limit configuration.
package config

import (
	"time"
)

// RetryConfig holds provider retry configuration
type RetryConfig struct {
	// MaxRetries is the total number of attempts made against the provider chain
	MaxRetries int
	// BaseDelay is the wait after the first failed attempt; it doubles each time
	BaseDelay time.Duration
}

// GetRetryConfig returns the retry configuration, with fast waits in tests.
func (c Config) GetRetryConfig() RetryConfig {
	rc := RetryConfig{MaxRetries: c.AIMaxRetries, BaseDelay: c.AIBackoffBase}
	if rc.MaxRetries <= 0 {
		rc.MaxRetries = 1
	}
	if c.IsTest() {
		rc.BaseDelay = 10 * time.Millisecond
	}
	return rc
}

// Per-minute request limits per active backend, mirroring the quotas each
// backend tolerates.
var backendRateLimits = map[string]int{
	"vertex":     30,
	"gemini":     15,
	"openrouter": 15,
}

// RateLimitFor returns the per-minute limit for the given backend. An explicit
// RATE_LIMIT_PER_MIN always wins.
func (c Config) RateLimitFor(backend string) int {
	if c.RateLimitPerMin > 0 {
		return c.RateLimitPerMin
	}
	if n, ok := backendRateLimits[backend]; ok {
		return n
	}
	return backendRateLimits["gemini"]
}
