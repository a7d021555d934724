package cache

import (
	"sync"
	"time"

	"github.com/fairyhunter13/ai-calculator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-calculator/internal/domain"
)

type entry struct {
	value     domain.SolveResult
	createdAt time.Time
}

// Memory is a per-process TTL cache. Entries are evicted lazily on lookup and
// in bulk on every store; there is no capacity bound.
// It is safe for concurrent use.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

// Option configures a Memory cache.
type Option func(*Memory)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates an empty cache whose entries live for ttl.
func NewMemory(ttl time.Duration, opts ...Option) *Memory {
	m := &Memory{ttl: ttl, now: time.Now, entries: make(map[string]entry)}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Lookup returns the stored value if it is younger than the TTL. An expired
// entry is removed before reporting the miss.
func (m *Memory) Lookup(_ domain.Context, key string) (domain.SolveResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		observability.ObserveCacheLookup(false)
		return domain.SolveResult{}, false
	}
	if m.now().Sub(e.createdAt) >= m.ttl {
		delete(m.entries, key)
		observability.ObserveCacheLookup(false)
		return domain.SolveResult{}, false
	}
	observability.ObserveCacheLookup(true)
	return e.value, true
}

// Store inserts value under key and then drops every entry older than the TTL.
func (m *Memory) Store(_ domain.Context, key string, value domain.SolveResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.entries[key] = entry{value: value, createdAt: now}
	for k, e := range m.entries {
		if now.Sub(e.createdAt) > m.ttl {
			delete(m.entries, k)
		}
	}
}

// Len reports the number of entries currently held, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
