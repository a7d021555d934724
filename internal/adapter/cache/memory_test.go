package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-calculator/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestMemory(ttl time.Duration) (*Memory, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewMemory(ttl, WithClock(clk.Now)), clk
}

func TestMemory_HitThenExpireAtTTL(t *testing.T) {
	ctx := context.Background()
	m, clk := newTestMemory(time.Hour)
	want := domain.SolveResult{Success: true, Solution: "<p>x=2</p>", APIBackend: "gemini"}
	m.Store(ctx, "k", want)

	clk.Advance(time.Hour - time.Second)
	got, ok := m.Lookup(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, want, got)

	clk.Advance(time.Second)
	_, ok = m.Lookup(ctx, "k")
	assert.False(t, ok, "an entry exactly TTL old is stale for lookups")
	assert.Equal(t, 0, m.Len(), "stale entry is evicted on lookup")
}

func TestMemory_StoreSweepsOlderThanTTL(t *testing.T) {
	ctx := context.Background()
	m, clk := newTestMemory(time.Hour)
	m.Store(ctx, "old", domain.SolveResult{Solution: "old"})
	m.Store(ctx, "edge", domain.SolveResult{Solution: "edge"})

	clk.Advance(time.Hour)
	m.Store(ctx, "fresh", domain.SolveResult{Solution: "fresh"})
	// Entries exactly TTL old survive the sweep.
	assert.Equal(t, 3, m.Len())

	clk.Advance(time.Nanosecond)
	m.Store(ctx, "newer", domain.SolveResult{Solution: "newer"})
	assert.Equal(t, 2, m.Len())
	_, ok := m.Lookup(ctx, "old")
	assert.False(t, ok)
	_, ok = m.Lookup(ctx, "fresh")
	assert.True(t, ok)
}

func TestMemory_OverwriteResetsAge(t *testing.T) {
	ctx := context.Background()
	m, clk := newTestMemory(time.Minute)
	m.Store(ctx, "k", domain.SolveResult{Solution: "a"})
	clk.Advance(50 * time.Second)
	m.Store(ctx, "k", domain.SolveResult{Solution: "b"})
	clk.Advance(50 * time.Second)
	got, ok := m.Lookup(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "b", got.Solution)
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				k := fmt.Sprintf("k%d", (i+j)%10)
				m.Store(ctx, k, domain.SolveResult{Solution: k})
				m.Lookup(ctx, k)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, m.Len())
}
