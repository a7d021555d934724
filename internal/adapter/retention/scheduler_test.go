package retention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// touch creates name in dir with the given modification time.
func touch(t *testing.T, dir, name string, mtime time.Time) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("png"), 0o644))
	require.NoError(t, os.Chtimes(p, mtime, mtime))
	return p
}

func TestSweep_RemovesExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	clock := &fakeClock{now: epoch}
	old := touch(t, dir, "plot_old.png", epoch.Add(-3*time.Hour))
	fresh := touch(t, dir, "plot_new.png", epoch.Add(-30*time.Minute))
	other := touch(t, dir, "notes.txt", epoch.Add(-10*time.Hour))

	s := New(Options{Dir: dir, MaxAge: 2 * time.Hour}, WithClock(clock.Now))
	stats, err := s.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Scanned)
	assert.Equal(t, 1, stats.Expired)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other, "files outside the patterns are left alone")
}

func TestSweep_AgeBoundaryIsExclusive(t *testing.T) {
	dir := t.TempDir()
	clock := &fakeClock{now: epoch}
	edge := touch(t, dir, "plot_edge.png", epoch.Add(-2*time.Hour))

	s := New(Options{Dir: dir, MaxAge: 2 * time.Hour}, WithClock(clock.Now))
	_, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, edge)

	clock.Advance(time.Second)
	_, err = s.Sweep(context.Background())
	require.NoError(t, err)
	assert.NoFileExists(t, edge)
}

func TestSweep_TrimsOldestBeyondCap(t *testing.T) {
	dir := t.TempDir()
	clock := &fakeClock{now: epoch}
	var paths []string
	for i := 0; i < 5; i++ {
		paths = append(paths, touch(t, dir, fmt.Sprintf("plot_%d.png", i), epoch.Add(-time.Duration(5-i)*time.Minute)))
	}

	s := New(Options{Dir: dir, MaxFiles: 3}, WithClock(clock.Now))
	stats, err := s.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.OverCap)
	assert.NoFileExists(t, paths[0])
	assert.NoFileExists(t, paths[1])
	for _, p := range paths[2:] {
		assert.FileExists(t, p)
	}
}

func TestSweep_CapCountsOnlyFilesSurvivingAge(t *testing.T) {
	dir := t.TempDir()
	clock := &fakeClock{now: epoch}
	touch(t, dir, "plot_a.png", epoch.Add(-5*time.Hour))
	touch(t, dir, "plot_b.png", epoch.Add(-4*time.Hour))
	b := touch(t, dir, "plot_c.png", epoch.Add(-time.Minute))
	c := touch(t, dir, "plot_d.png", epoch)

	s := New(Options{Dir: dir, MaxFiles: 2}, WithClock(clock.Now))
	stats, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Expired)
	assert.Equal(t, 0, stats.OverCap)
	assert.FileExists(t, b)
	assert.FileExists(t, c)
}

func TestSweep_ExtraPatternsReachSubdirectories(t *testing.T) {
	dir := t.TempDir()
	clock := &fakeClock{now: epoch}
	fig := touch(t, dir, "tikz/tikz_1.png", epoch.Add(-3*time.Hour))

	s := New(Options{Dir: dir}, WithClock(clock.Now))
	_, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, fig, "default pattern only covers plots")

	s = New(Options{Dir: dir, Patterns: []string{"plot_*.png", "tikz/tikz_*.png"}}, WithClock(clock.Now))
	_, err = s.Sweep(context.Background())
	require.NoError(t, err)
	assert.NoFileExists(t, fig)
}

func TestSweep_MissingDirIsNotAnError(t *testing.T) {
	s := New(Options{Dir: filepath.Join(t.TempDir(), "absent")})
	stats, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Scanned)
}

func TestSweep_BadPatternFails(t *testing.T) {
	s := New(Options{Dir: t.TempDir(), Patterns: []string{"["}})
	_, err := s.Sweep(context.Background())
	require.Error(t, err)
}

func TestRunSweep_ErrorAndPanicUseErrorDelay(t *testing.T) {
	ctx := context.Background()
	opts := Options{Dir: t.TempDir(), Interval: time.Hour, ErrorDelay: time.Minute}

	ok := New(opts)
	assert.Equal(t, time.Hour, ok.runSweep(ctx))

	bad := opts
	bad.Patterns = []string{"["}
	assert.Equal(t, time.Minute, New(bad).runSweep(ctx))

	panicky := New(opts, WithClock(func() time.Time { panic("clock broke") }))
	assert.Equal(t, time.Minute, panicky.runSweep(ctx))
}

func TestDeleteDue_RemovesInDueOrder(t *testing.T) {
	dir := t.TempDir()
	clock := &fakeClock{now: epoch}
	s := New(Options{Dir: dir}, WithClock(clock.Now))

	first := touch(t, dir, "plot_1.png", epoch)
	second := touch(t, dir, "tikz/tikz_2.png", epoch)
	s.Schedule("plot_1.png", time.Minute)
	s.Schedule("tikz/tikz_2.png", 5*time.Minute)
	require.Equal(t, 2, s.Pending())

	assert.Zero(t, s.DeleteDue())
	assert.Equal(t, time.Minute, s.nextDue())

	clock.Advance(time.Minute)
	assert.Equal(t, 1, s.DeleteDue())
	assert.NoFileExists(t, first)
	assert.FileExists(t, second)

	clock.Advance(10 * time.Minute)
	assert.Equal(t, 1, s.DeleteDue())
	assert.NoFileExists(t, second)
	assert.Zero(t, s.Pending())
	assert.Equal(t, idleWait, s.nextDue())
}

func TestDeleteDue_AlreadyGoneIsFine(t *testing.T) {
	clock := &fakeClock{now: epoch}
	s := New(Options{Dir: t.TempDir()}, WithClock(clock.Now))
	s.Schedule("plot_missing.png", 0)
	assert.Equal(t, 1, s.DeleteDue())
}

func TestScheduleDelete_UsesDefaultDelay(t *testing.T) {
	clock := &fakeClock{now: epoch}
	s := New(Options{Dir: t.TempDir()}, WithClock(clock.Now))
	s.ScheduleDelete("plot_x.png")
	assert.Equal(t, 10*time.Minute, s.nextDue())
}

func TestSchedule_RejectsPathsOutsideDir(t *testing.T) {
	dir := t.TempDir()
	s := New(Options{Dir: dir})
	s.Schedule("../escape.png", 0)
	s.Schedule(filepath.Join(filepath.Dir(dir), "elsewhere.png"), 0)
	s.Schedule("", 0)
	assert.Zero(t, s.Pending())

	s.Schedule(filepath.Join(dir, "plot_ok.png"), 0)
	assert.Equal(t, 1, s.Pending())
}

func TestRun_DeletesScheduledFilesAndStops(t *testing.T) {
	dir := t.TempDir()
	p := touch(t, dir, "plot_run.png", time.Now())
	s := New(Options{Dir: dir, Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	s.Schedule("plot_run.png", 20*time.Millisecond)
	require.Eventually(t, func() bool {
		_, err := os.Stat(p)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestRun_InitialSweep(t *testing.T) {
	dir := t.TempDir()
	old := touch(t, dir, "plot_stale.png", time.Now().Add(-3*time.Hour))
	s := New(Options{Dir: dir, Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool {
		_, err := os.Stat(old)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)
}
