// Package retention removes generated diagram files once they are no longer
// needed: a queue of per-file delayed deletions plus a periodic sweep that
// bounds the age and number of files left in the output directory.
package retention

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	obs "github.com/fairyhunter13/ai-calculator/internal/adapter/observability"
)

// Options configures a Scheduler. Zero values fall back to the defaults below.
type Options struct {
	Dir         string
	Patterns    []string
	Interval    time.Duration
	MaxAge      time.Duration
	MaxFiles    int
	ErrorDelay  time.Duration
	DeleteAfter time.Duration
}

const (
	defaultInterval    = time.Hour
	defaultMaxAge      = 2 * time.Hour
	defaultMaxFiles    = 500
	defaultErrorDelay  = 60 * time.Second
	defaultDeleteAfter = 10 * time.Minute
	// idleWait bounds how long the worker sleeps when the queue is empty.
	idleWait = 24 * time.Hour
)

var defaultPatterns = []string{"plot_*.png"}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source used for ages and due times.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// SweepStats summarises one sweep.
type SweepStats struct {
	Scanned int
	Expired int
	OverCap int
	Failed  int
}

// Scheduler owns the expiry queue and the periodic sweep. Both run on the
// single goroutine started by Run; Schedule may be called from any goroutine.
type Scheduler struct {
	opts Options
	now  func() time.Time

	mu    sync.Mutex
	queue expiryQueue
	seq   uint64
	wake  chan struct{}
}

// New builds a Scheduler for the given output directory.
func New(opts Options, options ...Option) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = defaultMaxAge
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = defaultMaxFiles
	}
	if opts.ErrorDelay <= 0 {
		opts.ErrorDelay = defaultErrorDelay
	}
	if opts.DeleteAfter <= 0 {
		opts.DeleteAfter = defaultDeleteAfter
	}
	if len(opts.Patterns) == 0 {
		opts.Patterns = defaultPatterns
	}
	s := &Scheduler{opts: opts, now: time.Now, wake: make(chan struct{}, 1)}
	for _, o := range options {
		o(s)
	}
	return s
}

// ScheduleDelete queues path for removal after the configured delay.
func (s *Scheduler) ScheduleDelete(path string) { s.Schedule(path, s.opts.DeleteAfter) }

// Schedule queues path for removal once after has elapsed. Relative paths are
// resolved against the output directory; paths escaping it are ignored.
func (s *Scheduler) Schedule(path string, after time.Duration) {
	full, ok := s.resolve(path)
	if !ok {
		slog.Warn("retention: refusing to schedule path outside output dir", slog.String("path", path))
		return
	}
	s.mu.Lock()
	s.seq++
	heap.Push(&s.queue, &expiry{path: full, due: s.now().Add(after), seq: s.seq})
	n := s.queue.Len()
	s.mu.Unlock()
	obs.RetentionPending.Set(float64(n))

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pending reports the number of queued deletions.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

func (s *Scheduler) resolve(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	base := filepath.Clean(s.opts.Dir)
	full := path
	if !filepath.IsAbs(path) {
		full = filepath.Join(base, path)
	}
	full = filepath.Clean(full)
	rel, err := filepath.Rel(base, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}

// DeleteDue removes every queued file whose due time has passed and returns
// how many entries were consumed.
func (s *Scheduler) DeleteDue() int {
	now := s.now()
	var due []string
	s.mu.Lock()
	for s.queue.Len() > 0 && !s.queue[0].due.After(now) {
		due = append(due, heap.Pop(&s.queue).(*expiry).path)
	}
	n := s.queue.Len()
	s.mu.Unlock()
	obs.RetentionPending.Set(float64(n))

	for _, p := range due {
		removed, err := removeFile(p)
		if err != nil {
			slog.Warn("retention: scheduled delete failed", slog.String("path", p), slog.Any("error", err))
			continue
		}
		if removed {
			obs.RetentionDeletionsTotal.WithLabelValues("scheduled").Inc()
			slog.Debug("retention: removed served file", slog.String("path", p))
		}
	}
	return len(due)
}

// nextDue returns the wait until the earliest queued deletion.
func (s *Scheduler) nextDue() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		return idleWait
	}
	d := s.queue[0].due.Sub(s.now())
	if d < 0 {
		return 0
	}
	return d
}

type candidate struct {
	path    string
	modTime time.Time
}

// Sweep deletes files older than MaxAge and then trims the oldest files until
// at most MaxFiles remain. A missing output directory is not an error.
func (s *Scheduler) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	if _, err := os.Stat(s.opts.Dir); errors.Is(err, fs.ErrNotExist) {
		return stats, nil
	}

	seen := map[string]struct{}{}
	var files []candidate
	for _, pattern := range s.opts.Patterns {
		matches, err := filepath.Glob(filepath.Join(s.opts.Dir, pattern))
		if err != nil {
			return stats, fmt.Errorf("op=retention.Sweep pattern=%q: %w", pattern, err)
		}
		for _, m := range matches {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			info, err := os.Stat(m)
			if err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					stats.Failed++
					slog.Warn("retention: stat failed", slog.String("path", m), slog.Any("error", err))
				}
				continue
			}
			if info.IsDir() {
				continue
			}
			files = append(files, candidate{path: m, modTime: info.ModTime()})
		}
	}
	stats.Scanned = len(files)
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })

	now := s.now()
	remaining := files[:0]
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if now.Sub(f.modTime) <= s.opts.MaxAge {
			remaining = append(remaining, f)
			continue
		}
		if s.remove(f.path, "expired", &stats) {
			stats.Expired++
		}
	}

	if excess := len(remaining) - s.opts.MaxFiles; excess > 0 {
		for _, f := range remaining[:excess] {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			if s.remove(f.path, "over_cap", &stats) {
				stats.OverCap++
			}
		}
	}
	return stats, nil
}

func (s *Scheduler) remove(path, reason string, stats *SweepStats) bool {
	removed, err := removeFile(path)
	if err != nil {
		stats.Failed++
		slog.Warn("retention: sweep delete failed", slog.String("path", path), slog.String("reason", reason), slog.Any("error", err))
		return false
	}
	if removed {
		obs.RetentionDeletionsTotal.WithLabelValues(reason).Inc()
	}
	return removed
}

// removeFile deletes path, treating an already missing file as success.
func removeFile(path string) (bool, error) {
	if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// runSweep performs one sweep and returns the delay before the next one.
func (s *Scheduler) runSweep(ctx context.Context) (next time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("retention: sweep panicked", slog.Any("panic", r))
			next = s.opts.ErrorDelay
		}
	}()
	stats, err := s.Sweep(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return s.opts.Interval
		}
		slog.Error("retention: sweep failed", slog.Any("error", err), slog.Duration("retry_in", s.opts.ErrorDelay))
		return s.opts.ErrorDelay
	}
	if stats.Expired+stats.OverCap > 0 {
		slog.Info("retention: sweep completed",
			slog.Int("scanned", stats.Scanned),
			slog.Int("expired", stats.Expired),
			slog.Int("over_cap", stats.OverCap),
			slog.Int("failed", stats.Failed),
		)
	}
	return s.opts.Interval
}

// Run sweeps immediately, then serves the expiry queue and repeats the sweep
// every Interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	sweepTimer := time.NewTimer(s.runSweep(ctx))
	defer sweepTimer.Stop()

	for {
		expiryTimer := time.NewTimer(s.nextDue())
		select {
		case <-ctx.Done():
			expiryTimer.Stop()
			slog.Info("retention scheduler stopping", slog.Int("pending", s.Pending()))
			return
		case <-s.wake:
		case <-expiryTimer.C:
			s.DeleteDue()
		case <-sweepTimer.C:
			sweepTimer.Reset(s.runSweep(ctx))
		}
		expiryTimer.Stop()
	}
}

type expiry struct {
	path string
	due  time.Time
	seq  uint64
}

// expiryQueue is a min-heap on due time, ties broken by insertion order.
type expiryQueue []*expiry

func (q expiryQueue) Len() int { return len(q) }
func (q expiryQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].seq < q[j].seq
	}
	return q[i].due.Before(q[j].due)
}
func (q expiryQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *expiryQueue) Push(x any)   { *q = append(*q, x.(*expiry)) }
func (q *expiryQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
