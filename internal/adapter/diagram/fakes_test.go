package diagram

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scriptedRunner dispatches on the binary name.
type scriptedRunner struct {
	mu    sync.Mutex
	calls [][]string
	steps map[string]func(args []string) (CommandResult, error)
}

func (r *scriptedRunner) Run(_ context.Context, _ time.Duration, name string, args ...string) (CommandResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string{name}, args...))
	step := r.steps[name]
	r.mu.Unlock()
	if step == nil {
		return CommandResult{}, &os.PathError{Op: "exec", Path: name, Err: os.ErrNotExist}
	}
	return step(args)
}

func (r *scriptedRunner) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c[0]
	}
	return out
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "scratch files left behind in %s", dir)
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG"), 0o644))
}
