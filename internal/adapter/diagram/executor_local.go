package diagram

import (
	"context"
	"fmt"
	"path/filepath"
	"time"
)

// LocalExecutor runs the harness in a separate isolated-mode interpreter
// with an empty environment. It offers no filesystem or network isolation
// and is meant for development only.
type LocalExecutor struct {
	Python string
	Runner CommandRunner
}

// NewLocalExecutor returns an executor invoking python.
func NewLocalExecutor(python string) *LocalExecutor {
	return &LocalExecutor{Python: python, Runner: ExecRunner{Env: []string{}}}
}

// Execute implements PlotExecutor.
func (e *LocalExecutor) Execute(ctx context.Context, workDir string) error {
	timeout := time.Minute
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	res, err := e.Runner.Run(ctx, timeout, e.Python, "-I", filepath.Join(workDir, harnessFile), workDir)
	if err != nil {
		return fmt.Errorf("plot harness: %w: %s", err, tail(res.Stderr, 500))
	}
	return nil
}
