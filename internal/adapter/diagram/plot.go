package diagram

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fairyhunter13/ai-calculator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-calculator/internal/domain"
)

//go:embed harness.py
var harnessScript []byte

// Names of the files exchanged with the sandbox inside the work directory.
const (
	harnessFile = "harness.py"
	codeFile    = "user_code.py"
	outputFile  = "output.png"
)

// PlotExecutor runs the harness in workDir. The harness reads codeFile and
// must leave outputFile behind on success.
type PlotExecutor interface {
	Execute(ctx context.Context, workDir string) error
}

// PlotRenderer renders plotting code to a PNG in outDir.
type PlotRenderer struct {
	exec    PlotExecutor
	outDir  string
	scratch string
	timeout time.Duration
}

// NewPlotRenderer creates a renderer writing into outDir. Scratch work dirs
// are created under scratchDir, or the OS temp dir when empty.
func NewPlotRenderer(exec PlotExecutor, outDir, scratchDir string, timeout time.Duration) *PlotRenderer {
	return &PlotRenderer{exec: exec, outDir: outDir, scratch: scratchDir, timeout: timeout}
}

// RenderPlot executes code in the sandbox and stores the figure as
// outDir/filename. Failures are logged and reported as ok=false; the scratch
// directory is removed on every path.
func (r *PlotRenderer) RenderPlot(ctx context.Context, code, filename string) (string, bool) {
	start := time.Now()
	err := r.render(ctx, stripLanguageTag(code), filename)
	observability.ObserveDiagramRender(string(domain.DiagramPlot), time.Since(start), err == nil)
	if err != nil {
		observability.LoggerFromContext(ctx).Error("plot rendering failed",
			slog.String("file", filename),
			slog.Any("error", err))
		return "", false
	}
	return filename, true
}

func (r *PlotRenderer) render(ctx context.Context, code, filename string) error {
	if r.exec == nil {
		return errors.New("plot sandbox disabled")
	}
	workDir, err := os.MkdirTemp(r.scratch, "plot-")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	if err := os.WriteFile(filepath.Join(workDir, harnessFile), harnessScript, 0o644); err != nil {
		return fmt.Errorf("write harness: %w", err)
	}
	if err := os.WriteFile(filepath.Join(workDir, codeFile), []byte(code), 0o644); err != nil {
		return fmt.Errorf("write code: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.exec.Execute(ctx, workDir); err != nil {
		return err
	}
	if err := os.MkdirAll(r.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return copyFile(filepath.Join(workDir, outputFile), filepath.Join(r.outDir, filename))
}

// copyFile writes to a temporary name first so a half-written PNG is never
// served.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer func() { _ = in.Close() }()

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("copy output: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
