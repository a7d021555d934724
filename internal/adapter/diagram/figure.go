package diagram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-calculator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-calculator/internal/domain"
)

const figureBoundingBox = "% Explicit bounding box for wide diagrams\n\\path[use as bounding box] (-12,-8) rectangle (12,6);\n"

const figureTemplate = `
\documentclass[border=30pt]{standalone}
\usepackage{tikz}
\usepackage{pgfplots}
\usepackage{amsmath}
\usepackage{amssymb}
\usetikzlibrary{arrows,automata,positioning,shapes,patterns,decorations.pathreplacing,calc,angles,quotes,trees}
\pgfplotsset{compat=1.18}

\begin{document}
\begin{tikzpicture}[auto,node distance=2cm,>=stealth']
%s
\end{tikzpicture}
\end{document}
`

// FigureTools names the external binaries and their time limits.
type FigureTools struct {
	Latex         string
	LatexTimeout  time.Duration
	Pdftoppm      string
	Convert       string
	RasterTimeout time.Duration
	DPI           int
}

// FigureRenderer compiles TikZ sources to PNG files under outDir.
type FigureRenderer struct {
	runner  CommandRunner
	tools   FigureTools
	outDir  string
	subdir  string
	scratch string
}

// NewFigureRenderer creates a renderer writing to outDir/subdir.
func NewFigureRenderer(runner CommandRunner, tools FigureTools, outDir, subdir, scratchDir string) *FigureRenderer {
	if tools.DPI <= 0 {
		tools.DPI = 300
	}
	return &FigureRenderer{runner: runner, tools: tools, outDir: outDir, subdir: subdir, scratch: scratchDir}
}

// RenderFigure compiles source and rasterizes it to subdir/filename, which is
// returned relative to the output directory. Failures are logged and reported
// as ok=false.
func (r *FigureRenderer) RenderFigure(ctx context.Context, source, filename string) (string, bool) {
	start := time.Now()
	err := r.render(ctx, source, filename)
	observability.ObserveDiagramRender(string(domain.DiagramFigure), time.Since(start), err == nil)
	if err != nil {
		observability.LoggerFromContext(ctx).Error("figure rendering failed",
			slog.String("file", filename),
			slog.Any("error", err))
		return "", false
	}
	return r.subdir + "/" + filename, true
}

func (r *FigureRenderer) render(ctx context.Context, source, filename string) error {
	workDir, err := os.MkdirTemp(r.scratch, "figure-")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	body := PrepareFigureSource(source)
	document := fmt.Sprintf(figureTemplate, body)
	tex := filepath.Join(workDir, "diagram.tex")
	if err := os.WriteFile(tex, []byte(document), 0o600); err != nil {
		return fmt.Errorf("write tex: %w", err)
	}

	res, err := r.runner.Run(ctx, r.tools.LatexTimeout, r.tools.Latex, "-interaction=nonstopmode", "-output-directory", workDir, tex)
	if err != nil {
		observability.LoggerFromContext(ctx).Error("latex compilation failed",
			slog.String("file", filename),
			slog.String("stdout", res.Stdout),
			slog.String("stderr", res.Stderr),
			slog.String("document", document))
		return fmt.Errorf("compile: %w: %s", err, tail(res.Stdout, 500))
	}
	pdf := filepath.Join(workDir, "diagram.pdf")
	if _, err := os.Stat(pdf); err != nil {
		return errors.New("compiler reported success but produced no pdf")
	}

	dir := filepath.Join(r.outDir, r.subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	out := filepath.Join(dir, filename)
	return r.rasterize(ctx, pdf, out)
}

// rasterize converts the first pdf page with pdftoppm, falling back to
// ImageMagick when pdftoppm is missing or fails.
func (r *FigureRenderer) rasterize(ctx context.Context, pdf, out string) error {
	dpi := strconv.Itoa(r.tools.DPI)
	_, primaryErr := r.runner.Run(ctx, r.tools.RasterTimeout, r.tools.Pdftoppm,
		"-png", "-singlefile", "-r", dpi, pdf, strings.TrimSuffix(out, ".png"))
	if primaryErr == nil {
		return nil
	}
	observability.LoggerFromContext(ctx).Warn("pdftoppm failed, trying convert", slog.Any("error", primaryErr))

	res, err := r.runner.Run(ctx, r.tools.RasterTimeout, r.tools.Convert,
		"-density", dpi, "-quality", "100", pdf, out)
	if err != nil {
		return fmt.Errorf("rasterize: %w; %w: %s", primaryErr, err, tail(res.Stderr, 500))
	}
	return nil
}

var figurePreamble = []string{`\documentclass`, `\usepackage`, `\usetikzlibrary`, `\pgfplotsset`, `\begin{tikzpicture}`}

// PrepareFigureSource reduces model output to the body of a tikzpicture:
// unescaped dollar signs are escaped, preamble and environment lines are
// dropped, and sources mentioning trees or wide layouts get a fixed bounding
// box.
func PrepareFigureSource(source string) string {
	escaped := escapeDollars(strings.TrimSpace(source))
	var kept []string
	for _, line := range strings.Split(escaped, "\n") {
		t := strings.TrimSpace(line)
		if t == `\begin{document}` || t == `\end{document}` || t == `\end{tikzpicture}` || hasAnyPrefix(t, figurePreamble) {
			continue
		}
		kept = append(kept, line)
	}
	body := strings.TrimSpace(strings.Join(kept, "\n"))
	lower := strings.ToLower(source)
	if strings.Contains(lower, "tree") || strings.Contains(lower, "wide") {
		body = figureBoundingBox + body
	}
	return body
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// escapeDollars prefixes every "$" not already preceded by a backslash.
func escapeDollars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '$' && (i == 0 || s[i-1] != '\\') {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
