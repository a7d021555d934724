package diagram

import (
	"context"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-calculator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-calculator/internal/domain"
)

// Plotter renders plotting code. Implemented by *PlotRenderer.
type Plotter interface {
	RenderPlot(ctx context.Context, code, filename string) (string, bool)
}

// Figurer renders TikZ sources. Implemented by *FigureRenderer.
type Figurer interface {
	RenderFigure(ctx context.Context, source, filename string) (string, bool)
}

// Outcome is an answer after diagram substitution.
type Outcome struct {
	HTML string
	// DiagramURL is nil unless a diagram was rendered.
	DiagramURL *string
	// Diagram describes the rendered file; nil when DiagramURL is nil.
	Diagram *domain.RenderedDiagram
}

// Renderer glues extraction, rendering and substitution.
type Renderer struct {
	plots     Plotter
	figures   Figurer
	urlPrefix string
	newID     func() string
}

// NewRenderer creates a renderer whose files are served under urlPrefix,
// e.g. "/static/generated".
func NewRenderer(plots Plotter, figures Figurer, urlPrefix string) *Renderer {
	return &Renderer{
		plots:     plots,
		figures:   figures,
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
		newID:     shortID,
	}
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Filename returns a fresh output name for kind.
func (r *Renderer) Filename(kind domain.DiagramKind) string {
	prefix := "plot_"
	if kind == domain.DiagramFigure {
		prefix = "tikz_"
	}
	return prefix + r.newID() + ".png"
}

// Process renders at most one diagram. Answers without markers pass through
// unchanged.
func (r *Renderer) Process(ctx context.Context, answer string) Outcome {
	region, found := Extract(answer)
	if !found {
		return Outcome{HTML: answer}
	}

	filename := r.Filename(region.Kind)
	var (
		rel string
		ok  bool
	)
	switch region.Kind {
	case domain.DiagramPlot:
		if r.plots != nil {
			rel, ok = r.plots.RenderPlot(ctx, region.Source, filename)
		}
	case domain.DiagramFigure:
		if r.figures != nil {
			rel, ok = r.figures.RenderFigure(ctx, region.Source, filename)
		}
	}

	lg := observability.LoggerFromContext(ctx)
	if !ok {
		lg.Warn("diagram generation failed, removed from response", slog.String("kind", string(region.Kind)))
		return Outcome{HTML: Replace(answer, region.Kind, FailureHTML)}
	}

	url := path.Join(r.urlPrefix, rel)
	lg.Info("diagram generated", slog.String("kind", string(region.Kind)), slog.String("url", url))
	return Outcome{
		HTML:       Replace(answer, region.Kind, ImageHTML(url)),
		DiagramURL: &url,
		Diagram:    &domain.RenderedDiagram{Kind: region.Kind, Source: region.Source, Path: rel},
	}
}
