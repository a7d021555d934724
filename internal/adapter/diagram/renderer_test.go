package diagram

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-calculator/internal/domain"
)

type fakePlotter struct {
	ok    bool
	code  string
	calls int
}

func (f *fakePlotter) RenderPlot(_ context.Context, code, filename string) (string, bool) {
	f.calls++
	f.code = code
	if !f.ok {
		return "", false
	}
	return filename, true
}

type fakeFigurer struct {
	ok    bool
	calls int
}

func (f *fakeFigurer) RenderFigure(_ context.Context, _ string, filename string) (string, bool) {
	f.calls++
	if !f.ok {
		return "", false
	}
	return "tikz/" + filename, true
}

func newTestRenderer(p Plotter, f Figurer) *Renderer {
	r := NewRenderer(p, f, "/static/generated/")
	r.newID = func() string { return "abcd1234" }
	return r
}

func TestProcess_NoMarkers(t *testing.T) {
	p, f := &fakePlotter{ok: true}, &fakeFigurer{ok: true}
	out := newTestRenderer(p, f).Process(context.Background(), "<p>x = 2 or x = 3</p>")
	assert.Equal(t, "<p>x = 2 or x = 3</p>", out.HTML)
	assert.Nil(t, out.DiagramURL)
	assert.Nil(t, out.Diagram)
	assert.Zero(t, p.calls+f.calls)
}

func TestProcess_PlotSuccess(t *testing.T) {
	p, f := &fakePlotter{ok: true}, &fakeFigurer{ok: true}
	answer := "<p>graph</p><!--PLOT-START-->\nplt.plot([1])\n<!--PLOT-END--><!--TIKZ-START-->x<!--TIKZ-END-->"
	out := newTestRenderer(p, f).Process(context.Background(), answer)

	require.NotNil(t, out.DiagramURL)
	assert.Equal(t, "/static/generated/plot_abcd1234.png", *out.DiagramURL)
	assert.Equal(t, `<p>graph</p>`+ImageHTML("/static/generated/plot_abcd1234.png")+`<!--TIKZ-START-->x<!--TIKZ-END-->`, out.HTML)
	assert.Equal(t, "plt.plot([1])", p.code)
	assert.Equal(t, 0, f.calls, "at most one diagram is rendered")
	require.NotNil(t, out.Diagram)
	assert.Equal(t, domain.DiagramPlot, out.Diagram.Kind)
	assert.Equal(t, "plot_abcd1234.png", out.Diagram.Path)
}

func TestProcess_FigureSuccess(t *testing.T) {
	out := newTestRenderer(&fakePlotter{}, &fakeFigurer{ok: true}).
		Process(context.Background(), "<!--TIKZ-START-->\\node {A};<!--TIKZ-END-->")
	require.NotNil(t, out.DiagramURL)
	assert.Equal(t, "/static/generated/tikz/tikz_abcd1234.png", *out.DiagramURL)
	assert.Equal(t, "tikz/tikz_abcd1234.png", out.Diagram.Path)
}

func TestProcess_FailureReplacesEveryRegionOfKind(t *testing.T) {
	answer := "a<!--PLOT-START-->1<!--PLOT-END-->b<!--PLOT-START-->2<!--PLOT-END-->"
	out := newTestRenderer(&fakePlotter{ok: false}, nil).Process(context.Background(), answer)
	assert.Nil(t, out.DiagramURL)
	assert.Equal(t, "a"+FailureHTML+"b"+FailureHTML, out.HTML)
}

func TestProcess_MissingRendererCountsAsFailure(t *testing.T) {
	out := newTestRenderer(nil, nil).Process(context.Background(), "<!--TIKZ-START-->x<!--TIKZ-END-->")
	assert.Nil(t, out.DiagramURL)
	assert.Equal(t, FailureHTML, out.HTML)
}

func TestFilename(t *testing.T) {
	r := NewRenderer(nil, nil, "/static/generated")
	assert.Regexp(t, regexp.MustCompile(`^plot_[0-9a-f]{8}\.png$`), r.Filename(domain.DiagramPlot))
	assert.Regexp(t, regexp.MustCompile(`^tikz_[0-9a-f]{8}\.png$`), r.Filename(domain.DiagramFigure))
	assert.NotEqual(t, r.Filename(domain.DiagramPlot), r.Filename(domain.DiagramPlot))
}
