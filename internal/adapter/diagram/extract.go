// Package diagram turns diagram regions in a model answer into rendered PNGs.
package diagram

import (
	"regexp"
	"strings"

	"github.com/fairyhunter13/ai-calculator/internal/domain"
)

var (
	plotRegion   = regexp.MustCompile(`(?s)<!--PLOT-START-->(.*?)<!--PLOT-END-->`)
	figureRegion = regexp.MustCompile(`(?s)<!--TIKZ-START-->(.*?)<!--TIKZ-END-->`)
)

// FailureHTML replaces every region of the chosen kind when rendering fails.
const FailureHTML = `<p><em>Diagram generation failed. Please refer to the text solution.</em></p>`

// Region is the first diagram request found in an answer.
type Region struct {
	Kind   domain.DiagramKind
	Source string
}

func regionPattern(kind domain.DiagramKind) *regexp.Regexp {
	if kind == domain.DiagramPlot {
		return plotRegion
	}
	return figureRegion
}

// Extract finds the diagram to render. A plot region wins over a figure
// region regardless of position; only the first region's body is used.
func Extract(answer string) (Region, bool) {
	if m := plotRegion.FindStringSubmatch(answer); m != nil {
		return Region{Kind: domain.DiagramPlot, Source: strings.TrimSpace(m[1])}, true
	}
	if m := figureRegion.FindStringSubmatch(answer); m != nil {
		return Region{Kind: domain.DiagramFigure, Source: strings.TrimSpace(m[1])}, true
	}
	return Region{}, false
}

// ImageHTML is the markup substituted for a successfully rendered diagram.
func ImageHTML(url string) string {
	return `<div class="math-diagram-container"><img src="` + url + `" alt="Mathematical Diagram" class="math-diagram"></div>`
}

// Replace substitutes every region of kind with replacement. Regions of the
// other kind are left verbatim.
func Replace(answer string, kind domain.DiagramKind, replacement string) string {
	return regionPattern(kind).ReplaceAllLiteralString(answer, replacement)
}

// stripLanguageTag drops a leading "python" line some models emit.
func stripLanguageTag(code string) string {
	if !strings.HasPrefix(code, "python") {
		return code
	}
	if i := strings.IndexByte(code, '\n'); i >= 0 {
		return code[i+1:]
	}
	return ""
}
