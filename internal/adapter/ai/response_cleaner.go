package ai

import "regexp"

var (
	leadingFence  = regexp.MustCompile("^```(?:html|markdown)?\\s*")
	trailingFence = regexp.MustCompile("\\s*```(\n?)\\z")
	strayFence    = regexp.MustCompile("```\\w*\\s*|\\s*```")
)

// CleanResponse removes code fence artifacts models wrap HTML answers in.
// Nothing else is trimmed; a single final newline after a closing fence is
// kept.
func CleanResponse(response string) string {
	s := leadingFence.ReplaceAllString(response, "")
	s = trailingFence.ReplaceAllString(s, "${1}")
	return strayFence.ReplaceAllString(s, "")
}
