package docqa

import (
	"regexp"
	"strings"
)

var (
	leadingFence  = regexp.MustCompile("^\\s*```[A-Za-z0-9_+-]*[ \\t]*\\r?\\n?")
	trailingFence = regexp.MustCompile("\\r?\\n?```\\s*$")
)

// CleanAnswer strips a leading code fence (with optional language tag such
// as ```json) and a trailing fence from a model answer, then trims it.
func CleanAnswer(s string) string {
	s = leadingFence.ReplaceAllString(s, "")
	s = trailingFence.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
