package assistant

import (
	"regexp"
	"strings"
)

var (
	ansiEscape   = regexp.MustCompile(`\x1B(?:[@-Z\\-_]|\[[0-?]*[ -/]*[@-~])`)
	bareSGR      = regexp.MustCompile(`\[[\d;]+m`)
	blankRunsExp = regexp.MustCompile(`\n\s*\n\s*\n`)
)

// CleanOutput strips terminal escape sequences and collapses runs of blank
// lines from CLI output.
func CleanOutput(s string) string {
	s = ansiEscape.ReplaceAllString(s, "")
	s = bareSGR.ReplaceAllString(s, "")
	s = blankRunsExp.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
