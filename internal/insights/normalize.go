package insights

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeHeader collapses whitespace runs to one space and trims the ends.
func NormalizeHeader(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// NormalizeHeaders applies NormalizeHeader to every label.
func NormalizeHeaders(labels []string) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = NormalizeHeader(l)
	}
	return out
}

// CoerceNumeric parses each cell as a score; cells that do not parse become nil.
func CoerceNumeric(cells []string) []*float64 {
	out := make([]*float64, len(cells))
	for i, c := range cells {
		if f, ok := ParseScore(c); ok {
			out[i] = &f
		}
	}
	return out
}

// ParseScore parses a plain decimal cell. Surrounding whitespace is ignored;
// separators, currency and percent signs, hex forms, NaN and infinities are
// rejected.
func ParseScore(s string) (float64, bool) {
	clean := strings.TrimSpace(s)
	if clean == "" || strings.TrimLeft(clean, "0123456789+-.eE") != "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
