package insights

import (
	"regexp"
	"strings"
)

var securityScoreRe = regexp.MustCompile(`(?i)security score`)

const (
	customerLabel = "customer"
	overallLabel  = "overall score"
)

// ColumnSet holds resolved column indices within a Table. Overall is -1 when
// the sheet has no overall score column.
type ColumnSet struct {
	Customer int `json:"customer"`
	Previous int `json:"previous"`
	Current  int `json:"current"`
	Overall  int `json:"overall"`
}

// FindCustomerColumn returns the first column labelled "customer" (any case), or -1.
func FindCustomerColumn(cols []string) int {
	return findExact(cols, customerLabel)
}

// FindOverallColumn returns the first column labelled "overall score" (any case), or -1.
func FindOverallColumn(cols []string) int {
	return findExact(cols, overallLabel)
}

// FindSecurityColumns returns, in header order, every column whose label
// contains "security score".
func FindSecurityColumns(cols []string) []int {
	var out []int
	for i, c := range cols {
		if securityScoreRe.MatchString(c) {
			out = append(out, i)
		}
	}
	return out
}

// FindSecurityColumn returns the first security score column, or -1.
func FindSecurityColumn(cols []string) int {
	if idx := FindSecurityColumns(cols); len(idx) > 0 {
		return idx[0]
	}
	return -1
}

func findExact(cols []string, want string) int {
	for i, c := range cols {
		if strings.ToLower(strings.TrimSpace(c)) == want {
			return i
		}
	}
	return -1
}
