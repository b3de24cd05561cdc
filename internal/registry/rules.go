package registry

import (
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/insights"
	"github.com/alegriaw/chi-monthly-report-analyzer/pkg/validation"
)

// The category rule needs the domain's category names, which pkg/validation
// cannot import.
func init() {
	if err := validation.RegisterStringRule("category", func(s string) bool {
		_, ok := insights.ParseCategory(s)
		return ok
	}); err != nil {
		panic(err)
	}
}
