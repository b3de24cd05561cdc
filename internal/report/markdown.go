package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/alegriaw/chi-monthly-report-analyzer/internal/insights"
)

// ChatEntry is one assistant exchange appended to a report.
type ChatEntry struct {
	Question string
	Answer   string
}

// MarkdownOptions carries the optional parts of a markdown report.
type MarkdownOptions struct {
	Trend       []insights.SnapshotMetrics
	AISummary   string
	Chat        []ChatEntry
	GeneratedAt time.Time
}

// KeyInsights lists the bullet findings shown with every analysis.
func KeyInsights(a *insights.Analysis) []string {
	m := a.Metrics
	n := m.Counts
	if m.TotalCustomers == 0 {
		return []string{"No customer data found for analysis"}
	}
	low := a.LowScore
	out := []string{
		fmt.Sprintf("Total customers analyzed: %d", m.TotalCustomers),
		fmt.Sprintf("Largest category: %s (%d customers, %.1f%%)", m.LargestCategory.DisplayName(), n.Of(m.LargestCategory), m.LargestCategoryShare),
		fmt.Sprintf("Low Score Trend: %d → %d customers (<%s)", low.PrevLowTotal, low.CurrLowTotal, insights.FormatScore(&a.Threshold)),
	}
	switch {
	case low.ImprovementCount > 0:
		out = append(out, fmt.Sprintf("Overall Improvement: %d fewer low-score customers (%.1f%% improvement)", low.ImprovementCount, low.ImprovementPercentage))
	case low.ImprovementCount < 0:
		out = append(out, fmt.Sprintf("Overall Concern: %d more low-score customers (%.1f%% increase)", -low.ImprovementCount, -low.ImprovementPercentage))
	default:
		out = append(out, "Stable Trend: No change in total low-score customers")
	}
	if n.ExitFromRed > 0 {
		out = append(out, fmt.Sprintf("Positive trend: %d customers improved (exited red zone)", n.ExitFromRed))
	}
	if n.ReturnToRed > 0 {
		out = append(out, fmt.Sprintf("Attention needed: %d customers deteriorated (returned to red zone)", n.ReturnToRed))
	}
	if n.NewComerToRed > 0 {
		out = append(out, fmt.Sprintf("New risks: %d new customers entered red zone", n.NewComerToRed))
	}
	if n.MissingFromCHI > 0 {
		out = append(out, fmt.Sprintf("Data gaps: %d customers missing from CHI system", n.MissingFromCHI))
	}
	return out
}

// RiskAssessment returns the risk label and its explanation.
func RiskAssessment(m insights.Metrics) (string, string) {
	switch m.RiskLevel {
	case insights.RiskHigh:
		return "High Risk", "Significant number of customers in red zone"
	case insights.RiskMedium:
		return "Medium Risk", "Moderate attention required"
	}
	return "Low Risk", "Situation under control"
}

// Markdown renders the full analysis report.
func Markdown(a *insights.Analysis, opts MarkdownOptions) string {
	var b strings.Builder
	b.WriteString("# CHI Low Security Score Report\n\n")
	if !opts.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "_Generated %s_\n\n", opts.GeneratedAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(&b, "Comparing **%s** (previous) with **%s** (current), threshold %s.\n\n", a.PrevSource, a.CurrSource, insights.FormatScore(&a.Threshold))

	b.WriteString("## Key Insights\n\n")
	for _, line := range KeyInsights(a) {
		fmt.Fprintf(&b, "- %s\n", line)
	}
	if a.Metrics.TotalCustomers > 0 {
		label, detail := RiskAssessment(a.Metrics)
		fmt.Fprintf(&b, "\n## Risk Assessment\n\n**%s**: %s (risk score %.2f)\n", label, detail, a.Metrics.RiskScore)
		if a.Metrics.HasImprovementRatio {
			fmt.Fprintf(&b, "\nImprovement ratio: %.2f\n", a.Metrics.ImprovementRatio)
		}
	}

	b.WriteString("\n## Categories\n\n| Category | Customers | Share |\n|---|---:|---:|\n")
	for _, cat := range insights.Categories {
		fmt.Fprintf(&b, "| %s | %d | %.1f%% |\n", cat.DisplayName(), a.Metrics.Counts.Of(cat), a.Metrics.Percentages[cat])
	}
	for _, cat := range insights.Categories {
		fmt.Fprintf(&b, "\n### %s\n\n", cat.DisplayName())
		records := a.Classification.Get(cat)
		if len(records) == 0 {
			b.WriteString("No records\n")
			continue
		}
		b.WriteString("| Customer | Prev Score | Curr Score | Overall Score |\n|---|---:|---:|---:|\n")
		for _, r := range records {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", escapeCell(r.Customer), insights.FormatScore(r.Previous), insights.FormatScore(r.Current), insights.FormatScore(r.Overall))
		}
	}

	if len(opts.Trend) > 0 {
		b.WriteString("\n## Historical Trend\n\n| Month | Low Score Customers | Total | Low Score % | Exit | Return | Net Change |\n|---|---:|---:|---:|---:|---:|---:|\n")
		for _, p := range opts.Trend {
			est := ""
			if p.Estimated {
				est = "*"
			}
			fmt.Fprintf(&b, "| %s | %d | %d | %.1f%% | %d%s | %d%s | %+d |\n", p.MonthLabel, p.LowScoreCustomers, p.TotalCustomers, p.LowScorePercentage, p.ExitFromRed, est, p.ReturnToRed, est, p.NetChange)
		}
		b.WriteString("\n\\* estimated from the net change\n")
	}

	b.WriteString("\n## Monthly Summary\n\n")
	b.WriteString(StandardSummary(a.Classification.Counts(), a.LowScore))
	b.WriteString("\n")
	if s := strings.TrimSpace(opts.AISummary); s != "" {
		b.WriteString("\n## AI Summary\n\n")
		b.WriteString(s)
		b.WriteString("\n")
	}
	if len(opts.Chat) > 0 {
		b.WriteString("\n## Assistant Conversation\n")
		for i, e := range opts.Chat {
			fmt.Fprintf(&b, "\n**Q%d:** %s\n\n%s\n", i+1, e.Question, e.Answer)
		}
	}
	return b.String()
}

// WriteMarkdown writes the markdown report to w.
func WriteMarkdown(w io.Writer, a *insights.Analysis, opts MarkdownOptions) error {
	_, err := io.WriteString(w, Markdown(a, opts))
	return err
}

// SaveMarkdown writes the markdown report to path atomically.
func SaveMarkdown(path string, a *insights.Analysis, opts MarkdownOptions) error {
	return writeFileAtomic(path, func(w io.Writer) error { return WriteMarkdown(w, a, opts) })
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
