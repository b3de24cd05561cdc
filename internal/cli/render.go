package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/alegriaw/chi-monthly-report-analyzer/internal/assistant"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/insights"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/report"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"
)

var (
	colorTitle = lipgloss.Color("#8B5CF6")
	colorGood  = lipgloss.Color("#22C55E")
	colorBad   = lipgloss.Color("#F43F5E")
	colorWarn  = lipgloss.Color("#F97316")
	colorDim   = lipgloss.Color("#94A3B8")
)

// styles binds the palette to one output so color is dropped for pipes.
type styles struct {
	title, heading, label, good, bad, warn, dim lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:   r.NewStyle().Bold(true).Foreground(colorTitle),
		heading: r.NewStyle().Bold(true).Underline(true),
		label:   r.NewStyle().Foreground(colorDim).Width(34),
		good:    r.NewStyle().Foreground(colorGood),
		bad:     r.NewStyle().Foreground(colorBad),
		warn:    r.NewStyle().Foreground(colorWarn),
		dim:     r.NewStyle().Foreground(colorDim),
	}
}

// categoryStyle colors a category by whether it is good news.
func (s styles) categoryStyle(cat insights.Category) lipgloss.Style {
	switch cat {
	case insights.ExitFromRed:
		return s.good
	case insights.MissingFromCHI:
		return s.warn
	}
	return s.bad
}

func (s styles) riskStyle(level insights.RiskLevel) lipgloss.Style {
	switch level {
	case insights.RiskHigh:
		return s.bad
	case insights.RiskMedium:
		return s.warn
	}
	return s.good
}

// renderAnalysis prints counts, low-score metrics, insights and, when
// records is set, each category's customers.
func renderAnalysis(w io.Writer, a *insights.Analysis, records bool) {
	s := newStyles(w)
	m := a.Metrics
	fmt.Fprintln(w, s.title.Render("CHI Low Security Score Analysis"))
	fmt.Fprintln(w, s.dim.Render(fmt.Sprintf("%s -> %s, threshold %s", a.PrevSource, a.CurrSource, insights.FormatScore(&a.Threshold))))
	fmt.Fprintln(w)

	fmt.Fprintln(w, s.heading.Render("Categories"))
	for _, cat := range insights.Categories {
		n := m.Counts.Of(cat)
		fmt.Fprintf(w, "%s%s (%.1f%%)\n", s.label.Render(cat.DisplayName()), s.categoryStyle(cat).Render(fmt.Sprint(n)), m.Percentages[cat])
	}
	fmt.Fprintf(w, "%s%d\n\n", s.label.Render("Total customers"), m.TotalCustomers)

	low := a.LowScore
	fmt.Fprintln(w, s.heading.Render("Low Score Trend"))
	fmt.Fprintf(w, "%s%d\n", s.label.Render("Previous low-score customers"), low.PrevLowTotal)
	fmt.Fprintf(w, "%s%d\n", s.label.Render("Current low-score customers"), low.CurrLowTotal)
	improvement := s.good
	if low.ImprovementCount < 0 {
		improvement = s.bad
	}
	fmt.Fprintf(w, "%s%s\n\n", s.label.Render("Net improvement"), improvement.Render(fmt.Sprintf("%+d (%.1f%%)", low.ImprovementCount, low.ImprovementPercentage)))

	fmt.Fprintln(w, s.heading.Render("Key Insights"))
	for _, line := range report.KeyInsights(a) {
		fmt.Fprintf(w, "  - %s\n", line)
	}
	if m.TotalCustomers > 0 {
		label, detail := report.RiskAssessment(m)
		fmt.Fprintf(w, "\n%s %s\n", s.riskStyle(m.RiskLevel).Render(label+":"), detail)
	}

	if !records {
		return
	}
	for _, cat := range insights.Categories {
		list := a.Classification.Get(cat)
		fmt.Fprintf(w, "\n%s\n", s.categoryStyle(cat).Bold(true).Render(fmt.Sprintf("%s (%d)", cat.DisplayName(), len(list))))
		if len(list) == 0 {
			fmt.Fprintln(w, s.dim.Render("  No records"))
			continue
		}
		for _, r := range list {
			fmt.Fprintf(w, "  %-30s %8s -> %-8s\n", r.Customer, insights.FormatScore(r.Previous), insights.FormatScore(r.Current))
		}
	}
}

// renderTrend prints the historical series as an aligned table.
func renderTrend(w io.Writer, out insights.TrendOutput) {
	s := newStyles(w)
	fmt.Fprintln(w, s.title.Render("Historical Low Score Trend"))
	fmt.Fprintf(w, "%-10s %8s %8s %8s %6s %6s %6s\n", "Month", "Low", "Total", "Low %", "Exit", "Return", "Net")
	fmt.Fprintln(w, strings.Repeat("─", 60))
	estimated := false
	for _, p := range out.Points {
		mark := " "
		if p.Estimated {
			mark, estimated = "*", true
		}
		fmt.Fprintf(w, "%-10s %8d %8d %7.1f%% %5d%s %5d%s %+6d\n", p.MonthLabel, p.LowScoreCustomers, p.TotalCustomers, p.LowScorePercentage, p.ExitFromRed, mark, p.ReturnToRed, mark, p.NetChange)
	}
	if estimated {
		fmt.Fprintln(w, s.dim.Render("* estimated from the net change"))
	}
	if len(out.Skipped) > 0 {
		fmt.Fprintln(w, s.dim.Render("skipped sheets: "+strings.Join(out.Skipped, ", ")))
	}
}

func renderStatus(w io.Writer, st assistant.Status) {
	s := newStyles(w)
	state := s.bad.Render("unavailable")
	if st.Available {
		state = s.good.Render("available")
	}
	fmt.Fprintf(w, "%s%s\n", s.label.Render("Provider"), st.Provider)
	fmt.Fprintf(w, "%s%s\n", s.label.Render("Status"), state)
	fmt.Fprintf(w, "%s%s\n", s.label.Render("Details"), st.Message)
	if st.Version != "" {
		fmt.Fprintf(w, "%s%s\n", s.label.Render("Version"), st.Version)
	}
}

// renderMarkdown renders md for a terminal, or returns it unchanged when w
// is not one.
func renderMarkdown(w io.Writer, md string) string {
	if !isTerminal(w) {
		return md
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

// newSheetProgress returns a spinner-style bar counting sheets read, or nil
// when w is not a terminal.
func newSheetProgress(w io.Writer) *progressbar.ProgressBar {
	if !isTerminal(w) {
		return nil
	}
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("reading sheets"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}
