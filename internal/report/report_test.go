package report

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/alegriaw/chi-monthly-report-analyzer/internal/insights"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func f64(v float64) *float64 { return &v }

func sampleAnalysis(t *testing.T) *insights.Analysis {
	t.Helper()
	a, err := insights.CompareColumns([][]string{
		{"Customer", "Security Score (Oct)", "Security Score (Sept)", "Overall Score"},
		{"rec1", "50", "30", "50"},
		{"rec2", "30", "50", "30"},
		{"rec3", "20", "", "20"},
		{"rec4", "45", "40", ""},
	}, insights.CompareOptions{Threshold: 42})
	require.NoError(t, err)
	return a
}

func TestSheetName(t *testing.T) {
	require.Equal(t, "Exit from Red", SheetName("Exit from Red"))
	require.Len(t, []rune(SheetName(strings.Repeat("x", 40))), 31)
}

func TestWriteWorkbook_Layout(t *testing.T) {
	a := sampleAnalysis(t)
	// Empty one category to exercise the placeholder sheet.
	a.Classification.NewComerToRed = nil
	trend := []insights.SnapshotMetrics{
		{MonthLabel: "2025-09", SheetName: "2025-09-08", LowScoreCustomers: 2, TotalCustomers: 3, LowScorePercentage: 66.666},
		{MonthLabel: "2025-10", SheetName: "2025-10-06", LowScoreCustomers: 2, TotalCustomers: 4, LowScorePercentage: 50, ExitFromRed: 2, ReturnToRed: 1},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, a, trend))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, []string{"Summary", "Exit from Red", "Return Back to Red", "New Comer to Red", "Missing from CHI", "Trend"}, f.GetSheetList())

	rows, err := f.GetRows("Summary")
	require.NoError(t, err)
	require.Equal(t, []string{"Category", "Customer", "Prev Score", "Curr Score"}, rows[0])
	require.Equal(t, []string{"Exit from Red", "rec1", "30", "50"}, rows[1])
	require.Len(t, rows, 1+2+1+1)

	rows, err = f.GetRows("New Comer to Red")
	require.NoError(t, err)
	require.Equal(t, [][]string{{"Message"}, {"No records"}}, rows)

	rows, err = f.GetRows("Missing from CHI")
	require.NoError(t, err)
	require.Equal(t, []string{"rec4", "40", "45"}, rows[1])

	rows, err = f.GetRows("Trend")
	require.NoError(t, err)
	require.Equal(t, "66.7", rows[1][4])
}

func TestSaveWorkbookAndMarkdown(t *testing.T) {
	dir := t.TempDir()
	a := sampleAnalysis(t)

	xlsx := filepath.Join(dir, "chi_report.xlsx")
	require.NoError(t, SaveWorkbook(xlsx, a, nil))
	f, err := excelize.OpenFile(xlsx)
	require.NoError(t, err)
	require.NotContains(t, f.GetSheetList(), "Trend")
	require.NoError(t, f.Close())

	md := filepath.Join(dir, "chi_report.md")
	require.NoError(t, SaveMarkdown(md, a, MarkdownOptions{}))
	matches, err := filepath.Glob(filepath.Join(dir, ".chi-report-*"))
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestSavedReportsAreWorldReadable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX permission bits")
	}
	dir := t.TempDir()
	a := sampleAnalysis(t)

	xlsx := filepath.Join(dir, "chi_report.xlsx")
	md := filepath.Join(dir, "chi_report.md")
	require.NoError(t, SaveWorkbook(xlsx, a, nil))
	require.NoError(t, SaveMarkdown(md, a, MarkdownOptions{}))
	for _, p := range []string{xlsx, md} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o644), info.Mode().Perm(), p)
	}
}

func TestStandardSummary(t *testing.T) {
	improved := StandardSummary(
		insights.Counts{ExitFromRed: 5, ReturnToRed: 2, NewComerToRed: 3},
		insights.LowScoreMetrics{PrevLowTotal: 10, CurrLowTotal: 8, ImprovementCount: 2, ImprovementPercentage: 20},
	)
	require.True(t, strings.HasPrefix(improved, "This month's analysis reveals 3 new customers entering the low security score category and 2 customers returning to the red zone"))
	require.Contains(t, improved, "We congratulate the 5 customers")
	require.Contains(t, improved, "shows an improvement with 8 customers currently in the low-score category compared to 10 previously, reflecting a 20% improvement.")

	worse := StandardSummary(insights.Counts{}, insights.LowScoreMetrics{PrevLowTotal: 4, CurrLowTotal: 6, ImprovementCount: -2, ImprovementPercentage: -50})
	require.Contains(t, worse, "shows a change with 6 customers currently in the low-score category compared to 4 previously, indicating areas for continued focus.")
}

func TestInsightsAndRisk(t *testing.T) {
	require.Equal(t, "Positive Trend: 2 fewer low-score customers", TrendInsight(insights.LowScoreMetrics{ImprovementCount: 2}))
	require.Equal(t, "Concerning Trend: 3 more low-score customers", TrendInsight(insights.LowScoreMetrics{ImprovementCount: -3}))
	require.Equal(t, "Stable Trend: No change in low-score customer count", TrendInsight(insights.LowScoreMetrics{}))
	require.Equal(t, "Opportunity: Focus on helping customers exit the red zone", ExitInsight(insights.Counts{}))

	label, _ := RiskAssessment(insights.Metrics{RiskLevel: insights.RiskHigh})
	require.Equal(t, "High Risk", label)
	label, detail := RiskAssessment(insights.Metrics{RiskLevel: insights.RiskLow})
	require.Equal(t, "Low Risk", label)
	require.Equal(t, "Situation under control", detail)
}

func TestMarkdown(t *testing.T) {
	a := sampleAnalysis(t)
	a.Classification.MissingFromCHI = append(a.Classification.MissingFromCHI, insights.Record{Customer: "a|b", Previous: f64(41.5)})
	md := Markdown(a, MarkdownOptions{
		Trend:       []insights.SnapshotMetrics{{MonthLabel: "2025-10", LowScoreCustomers: 2, TotalCustomers: 4, LowScorePercentage: 50, NetChange: -1, Estimated: true}},
		AISummary:   "Great month.",
		Chat:        []ChatEntry{{Question: "Why?", Answer: "Because."}},
		GeneratedAt: time.Date(2025, 10, 7, 9, 30, 0, 0, time.UTC),
	})

	require.Contains(t, md, "_Generated 2025-10-07 09:30_")
	require.Contains(t, md, "- Total customers analyzed: 5")
	require.Contains(t, md, "- Low Score Trend: 2 → 2 customers (<42)")
	require.Contains(t, md, "- Stable Trend: No change in total low-score customers")
	require.Contains(t, md, "| rec1 | 30 | 50 | 50 |")
	require.Contains(t, md, `| a\|b | 41.5 |  |  |`)
	require.Contains(t, md, "| 2025-10 | 2 | 4 | 50.0% | 0* | 0* | -1 |")
	require.Contains(t, md, "## AI Summary\n\nGreat month.")
	require.Contains(t, md, "**Q1:** Why?\n\nBecause.")
	require.Contains(t, md, "This month's analysis reveals")
}
