package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/alegriaw/chi-monthly-report-analyzer/config"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/insights"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Summary"
	trendSheet   = "Trend"
)

var (
	summaryHeader  = []any{"Category", "Customer", "Prev Score", "Curr Score"}
	categoryHeader = []any{"Customer", "Prev Score", "Curr Score", "Overall Score"}
	trendHeader    = []any{"Month", "Sheet", "Low Score Customers", "Total Customers", "Low Score %", "Exit from Red", "Return to Red", "Net Change", "Estimated"}
)

// SheetName truncates a label to Excel's sheet name limit.
func SheetName(label string) string {
	r := []rune(label)
	if len(r) > config.DefaultMaxSheetName {
		r = r[:config.DefaultMaxSheetName]
	}
	return string(r)
}

// BuildWorkbook lays out the analysis as a new workbook: a flat Summary sheet,
// one sheet per category and, when a series is given, a Trend sheet.
func BuildWorkbook(a *insights.Analysis, trend []insights.SnapshotMetrics) (*excelize.File, error) {
	f := excelize.NewFile()
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DCE6F1"}},
	})
	if err != nil {
		f.Close()
		return nil, err
	}

	// The default sheet becomes Summary so it stays first.
	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		f.Close()
		return nil, err
	}
	rows := make([][]any, 0, a.Metrics.TotalCustomers)
	for _, r := range insights.SummaryRows(a.Classification) {
		rows = append(rows, []any{r.Category.DisplayName(), r.Customer, cellScore(r.PrevScore), cellScore(r.CurrScore)})
	}
	if err := writeTable(f, summarySheet, summaryHeader, rows, headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	for _, cat := range insights.Categories {
		name := SheetName(cat.DisplayName())
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, err
		}
		records := a.Classification.Get(cat)
		if len(records) == 0 {
			if err := writeTable(f, name, []any{"Message"}, [][]any{{"No records"}}, headerStyle); err != nil {
				f.Close()
				return nil, err
			}
			continue
		}
		rows := make([][]any, 0, len(records))
		for _, r := range records {
			rows = append(rows, []any{r.Customer, cellScore(r.Previous), cellScore(r.Current), cellScore(r.Overall)})
		}
		if err := writeTable(f, name, categoryHeader, rows, headerStyle); err != nil {
			f.Close()
			return nil, err
		}
	}

	if len(trend) > 0 {
		if _, err := f.NewSheet(trendSheet); err != nil {
			f.Close()
			return nil, err
		}
		rows := make([][]any, 0, len(trend))
		for _, p := range trend {
			rows = append(rows, []any{p.MonthLabel, p.SheetName, p.LowScoreCustomers, p.TotalCustomers, round1(p.LowScorePercentage), p.ExitFromRed, p.ReturnToRed, p.NetChange, p.Estimated})
		}
		if err := writeTable(f, trendSheet, trendHeader, rows, headerStyle); err != nil {
			f.Close()
			return nil, err
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

// WriteWorkbook streams the report workbook to w.
func WriteWorkbook(w io.Writer, a *insights.Analysis, trend []insights.SnapshotMetrics) error {
	f, err := BuildWorkbook(a, trend)
	if err != nil {
		return fmt.Errorf("report: build workbook: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("report: write workbook: %w", err)
	}
	return nil
}

// SaveWorkbook writes the report workbook to path atomically.
func SaveWorkbook(path string, a *insights.Analysis, trend []insights.SnapshotMetrics) error {
	return writeFileAtomic(path, func(w io.Writer) error { return WriteWorkbook(w, a, trend) })
}

func writeTable(f *excelize.File, sheet string, header []any, rows [][]any, headerStyle int) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return err
		}
	}
	lastCol, _ := excelize.ColumnNumberToName(len(header))
	return f.SetColWidth(sheet, "A", lastCol, 18)
}

// cellScore keeps missing scores as empty cells.
func cellScore(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func round1(v float64) float64 {
	return float64(int64(v*10+sign(v)*0.5)) / 10
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// writeFileAtomic writes through a temp file in the destination directory and
// renames it into place.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".chi-report-*")
	if err != nil {
		return fmt.Errorf("report: create temp: %w", err)
	}
	name := tmp.Name()
	// CreateTemp uses 0600; exported reports are meant to be shared.
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("report: chmod temp: %w", err)
	}
	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("report: close temp: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("report: rename: %w", err)
	}
	return nil
}
