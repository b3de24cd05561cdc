package workbooks

import (
	"fmt"

	"github.com/alegriaw/chi-monthly-report-analyzer/config"
	"github.com/xuri/excelize/v2"
)

// Sheet is the raw cell grid of one worksheet, in workbook order.
type Sheet struct {
	Name string
	Grid [][]string
}

// ReadGrid streams a worksheet into a ragged grid of raw cell values. Numbers
// are returned unformatted so scores parse independently of number formats.
// At most maxRows rows are read; maxRows <= 0 uses the config default.
func ReadGrid(f *excelize.File, sheet string, maxRows int) ([][]string, error) {
	if maxRows <= 0 {
		maxRows = config.DefaultMaxRowsPerSheet
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	grid := make([][]string, 0, 64)
	for rows.Next() {
		if len(grid) >= maxRows {
			break
		}
		cols, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("workbooks: read %s row %d: %w", sheet, len(grid)+1, err)
		}
		grid = append(grid, trimTrailingEmpties(cols))
	}
	return grid, nil
}

// LoadSheets reads the worksheets accepted by keep (all when keep is nil) in
// workbook order. The progress callback, when set, is invoked after each
// sheet with its name.
func LoadSheets(f *excelize.File, maxRows int, keep func(name string) bool, progress func(name string)) ([]Sheet, error) {
	var out []Sheet
	for _, name := range f.GetSheetList() {
		if keep != nil && !keep(name) {
			continue
		}
		grid, err := ReadGrid(f, name, maxRows)
		if err != nil {
			return nil, err
		}
		out = append(out, Sheet{Name: name, Grid: grid})
		if progress != nil {
			progress(name)
		}
	}
	return out, nil
}

// HasSheet reports whether the workbook contains the named sheet.
func HasSheet(f *excelize.File, name string) bool {
	idx, err := f.GetSheetIndex(name)
	return err == nil && idx >= 0
}

func trimTrailingEmpties(row []string) []string {
	end := len(row)
	for end > 0 && row[end-1] == "" {
		end--
	}
	return row[:end]
}
