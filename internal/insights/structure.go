package insights

import (
	"context"

	"github.com/xuri/excelize/v2"
)

// StructureInput names the workbook to inspect.
type StructureInput struct {
	Path string `json:"path" validate:"required,filepath_ext" jsonschema_description:"Absolute path to the CHI report workbook (.xlsx)"`
}

// SheetInfo describes one sheet without returning cell data.
type SheetInfo struct {
	Name            string   `json:"name"`
	Snapshot        bool     `json:"snapshot" jsonschema_description:"True when the sheet name is a YYYY-MM-DD snapshot date"`
	Rows            int      `json:"rows" jsonschema_description:"Data rows below the detected header"`
	HeaderRow       int      `json:"header_row" jsonschema_description:"0-based grid row of the detected header"`
	Columns         []string `json:"columns,omitempty"`
	SecurityColumns []string `json:"security_columns,omitempty"`
	HasCustomer     bool     `json:"has_customer"`
	HasOverall      bool     `json:"has_overall"`
}

// StructureOutput summarizes a workbook for choosing a comparison mode.
type StructureOutput struct {
	Path             string      `json:"path"`
	Sheets           []SheetInfo `json:"sheets"`
	CanCompareSheets bool        `json:"can_compare_sheets" jsonschema_description:"True when mode=sheets has at least two candidate sheets"`
	DefaultPrevSheet string      `json:"default_prev_sheet,omitempty"`
	DefaultCurrSheet string      `json:"default_curr_sheet,omitempty"`
}

// Structure detects headers and score columns on every sheet.
func (a *Analyzer) Structure(ctx context.Context, in StructureInput) (StructureOutput, error) {
	var out StructureOutput
	id, canonical, err := a.Mgr.OpenByPath(ctx, in.Path)
	if err != nil {
		return out, err
	}
	out.Path = canonical
	err = a.Mgr.WithRead(id, func(f *excelize.File) error {
		names := f.GetSheetList()
		for _, name := range names {
			s, err := a.readSnapshot(ctx, f, name)
			if err != nil {
				return err
			}
			t, idx := DetectHeader(s.Grid, a.headerOptions())
			info := SheetInfo{
				Name:        name,
				Rows:        t.Len(),
				HeaderRow:   idx,
				Columns:     t.Columns,
				HasCustomer: FindCustomerColumn(t.Columns) >= 0,
				HasOverall:  FindOverallColumn(t.Columns) >= 0,
			}
			_, info.Snapshot = ParseSnapshotDate(name)
			for _, c := range FindSecurityColumns(t.Columns) {
				info.SecurityColumns = append(info.SecurityColumns, t.Columns[c])
			}
			out.Sheets = append(out.Sheets, info)
		}
		if prev, curr, err := SelectComparisonSheets(names, "", ""); err == nil {
			out.CanCompareSheets = true
			out.DefaultPrevSheet, out.DefaultCurrSheet = prev, curr
		}
		return nil
	})
	return out, err
}
