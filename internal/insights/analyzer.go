package insights

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alegriaw/chi-monthly-report-analyzer/config"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/runtime"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/workbooks"
	"github.com/alegriaw/chi-monthly-report-analyzer/pkg/pagination"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// ErrCursorStale indicates the classification changed since the cursor was issued.
var ErrCursorStale = errors.New("insights: cursor does not match current analysis")

// ErrNoHistory indicates a workbook without any YYYY-MM-DD snapshot sheet.
var ErrNoHistory = errors.New("insights: no dated snapshot sheets")

// CompareParams selects the workbook and how its scores are paired.
type CompareParams struct {
	Path      string   `json:"path" validate:"required,filepath_ext" jsonschema_description:"Absolute path to the CHI report workbook (.xlsx)"`
	Mode      string   `json:"mode,omitempty" validate:"omitempty,oneof=columns sheets" jsonschema_description:"columns (default): compare two Security Score columns on one sheet; sheets: compare two dated snapshot sheets"`
	Sheet     string   `json:"sheet,omitempty" jsonschema_description:"Sheet for columns mode (default Sheet1)"`
	Prev      string   `json:"prev,omitempty" jsonschema_description:"Previous period: a Security Score column name (columns mode) or a sheet name (sheets mode). Defaults are detected."`
	Curr      string   `json:"curr,omitempty" jsonschema_description:"Current period: a Security Score column name (columns mode) or a sheet name (sheets mode). Defaults are detected."`
	Threshold *float64 `json:"threshold,omitempty" validate:"omitempty,gte=0,lte=100" jsonschema_description:"Low score threshold; scores strictly below it are red (default 42)"`
}

// AnalyzeInput requests a classification plus paginated category records.
type AnalyzeInput struct {
	CompareParams
	Category string `json:"category,omitempty" validate:"omitempty,category" jsonschema_description:"Only page this category (exit_from_red, return_to_red, new_comer_to_red, missing_from_chi)"`
	Limit    int    `json:"limit,omitempty" validate:"omitempty,min=1,max=500" jsonschema_description:"Records per category page (default 50)"`
	Cursor   string `json:"cursor,omitempty" validate:"omitempty,cursor" jsonschema_description:"Opaque cursor from a previous page; takes precedence over the other inputs"`
}

// RecordPage is one page of a category's records.
type RecordPage struct {
	Category    Category `json:"category"`
	DisplayName string   `json:"display_name"`
	Total       int      `json:"total"`
	Offset      int      `json:"offset"`
	Records     []Record `json:"records"`
	NextCursor  string   `json:"next_cursor,omitempty"`
}

// AnalyzeOutput is the structured result of analyze_scores.
type AnalyzeOutput struct {
	Path       string          `json:"path"`
	Mode       Mode            `json:"mode"`
	Threshold  float64         `json:"threshold"`
	PrevSource string          `json:"prev_source"`
	CurrSource string          `json:"curr_source"`
	Columns    ColumnNames     `json:"columns"`
	HeaderRow  int             `json:"header_row"`
	Counts     Counts          `json:"counts"`
	LowScore   LowScoreMetrics `json:"low_score"`
	Metrics    Metrics         `json:"metrics"`
	Pages      []RecordPage    `json:"pages"`
}

// TrendInput requests the historical low-score series. The comparison
// parameters choose the classification that supplies the latest month's exact
// exit and return counts.
type TrendInput struct {
	CompareParams
	Since string `json:"since,omitempty" validate:"omitempty,snapshot_date" jsonschema_description:"Ignore snapshot sheets dated before this YYYY-MM-DD"`
}

// TrendOutput is the structured result of historical_trend.
type TrendOutput struct {
	Path    string            `json:"path"`
	Points  []SnapshotMetrics `json:"points"`
	Skipped []string          `json:"skipped_sheets,omitempty"`
	Counts  Counts            `json:"counts"`
}

// Analyzer runs CHI comparisons against workbooks held by the handle manager.
// Config is used as given, so a threshold of 0 means nothing is red; start
// from config.Default or config.Load.
type Analyzer struct {
	Limits runtime.Limits
	Mgr    *workbooks.Manager
	Config config.AnalysisConfig
	// Progress, when set, is called after each sheet is read.
	Progress func(sheet string)
}

func (a *Analyzer) threshold(p CompareParams) float64 {
	if p.Threshold != nil {
		return *p.Threshold
	}
	return a.Config.Threshold
}

func (a *Analyzer) headerOptions() HeaderOptions {
	return HeaderOptions{Keywords: a.Config.HeaderKeywords, End: a.Config.HeaderScanRows}
}

func (a *Analyzer) maxRows() int {
	if a.Limits.MaxRowsPerSheet > 0 {
		return a.Limits.MaxRowsPerSheet
	}
	return config.DefaultMaxRowsPerSheet
}

// Compare opens the workbook (reusing a live handle) and runs the selected
// comparison mode. It returns the analysis and the canonical path.
func (a *Analyzer) Compare(ctx context.Context, p CompareParams) (*Analysis, string, error) {
	id, canonical, err := a.Mgr.OpenByPath(ctx, p.Path)
	if err != nil {
		return nil, "", err
	}
	log := zerolog.Ctx(ctx).With().Str("path", canonical).Logger()

	opts := CompareOptions{Threshold: a.threshold(p), Header: a.headerOptions()}
	var res *Analysis
	err = a.Mgr.WithRead(id, func(f *excelize.File) error {
		switch Mode(strings.ToLower(p.Mode)) {
		case ModeSheets:
			prev, curr, err := SelectComparisonSheets(f.GetSheetList(), p.Prev, p.Curr)
			if err != nil {
				return err
			}
			ps, err := a.readSnapshot(ctx, f, prev)
			if err != nil {
				return err
			}
			cs, err := a.readSnapshot(ctx, f, curr)
			if err != nil {
				return err
			}
			res, err = CompareSheets(ps, cs, opts)
			return err
		default:
			sheet := p.Sheet
			if sheet == "" {
				sheet = a.Config.CurrentSheet
			}
			if sheet == "" {
				sheet = config.DefaultCurrentSheet
			}
			if !workbooks.HasSheet(f, sheet) {
				return fmt.Errorf("%w: sheet %q", ErrUnknownColumn, sheet)
			}
			s, err := a.readSnapshot(ctx, f, sheet)
			if err != nil {
				return err
			}
			opts.Sheet, opts.PrevColumn, opts.CurrColumn = sheet, p.Prev, p.Curr
			res, err = CompareColumns(s.Grid, opts)
			return err
		}
	})
	if err != nil {
		return nil, canonical, err
	}
	log.Debug().
		Str("mode", string(res.Mode)).
		Str("prev", res.PrevSource).
		Str("curr", res.CurrSource).
		Int("records", len(res.Records)).
		Msg("comparison complete")
	return res, canonical, nil
}

func (a *Analyzer) readSnapshot(ctx context.Context, f *excelize.File, sheet string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	grid, err := workbooks.ReadGrid(f, sheet, a.maxRows())
	if err != nil {
		return Snapshot{}, err
	}
	if a.Progress != nil {
		a.Progress(sheet)
	}
	return Snapshot{Name: sheet, Grid: grid}, nil
}

// Analyze runs a comparison and pages its category records. A cursor resumes
// one category where the previous page stopped.
func (a *Analyzer) Analyze(ctx context.Context, in AnalyzeInput) (AnalyzeOutput, error) {
	var out AnalyzeOutput
	limit := in.Limit
	offset := 0
	var only Category
	var expectHash string

	if strings.TrimSpace(in.Cursor) != "" {
		cur, err := pagination.DecodeCursor(in.Cursor)
		if err != nil {
			return out, err
		}
		cat, ok := ParseCategory(cur.Cat)
		if !ok {
			return out, fmt.Errorf("%w: unknown category %q", ErrCursorStale, cur.Cat)
		}
		th := cur.Th
		in.CompareParams = CompareParams{Path: cur.Path, Mode: cur.Mode, Sheet: cur.S, Prev: cur.Prev, Curr: cur.Curr, Threshold: &th}
		only, offset, limit, expectHash = cat, cur.Off, cur.Ps, cur.Ah
	} else if in.Category != "" {
		cat, _ := ParseCategory(in.Category)
		only = cat
	}
	if limit <= 0 {
		limit = a.Limits.DefaultPageSize
	}
	if limit <= 0 {
		limit = config.DefaultPageSize
	}
	if a.Limits.MaxPageSize > 0 && limit > a.Limits.MaxPageSize {
		limit = a.Limits.MaxPageSize
	}

	res, canonical, err := a.Compare(ctx, in.CompareParams)
	if err != nil {
		return out, err
	}

	out = AnalyzeOutput{
		Path:       canonical,
		Mode:       res.Mode,
		Threshold:  res.Threshold,
		PrevSource: res.PrevSource,
		CurrSource: res.CurrSource,
		Columns:    res.Columns,
		HeaderRow:  res.HeaderRow,
		Counts:     res.Classification.Counts(),
		LowScore:   res.LowScore,
		Metrics:    res.Metrics,
	}

	cats := Categories
	if only != "" {
		cats = []Category{only}
	}
	for _, cat := range cats {
		records := res.Classification.Get(cat)
		hash := fingerprint(res, cat)
		if expectHash != "" && expectHash != hash {
			return AnalyzeOutput{}, ErrCursorStale
		}
		start, end, next := pagination.Window(len(records), offset, limit)
		page := RecordPage{
			Category:    cat,
			DisplayName: cat.DisplayName(),
			Total:       len(records),
			Offset:      start,
			Records:     records[start:end],
		}
		if next >= 0 {
			page.NextCursor, err = pagination.EncodeCursor(pagination.Cursor{
				Path: canonical,
				Mode: string(res.Mode),
				S:    columnsSheet(res),
				Prev: sourceName(res, true),
				Curr: sourceName(res, false),
				Th:   res.Threshold,
				Cat:  string(cat),
				Off:  next,
				Ps:   limit,
				Ah:   hash,
			})
			if err != nil {
				return AnalyzeOutput{}, err
			}
		}
		out.Pages = append(out.Pages, page)
	}
	return out, nil
}

// sourceName extracts the resolved column (columns mode) or sheet (sheets
// mode) from a "sheet!column" source label.
func sourceName(res *Analysis, prev bool) string {
	src := res.CurrSource
	if prev {
		src = res.PrevSource
	}
	sheet, col, _ := strings.Cut(src, "!")
	if res.Mode == ModeSheets {
		return sheet
	}
	return col
}

func columnsSheet(res *Analysis) string {
	if res.Mode != ModeColumns {
		return ""
	}
	sheet, _, _ := strings.Cut(res.CurrSource, "!")
	return sheet
}

func fingerprint(res *Analysis, cat Category) string {
	records := res.Classification.Get(cat)
	parts := make([]string, 0, len(records)+4)
	parts = append(parts, res.PrevSource, res.CurrSource, strconv.FormatFloat(res.Threshold, 'f', -1, 64), string(cat))
	for _, r := range records {
		parts = append(parts, r.Customer)
	}
	return pagination.Fingerprint(parts...)
}

// Trend builds the historical series from every dated snapshot sheet and
// fills month-over-month changes from the selected comparison.
func (a *Analyzer) Trend(ctx context.Context, in TrendInput) (TrendOutput, error) {
	var out TrendOutput
	res, canonical, err := a.Compare(ctx, in.CompareParams)
	if err != nil {
		return out, err
	}
	id, _, err := a.Mgr.OpenByPath(ctx, canonical)
	if err != nil {
		return out, err
	}

	var since time.Time
	if in.Since != "" {
		var ok bool
		if since, ok = ParseSnapshotDate(in.Since); !ok {
			return out, fmt.Errorf("insights: since %q is not a YYYY-MM-DD date", in.Since)
		}
	}

	keep := func(name string) bool {
		d, ok := ParseSnapshotDate(name)
		if !ok {
			out.Skipped = append(out.Skipped, name)
		}
		return ok && !d.Before(since)
	}
	var snapshots []Snapshot
	err = a.Mgr.WithRead(id, func(f *excelize.File) error {
		sheets, err := workbooks.LoadSheets(f, a.maxRows(), keep, a.Progress)
		for _, s := range sheets {
			snapshots = append(snapshots, Snapshot{Name: s.Name, Grid: s.Grid})
		}
		return err
	})
	if err != nil {
		return out, err
	}
	if len(snapshots) == 0 {
		return out, ErrNoHistory
	}

	series := ExtractHistoricalData(snapshots, res.Threshold, a.headerOptions())
	out.Path = canonical
	out.Points = CalculateMonthlyChanges(series, res.Classification)
	out.Counts = res.Classification.Counts()
	zerolog.Ctx(ctx).Debug().Int("points", len(out.Points)).Strs("skipped", out.Skipped).Msg("trend extracted")
	return out, nil
}
