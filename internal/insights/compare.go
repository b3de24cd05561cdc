package insights

import (
	"fmt"
	"strings"

	"github.com/alegriaw/chi-monthly-report-analyzer/config"
)

// Mode selects how the previous and current scores are paired.
type Mode string

const (
	// ModeColumns compares two security score columns on one sheet.
	ModeColumns Mode = "columns"
	// ModeSheets compares two dated sheets merged on the customer column.
	ModeSheets Mode = "sheets"
)

// CompareOptions tunes a comparison. Empty column or sheet names pick defaults.
type CompareOptions struct {
	Threshold  float64
	Header     HeaderOptions
	Sheet      string
	PrevColumn string
	CurrColumn string
}

// ColumnNames records which labels were used for each role.
type ColumnNames struct {
	Customer string `json:"customer"`
	Previous string `json:"previous"`
	Current  string `json:"current"`
	Overall  string `json:"overall,omitempty"`
}

// Analysis is the full result of one comparison run.
type Analysis struct {
	Mode           Mode            `json:"mode"`
	Threshold      float64         `json:"threshold"`
	PrevSource     string          `json:"prev_source"`
	CurrSource     string          `json:"curr_source"`
	Columns        ColumnNames     `json:"columns"`
	HeaderRow      int             `json:"header_row"`
	Records        []Record        `json:"-"`
	Classification Classification  `json:"classification"`
	LowScore       LowScoreMetrics `json:"low_score"`
	Metrics        Metrics         `json:"metrics"`
}

// CompareColumns runs column mode over a raw sheet grid. By default the first
// security score column is current and the second is previous.
func CompareColumns(grid [][]string, opts CompareOptions) (*Analysis, error) {
	sheet := opts.Sheet
	if sheet == "" {
		sheet = config.DefaultCurrentSheet
	}
	t, hdr := DetectHeader(grid, opts.Header)

	cust := FindCustomerColumn(t.Columns)
	if cust < 0 {
		return nil, &MissingColumnError{Sheet: sheet, Column: "Customer"}
	}
	sec := FindSecurityColumns(t.Columns)
	if len(sec) < 2 {
		return nil, &MissingColumnError{Sheet: sheet, Column: "Security Score", Need: 2, Found: len(sec)}
	}

	prev, err := pickColumn(t.Columns, sec, opts.PrevColumn, sec[1])
	if err != nil {
		return nil, err
	}
	curr, err := pickColumn(t.Columns, sec, opts.CurrColumn, sec[0])
	if err != nil {
		return nil, err
	}

	cols := ColumnSet{Customer: cust, Previous: prev, Current: curr, Overall: FindOverallColumn(t.Columns)}
	a := finish(ModeColumns, RecordsFromTable(t, cols), opts.Threshold)
	a.PrevSource = sheet + "!" + t.Columns[prev]
	a.CurrSource = sheet + "!" + t.Columns[curr]
	a.HeaderRow = hdr
	a.Columns = namesFor(t, cols)
	return a, nil
}

// pickColumn resolves a caller-named security column or returns def.
func pickColumn(cols []string, candidates []int, name string, def int) (int, error) {
	name = NormalizeHeader(name)
	if name == "" {
		return def, nil
	}
	for _, i := range candidates {
		if strings.EqualFold(cols[i], name) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: security score column %q", ErrUnknownColumn, name)
}

// CompareSheets runs sheet mode: both sheets are header-detected and outer
// merged on the customer value. Previous-sheet customers keep their order and
// current-only customers follow. A customer listed m times in the previous
// sheet and n times in the current one yields m*n records; blank customers are
// never matched. Scores come from each sheet's first security
// score column; overall presence comes from the current sheet.
func CompareSheets(prev, curr Snapshot, opts CompareOptions) (*Analysis, error) {
	pt, _ := DetectHeader(prev.Grid, opts.Header)
	ct, hdr := DetectHeader(curr.Grid, opts.Header)

	pSec := FindSecurityColumn(pt.Columns)
	if pSec < 0 {
		return nil, &MissingColumnError{Sheet: prev.Name, Column: "Security Score"}
	}
	cSec := FindSecurityColumn(ct.Columns)
	if cSec < 0 {
		return nil, &MissingColumnError{Sheet: curr.Name, Column: "Security Score"}
	}
	pCust := FindCustomerColumn(pt.Columns)
	cCust := FindCustomerColumn(ct.Columns)
	if pCust < 0 && cCust < 0 {
		return nil, &MissingColumnError{Sheet: curr.Name, Column: "Customer"}
	}
	cOverall := FindOverallColumn(ct.Columns)

	prevScores := CoerceNumeric(pt.Column(pSec))
	currScores := CoerceNumeric(ct.Column(cSec))
	var currOverall []*float64
	if cOverall >= 0 {
		currOverall = CoerceNumeric(ct.Column(cOverall))
	}

	currOf := func(i int) Record {
		r := Record{Current: currScores[i]}
		if currOverall != nil {
			r.Overall = currOverall[i]
		}
		return r
	}

	currByCustomer := make(map[string][]int)
	for i := range ct.Rows {
		if name := strings.TrimSpace(ct.Cell(i, cCust)); name != "" {
			currByCustomer[name] = append(currByCustomer[name], i)
		}
	}

	records := make([]Record, 0, pt.Len()+ct.Len())
	matched := make(map[string]bool)
	for i := range pt.Rows {
		name := strings.TrimSpace(pt.Cell(i, pCust))
		pairs := currByCustomer[name]
		if name == "" || len(pairs) == 0 {
			records = append(records, Record{Row: len(records), Customer: name, Previous: prevScores[i]})
			continue
		}
		matched[name] = true
		// A customer repeated on either side yields one record per pair.
		for _, j := range pairs {
			r := currOf(j)
			r.Row, r.Customer, r.Previous = len(records), name, prevScores[i]
			records = append(records, r)
		}
	}

	for i := range ct.Rows {
		name := strings.TrimSpace(ct.Cell(i, cCust))
		if name != "" && matched[name] {
			continue
		}
		r := currOf(i)
		r.Row, r.Customer = len(records), name
		records = append(records, r)
	}

	a := finish(ModeSheets, records, opts.Threshold)
	a.PrevSource = prev.Name + "!" + pt.Columns[pSec]
	a.CurrSource = curr.Name + "!" + ct.Columns[cSec]
	a.HeaderRow = hdr
	a.Columns = ColumnNames{Customer: "Customer", Previous: pt.Columns[pSec], Current: ct.Columns[cSec]}
	if cOverall >= 0 {
		a.Columns.Overall = ct.Columns[cOverall]
	}
	return a, nil
}

// SelectComparisonSheets picks the previous and current sheet names. Sheet1
// is never a candidate; defaults are the first two remaining sheets.
func SelectComparisonSheets(names []string, prev, curr string) (string, string, error) {
	var candidates []string
	for _, n := range names {
		if n != config.DefaultCurrentSheet {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) < 2 {
		return "", "", ErrNotEnoughSheets
	}
	has := func(n string) bool {
		for _, c := range candidates {
			if c == n {
				return true
			}
		}
		return false
	}
	if prev == "" {
		prev = candidates[0]
	}
	if curr == "" {
		curr = candidates[1]
	}
	for _, n := range []string{prev, curr} {
		if !has(n) {
			return "", "", fmt.Errorf("%w: sheet %q", ErrUnknownColumn, n)
		}
	}
	return prev, curr, nil
}

func finish(mode Mode, records []Record, threshold float64) *Analysis {
	c := Classify(records, threshold)
	low := CalculateLowScoreMetrics(records, threshold)
	return &Analysis{
		Mode:           mode,
		Threshold:      threshold,
		Records:        records,
		Classification: c,
		LowScore:       low,
		Metrics:        Summarize(c, low),
	}
}

func namesFor(t Table, cols ColumnSet) ColumnNames {
	n := ColumnNames{
		Customer: t.Columns[cols.Customer],
		Previous: t.Columns[cols.Previous],
		Current:  t.Columns[cols.Current],
	}
	if cols.Overall >= 0 {
		n.Overall = t.Columns[cols.Overall]
	}
	return n
}

// SummaryRow is one line of the flat category summary table.
type SummaryRow struct {
	Category  Category `json:"category"`
	Customer  string   `json:"customer"`
	PrevScore *float64 `json:"prev_score"`
	CurrScore *float64 `json:"curr_score"`
}

// SummaryRows flattens the classification in category display order.
func SummaryRows(c Classification) []SummaryRow {
	var out []SummaryRow
	for _, cat := range Categories {
		for _, r := range c.Get(cat) {
			out = append(out, SummaryRow{Category: cat, Customer: r.Customer, PrevScore: r.Previous, CurrScore: r.Current})
		}
	}
	return out
}

// FormatScore renders a score for tables; nil renders empty.
func FormatScore(v *float64) string {
	if v == nil {
		return ""
	}
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", *v), "0"), ".")
}
