package insights

import "strings"

// Table is a header-promoted grid: normalized column labels plus the data rows
// that followed the header. Rows may be ragged; missing cells read as "".
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Snapshot is one named sheet of raw, untyped cells as read from a workbook.
type Snapshot struct {
	Name string
	Grid [][]string
}

// Len returns the number of data rows.
func (t Table) Len() int { return len(t.Rows) }

// Cell returns the cell at (row, col) or "" when out of range.
func (t Table) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 {
		return ""
	}
	r := t.Rows[row]
	if col >= len(r) {
		return ""
	}
	return r[col]
}

// Column returns a copy of the cells in column idx, one per data row.
func (t Table) Column(idx int) []string {
	out := make([]string, len(t.Rows))
	for i := range t.Rows {
		out[i] = t.Cell(i, idx)
	}
	return out
}

// Index returns the first column whose label equals name exactly, or -1.
func (t Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }
