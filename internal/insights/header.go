package insights

import (
	"strings"

	"github.com/alegriaw/chi-monthly-report-analyzer/config"
)

// DefaultHeaderKeywords are the labels expected on a CHI report header row.
var DefaultHeaderKeywords = []string{"Customer", "Security", "Overall"}

// HeaderOptions bounds the header scan. Zero values select the defaults:
// DefaultHeaderKeywords and the window [0, config.DefaultHeaderScanRows).
type HeaderOptions struct {
	Keywords []string `json:"keywords,omitempty"`
	Start    int      `json:"start,omitempty"`
	End      int      `json:"end,omitempty"`
}

func (o HeaderOptions) withDefaults() HeaderOptions {
	if len(o.Keywords) == 0 {
		o.Keywords = DefaultHeaderKeywords
	}
	if o.Start < 0 {
		o.Start = 0
	}
	if o.End <= 0 {
		o.End = config.DefaultHeaderScanRows
	}
	return o
}

// LocateHeader returns the index of the first row in [start, end) on which at
// least max(2, len(keywords)-1) keywords appear as a case-insensitive substring
// of some cell. Each keyword counts once per row. When no row qualifies the
// scan falls back to start.
func LocateHeader(grid [][]string, keywords []string, start, end int) int {
	need := len(keywords) - 1
	if need < 2 {
		need = 2
	}
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}

	stop := min(end, len(grid))
	for i := max(start, 0); i < stop; i++ {
		if keywordHits(grid[i], lowered) >= need {
			return i
		}
	}
	return start
}

func keywordHits(row []string, keywords []string) int {
	cells := make([]string, len(row))
	for i, c := range row {
		cells[i] = strings.ToLower(c)
	}
	hits := 0
	for _, k := range keywords {
		for _, c := range cells {
			if strings.Contains(c, k) {
				hits++
				break
			}
		}
	}
	return hits
}

// PromoteHeader makes grid[idx] the column schema and keeps only the rows after
// it. Columns that hold no value in any remaining row are dropped, even when
// they carry a header label.
func PromoteHeader(grid [][]string, idx int) Table {
	if idx < 0 || idx >= len(grid) {
		return Table{Columns: []string{}, Rows: [][]string{}}
	}
	header := grid[idx]
	body := grid[idx+1:]

	width := len(header)
	for _, r := range body {
		width = max(width, len(r))
	}

	keep := make([]int, 0, width)
	for c := 0; c < width; c++ {
		for _, r := range body {
			if c < len(r) && !isBlank(r[c]) {
				keep = append(keep, c)
				break
			}
		}
	}

	t := Table{Columns: make([]string, len(keep)), Rows: make([][]string, len(body))}
	for j, c := range keep {
		if c < len(header) {
			t.Columns[j] = header[c]
		}
	}
	for i, r := range body {
		row := make([]string, len(keep))
		for j, c := range keep {
			if c < len(r) {
				row[j] = r[c]
			}
		}
		t.Rows[i] = row
	}
	return t
}

// DetectHeader locates and promotes the header row, normalizing its labels.
// It returns the table and the grid index of the chosen header row.
func DetectHeader(grid [][]string, opts HeaderOptions) (Table, int) {
	opts = opts.withDefaults()
	idx := LocateHeader(grid, opts.Keywords, opts.Start, opts.End)
	t := PromoteHeader(grid, idx)
	t.Columns = NormalizeHeaders(t.Columns)
	return t, idx
}
