package insights

import "strings"

// Category is one of the four month-over-month movement buckets.
type Category string

const (
	ExitFromRed    Category = "exit_from_red"
	ReturnToRed    Category = "return_to_red"
	NewComerToRed  Category = "new_comer_to_red"
	MissingFromCHI Category = "missing_from_chi"
)

// Categories lists every category in display order.
var Categories = []Category{ExitFromRed, ReturnToRed, NewComerToRed, MissingFromCHI}

// DisplayName returns the report label for the category.
func (c Category) DisplayName() string {
	switch c {
	case ExitFromRed:
		return "Exit from Red"
	case ReturnToRed:
		return "Return Back to Red"
	case NewComerToRed:
		return "New Comer to Red"
	case MissingFromCHI:
		return "Missing from CHI"
	}
	return string(c)
}

// ParseCategory accepts either the identifier or the display name, any case.
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range Categories {
		if s == string(c) || s == strings.ToLower(c.DisplayName()) {
			return c, true
		}
	}
	return "", false
}

// Record is one customer row. Nil scores mean "no value"; Overall is used only
// as a presence flag for the customer in the CHI roster.
type Record struct {
	Row      int      `json:"row"`
	Customer string   `json:"customer"`
	Previous *float64 `json:"previous_score"`
	Current  *float64 `json:"current_score"`
	Overall  *float64 `json:"overall_score"`
}

// Classification holds the four category subsequences in input order.
// Categories are evaluated independently and may share records.
type Classification struct {
	ExitFromRed    []Record `json:"exit_from_red"`
	ReturnToRed    []Record `json:"return_to_red"`
	NewComerToRed  []Record `json:"new_comer_to_red"`
	MissingFromCHI []Record `json:"missing_from_chi"`
}

// Counts tallies category sizes.
type Counts struct {
	ExitFromRed    int `json:"exit_from_red"`
	ReturnToRed    int `json:"return_to_red"`
	NewComerToRed  int `json:"new_comer_to_red"`
	MissingFromCHI int `json:"missing_from_chi"`
}

// Get returns the records of one category.
func (c Classification) Get(cat Category) []Record {
	switch cat {
	case ExitFromRed:
		return c.ExitFromRed
	case ReturnToRed:
		return c.ReturnToRed
	case NewComerToRed:
		return c.NewComerToRed
	case MissingFromCHI:
		return c.MissingFromCHI
	}
	return nil
}

// Counts returns the size of every category.
func (c Classification) Counts() Counts {
	return Counts{
		ExitFromRed:    len(c.ExitFromRed),
		ReturnToRed:    len(c.ReturnToRed),
		NewComerToRed:  len(c.NewComerToRed),
		MissingFromCHI: len(c.MissingFromCHI),
	}
}

// Of returns the count for one category.
func (n Counts) Of(cat Category) int {
	switch cat {
	case ExitFromRed:
		return n.ExitFromRed
	case ReturnToRed:
		return n.ReturnToRed
	case NewComerToRed:
		return n.NewComerToRed
	case MissingFromCHI:
		return n.MissingFromCHI
	}
	return 0
}

// Total sums all category counts; a record in two categories counts twice.
func (n Counts) Total() int {
	return n.ExitFromRed + n.ReturnToRed + n.NewComerToRed + n.MissingFromCHI
}

// Classify partitions records by threshold movement. A score equal to the
// threshold is not red, and any comparison involving a nil score is false.
func Classify(records []Record, threshold float64) Classification {
	out := Classification{
		ExitFromRed:    []Record{},
		ReturnToRed:    []Record{},
		NewComerToRed:  []Record{},
		MissingFromCHI: []Record{},
	}
	for _, r := range records {
		prevRed, prevOK := below(r.Previous, threshold)
		currRed, currOK := below(r.Current, threshold)

		if prevOK && prevRed && currOK && !currRed {
			out.ExitFromRed = append(out.ExitFromRed, r)
		}
		if prevOK && !prevRed && currOK && currRed {
			out.ReturnToRed = append(out.ReturnToRed, r)
		}
		if !prevOK && currOK && currRed {
			out.NewComerToRed = append(out.NewComerToRed, r)
		}
		if r.Overall == nil {
			out.MissingFromCHI = append(out.MissingFromCHI, r)
		}
	}
	return out
}

// below reports whether v < threshold, and whether v was present at all.
func below(v *float64, threshold float64) (red bool, ok bool) {
	if v == nil {
		return false, false
	}
	return *v < threshold, true
}

// RecordsFromTable builds records from resolved columns, coercing scores.
// A negative Overall index marks every record as missing from CHI.
func RecordsFromTable(t Table, cols ColumnSet) []Record {
	prev := CoerceNumeric(t.Column(cols.Previous))
	curr := CoerceNumeric(t.Column(cols.Current))
	var overall []*float64
	if cols.Overall >= 0 {
		overall = CoerceNumeric(t.Column(cols.Overall))
	}

	out := make([]Record, t.Len())
	for i := range t.Rows {
		out[i] = Record{
			Row:      i,
			Customer: strings.TrimSpace(t.Cell(i, cols.Customer)),
			Previous: prev[i],
			Current:  curr[i],
		}
		if overall != nil {
			out[i].Overall = overall[i]
		}
	}
	return out
}

// ClassifyTable resolves records from t and classifies them.
func ClassifyTable(t Table, cols ColumnSet, threshold float64) Classification {
	return Classify(RecordsFromTable(t, cols), threshold)
}

// LowScoreMetrics compares the red-zone population of both periods.
type LowScoreMetrics struct {
	PrevLowTotal          int     `json:"prev_month_low_total"`
	CurrLowTotal          int     `json:"curr_month_low_total"`
	ImprovementCount      int     `json:"improvement_count"`
	ImprovementPercentage float64 `json:"improvement_percentage"`
}

// CalculateLowScoreMetrics counts present scores below threshold in each
// period. The percentage is 0 when the previous period had no red customers.
func CalculateLowScoreMetrics(records []Record, threshold float64) LowScoreMetrics {
	var m LowScoreMetrics
	for _, r := range records {
		if red, ok := below(r.Previous, threshold); ok && red {
			m.PrevLowTotal++
		}
		if red, ok := below(r.Current, threshold); ok && red {
			m.CurrLowTotal++
		}
	}
	m.ImprovementCount = m.PrevLowTotal - m.CurrLowTotal
	if m.PrevLowTotal > 0 {
		m.ImprovementPercentage = float64(m.ImprovementCount) / float64(m.PrevLowTotal) * 100
	}
	return m
}

// LowScoreMetricsFromTable is CalculateLowScoreMetrics over two table columns.
func LowScoreMetricsFromTable(t Table, prevCol, currCol int, threshold float64) LowScoreMetrics {
	return CalculateLowScoreMetrics(RecordsFromTable(t, ColumnSet{Customer: -1, Previous: prevCol, Current: currCol, Overall: -1}), threshold)
}
