package insights

import (
	"sort"
	"strings"
	"time"
)

const snapshotDateLayout = "2006-01-02"

// SnapshotMetrics is one point of the historical low-score series. The change
// fields are filled by CalculateMonthlyChanges.
type SnapshotMetrics struct {
	Date               time.Time `json:"date"`
	MonthLabel         string    `json:"month_label"`
	SheetName          string    `json:"sheet_name"`
	LowScoreCustomers  int       `json:"low_score_customers"`
	TotalCustomers     int       `json:"total_customers"`
	LowScorePercentage float64   `json:"low_score_percentage"`
	ExitFromRed        int       `json:"exit_from_red"`
	ReturnToRed        int       `json:"return_to_red"`
	NetChange          int       `json:"net_change"`
	// Estimated is true when ExitFromRed/ReturnToRed were inferred from NetChange.
	Estimated bool `json:"estimated,omitempty"`
}

// ParseSnapshotDate parses a sheet name of the form YYYY-MM-DD.
func ParseSnapshotDate(name string) (time.Time, bool) {
	t, err := time.Parse(snapshotDateLayout, strings.TrimSpace(name))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ExtractHistoricalData builds a chronological series from date-named
// snapshots. Snapshots whose name is not a date, or whose header has no
// security score column, are skipped.
func ExtractHistoricalData(snapshots []Snapshot, threshold float64, opts HeaderOptions) []SnapshotMetrics {
	out := make([]SnapshotMetrics, 0, len(snapshots))
	for _, s := range snapshots {
		date, ok := ParseSnapshotDate(s.Name)
		if !ok {
			continue
		}
		t, _ := DetectHeader(s.Grid, opts)
		col := FindSecurityColumn(t.Columns)
		if col < 0 {
			continue
		}

		low, total := 0, 0
		for _, v := range CoerceNumeric(t.Column(col)) {
			if v == nil {
				continue
			}
			total++
			if *v < threshold {
				low++
			}
		}
		m := SnapshotMetrics{
			Date:              date,
			MonthLabel:        date.Format("2006-01"),
			SheetName:         s.Name,
			LowScoreCustomers: low,
			TotalCustomers:    total,
		}
		if total > 0 {
			m.LowScorePercentage = float64(low) / float64(total) * 100
		}
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// CalculateMonthlyChanges derives month-over-month movement. The latest point
// takes exact exit/return counts from the classification; earlier points
// attribute the whole net change to one side. The input is not modified.
func CalculateMonthlyChanges(series []SnapshotMetrics, c Classification) []SnapshotMetrics {
	out := make([]SnapshotMetrics, len(series))
	copy(out, series)
	if len(out) < 2 {
		return out
	}

	last := len(out) - 1
	for i := 1; i < len(out); i++ {
		net := out[i-1].LowScoreCustomers - out[i].LowScoreCustomers
		out[i].NetChange = net
		out[i].ExitFromRed, out[i].ReturnToRed, out[i].Estimated = 0, 0, false

		if i == last {
			out[i].ExitFromRed = len(c.ExitFromRed)
			out[i].ReturnToRed = len(c.ReturnToRed)
			continue
		}
		out[i].Estimated = true
		if net > 0 {
			out[i].ExitFromRed = net
		} else {
			out[i].ReturnToRed = -net
		}
	}
	return out
}
