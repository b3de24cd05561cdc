package insights

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func names(rs []Record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Customer
	}
	return out
}

func TestClassify_NineCombinations(t *testing.T) {
	const threshold = 42.0
	type side struct {
		label string
		v     *float64
	}
	sides := []side{{"below", f(30)}, {"at_or_above", f(42)}, {"null", nil}}

	for _, p := range sides {
		for _, c := range sides {
			t.Run(fmt.Sprintf("prev_%s/curr_%s", p.label, c.label), func(t *testing.T) {
				rec := Record{Customer: "x", Previous: p.v, Current: c.v, Overall: f(1)}
				got := Classify([]Record{rec}, threshold)

				wantExit := p.label == "below" && c.label == "at_or_above"
				wantReturn := p.label == "at_or_above" && c.label == "below"
				wantNew := p.label == "null" && c.label == "below"

				require.Equal(t, wantExit, len(got.ExitFromRed) == 1)
				require.Equal(t, wantReturn, len(got.ReturnToRed) == 1)
				require.Equal(t, wantNew, len(got.NewComerToRed) == 1)
				require.Empty(t, got.MissingFromCHI)
			})
		}
	}
}

func TestClassify_ThresholdIsNotRed(t *testing.T) {
	got := Classify([]Record{
		{Customer: "edge-exit", Previous: f(41.99), Current: f(42), Overall: f(42)},
		{Customer: "edge-stay", Previous: f(42), Current: f(42), Overall: f(42)},
	}, 42)
	require.Equal(t, []string{"edge-exit"}, names(got.ExitFromRed))
	require.Empty(t, got.ReturnToRed)
	require.Empty(t, got.NewComerToRed)
}

func TestClassify_MissingDependsOnlyOnOverall(t *testing.T) {
	scores := []*float64{nil, f(10), f(90)}
	for _, p := range scores {
		for _, c := range scores {
			got := Classify([]Record{{Previous: p, Current: c, Overall: nil}}, 42)
			require.Len(t, got.MissingFromCHI, 1)
			got = Classify([]Record{{Previous: p, Current: c, Overall: f(0)}}, 42)
			require.Empty(t, got.MissingFromCHI)
		}
	}
}

func TestClassify_EndToEndScenario(t *testing.T) {
	records := []Record{
		{Row: 0, Customer: "rec1", Previous: f(30), Current: f(50), Overall: f(50)},
		{Row: 1, Customer: "rec2", Previous: f(50), Current: f(30), Overall: f(30)},
		{Row: 2, Customer: "rec3", Previous: nil, Current: f(20), Overall: f(20)},
		{Row: 3, Customer: "rec4", Previous: f(40), Current: f(45), Overall: nil},
	}
	got := Classify(records, 42)

	// rec4 also exits the red zone; categories are allowed to overlap.
	require.Equal(t, []string{"rec1", "rec4"}, names(got.ExitFromRed))
	require.Equal(t, []string{"rec2"}, names(got.ReturnToRed))
	require.Equal(t, []string{"rec3"}, names(got.NewComerToRed))
	require.Equal(t, []string{"rec4"}, names(got.MissingFromCHI))
}

func TestClassify_PreservesInputOrderAndIsIdempotent(t *testing.T) {
	records := []Record{
		{Customer: "z", Previous: f(10), Current: f(80), Overall: f(1)},
		{Customer: "a", Previous: f(20), Current: f(70), Overall: f(1)},
		{Customer: "m", Previous: f(30), Current: f(60), Overall: f(1)},
	}
	first := Classify(records, 42)
	second := Classify(records, 42)
	require.Equal(t, []string{"z", "a", "m"}, names(first.ExitFromRed))
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("classification not idempotent (-first +second):\n%s", diff)
	}
}

func TestClassify_EmptyInputYieldsEmptyCategories(t *testing.T) {
	got := Classify(nil, 42)
	for _, cat := range Categories {
		require.NotNil(t, got.Get(cat))
		require.Empty(t, got.Get(cat))
	}
	require.Zero(t, got.Counts().Total())
}

func TestClassifyTable_AbsentOverallMarksAllMissing(t *testing.T) {
	tbl := Table{
		Columns: []string{"Customer", "Security Score Oct", "Security Score Sept"},
		Rows: [][]string{
			{"Acme", "50", "30"},
			{"Globex", "bad", "55"},
		},
	}
	got := ClassifyTable(tbl, ColumnSet{Customer: 0, Previous: 2, Current: 1, Overall: -1}, 42)
	require.Equal(t, []string{"Acme"}, names(got.ExitFromRed))
	require.Equal(t, []string{"Acme", "Globex"}, names(got.MissingFromCHI))
	require.Empty(t, got.ReturnToRed)
}

func TestCalculateLowScoreMetrics(t *testing.T) {
	records := []Record{
		{Previous: f(30), Current: f(50)},
		{Previous: f(35), Current: f(20)},
		{Previous: nil, Current: f(10)},
		{Previous: f(80), Current: nil},
	}
	m := CalculateLowScoreMetrics(records, 42)
	require.Equal(t, 2, m.PrevLowTotal)
	require.Equal(t, 2, m.CurrLowTotal)
	require.Equal(t, 0, m.ImprovementCount)
	require.Equal(t, 0.0, m.ImprovementPercentage)

	m = CalculateLowScoreMetrics([]Record{{Previous: f(10), Current: f(90)}, {Previous: f(10), Current: f(10)}}, 42)
	require.Equal(t, 1, m.ImprovementCount)
	require.InDelta(t, 50.0, m.ImprovementPercentage, 1e-9)
}

func TestCalculateLowScoreMetrics_NoPreviousLow(t *testing.T) {
	m := CalculateLowScoreMetrics([]Record{{Previous: f(90), Current: f(10)}, {Current: f(5)}}, 42)
	require.Equal(t, 0, m.PrevLowTotal)
	require.Equal(t, 2, m.CurrLowTotal)
	require.Equal(t, -2, m.ImprovementCount)
	require.Equal(t, 0.0, m.ImprovementPercentage)
}

func TestLowScoreMetricsFromTable(t *testing.T) {
	tbl := Table{Columns: []string{"a", "b"}, Rows: [][]string{{"10", "50"}, {"x", "20"}}}
	m := LowScoreMetricsFromTable(tbl, 0, 1, 42)
	require.Equal(t, LowScoreMetrics{PrevLowTotal: 1, CurrLowTotal: 1}, m)
}

func TestParseCategory(t *testing.T) {
	c, ok := ParseCategory("Return Back to Red")
	require.True(t, ok)
	require.Equal(t, ReturnToRed, c)
	c, ok = ParseCategory("missing_from_chi")
	require.True(t, ok)
	require.Equal(t, MissingFromCHI, c)
	_, ok = ParseCategory("green")
	require.False(t, ok)
}
