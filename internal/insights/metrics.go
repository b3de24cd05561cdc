package insights

// RiskLevel is the heuristic assessment of red-zone inflow.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Direction summarizes the sign of the low-score improvement.
type Direction string

const (
	Improving Direction = "improving"
	Stable    Direction = "stable"
	Worsening Direction = "worsening"
)

const (
	highRiskCutoff   = 0.30
	mediumRiskCutoff = 0.15
)

// Metrics is the scalar summary consumed by reports and tools.
type Metrics struct {
	Counts         Counts               `json:"counts"`
	TotalCustomers int                  `json:"total_customers"`
	Percentages    map[Category]float64 `json:"percentages"`

	LargestCategory      Category `json:"largest_category,omitempty"`
	LargestCategoryShare float64  `json:"largest_category_share"`

	LowScore              LowScoreMetrics `json:"low_score"`
	ImprovementCount      int             `json:"improvement_count"`
	ImprovementPercentage float64         `json:"improvement_percentage"`
	TrendDirection        Direction       `json:"trend_direction"`

	RiskScore float64   `json:"risk_score"`
	RiskLevel RiskLevel `json:"risk_level"`

	ImprovementRatio    float64 `json:"improvement_ratio"`
	HasImprovementRatio bool    `json:"has_improvement_ratio"`

	// Category-derived view of the red zone: previous = return + exit,
	// current = return + new comer.
	CategoryPreviousLow    int     `json:"category_previous_low"`
	CategoryCurrentLow     int     `json:"category_current_low"`
	CategoryImprovementPct float64 `json:"category_improvement_pct"`
}

// Summarize derives counts, shares, risk and improvement figures.
func Summarize(c Classification, low LowScoreMetrics) Metrics {
	n := c.Counts()
	m := Metrics{
		Counts:                n,
		TotalCustomers:        n.Total(),
		Percentages:           make(map[Category]float64, len(Categories)),
		LowScore:              low,
		ImprovementCount:      low.ImprovementCount,
		ImprovementPercentage: low.ImprovementPercentage,
		RiskLevel:             RiskLow,
	}

	switch {
	case low.ImprovementCount > 0:
		m.TrendDirection = Improving
	case low.ImprovementCount < 0:
		m.TrendDirection = Worsening
	default:
		m.TrendDirection = Stable
	}

	for _, cat := range Categories {
		m.Percentages[cat] = 0
		if m.TotalCustomers > 0 {
			m.Percentages[cat] = float64(n.Of(cat)) / float64(m.TotalCustomers) * 100
		}
	}

	if m.TotalCustomers > 0 {
		best := -1
		for _, cat := range Categories {
			if v := n.Of(cat); v > best {
				best = v
				m.LargestCategory = cat
			}
		}
		m.LargestCategoryShare = float64(best) / float64(m.TotalCustomers) * 100

		m.RiskScore = float64(n.ReturnToRed+n.NewComerToRed) / float64(m.TotalCustomers)
		m.RiskLevel = ClassifyRisk(m.RiskScore)
	}

	if inflow := n.ReturnToRed + n.NewComerToRed; inflow > 0 {
		m.ImprovementRatio = float64(n.ExitFromRed) / float64(inflow)
		m.HasImprovementRatio = true
	}

	m.CategoryPreviousLow = n.ReturnToRed + n.ExitFromRed
	m.CategoryCurrentLow = n.ReturnToRed + n.NewComerToRed
	if m.CategoryPreviousLow > 0 {
		m.CategoryImprovementPct = float64(m.CategoryPreviousLow-m.CategoryCurrentLow) / float64(m.CategoryPreviousLow) * 100
	}
	return m
}

// ClassifyRisk maps a risk score to a level; boundaries fall to the lower band.
func ClassifyRisk(score float64) RiskLevel {
	switch {
	case score > highRiskCutoff:
		return RiskHigh
	case score > mediumRiskCutoff:
		return RiskMedium
	default:
		return RiskLow
	}
}
