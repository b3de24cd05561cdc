package report

import (
	"fmt"
	"strings"

	"github.com/alegriaw/chi-monthly-report-analyzer/internal/insights"
)

// StandardSummary renders the fixed monthly report paragraph used when no AI
// summary is available.
func StandardSummary(c insights.Counts, low insights.LowScoreMetrics) string {
	direction := "a change"
	outcome := "indicating areas for continued focus"
	if low.ImprovementPercentage > 0 {
		direction = "an improvement"
		outcome = fmt.Sprintf("reflecting a %.0f%% improvement", low.ImprovementPercentage)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "This month's analysis reveals %d new customers entering the low security score category and %d customers returning to the red zone, requiring immediate attention from their respective TAMs. ", c.NewComerToRed, c.ReturnToRed)
	fmt.Fprintf(&b, "We congratulate the %d customers who successfully improved their security posture and exited the low-score category, demonstrating the positive impact of proactive engagement. ", c.ExitFromRed)
	b.WriteString("We encourage all TAMs to maintain their monthly customer security score review practices to sustain this momentum. ")
	fmt.Fprintf(&b, "Overall, the security score landscape shows %s with %d customers currently in the low-score category compared to %d previously, %s. ", direction, low.CurrLowTotal, low.PrevLowTotal, outcome)
	b.WriteString("This progress reflects the effectiveness of TAM collaboration with customers in addressing security concerns. ")
	b.WriteString("We encourage all TAMs to continue their excellent practice of monthly security score reviews, with particular attention to customers who are new to or returning to the red zone, helping them implement effective measures to enhance their security posture. ")
	b.WriteString("Additionally, we extend our congratulations to customers who have successfully moved out of the low-score category and encourage continued support to help them maintain strong security practices.")
	return b.String()
}

// TrendInsight is the one-line reading of the low-score movement.
func TrendInsight(low insights.LowScoreMetrics) string {
	switch {
	case low.ImprovementCount > 0:
		return fmt.Sprintf("Positive Trend: %d fewer low-score customers", low.ImprovementCount)
	case low.ImprovementCount < 0:
		return fmt.Sprintf("Concerning Trend: %d more low-score customers", -low.ImprovementCount)
	}
	return "Stable Trend: No change in low-score customer count"
}

// ExitInsight highlights customers that left the red zone.
func ExitInsight(c insights.Counts) string {
	if c.ExitFromRed > 0 {
		return fmt.Sprintf("Success Stories: %d customers improved their security posture", c.ExitFromRed)
	}
	return "Opportunity: Focus on helping customers exit the red zone"
}
