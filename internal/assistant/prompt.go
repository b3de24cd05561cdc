package assistant

import (
	"fmt"
	"strings"

	"github.com/alegriaw/chi-monthly-report-analyzer/config"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/insights"
)

// SummaryData is the slice of an analysis the assistant sees.
type SummaryData struct {
	Counts         insights.Counts          `json:"counts"`
	TotalCustomers int                      `json:"total_customers"`
	LowScore       insights.LowScoreMetrics `json:"low_score"`
	Threshold      float64                  `json:"threshold"`
}

// SummaryDataFrom extracts prompt data from an analysis.
func SummaryDataFrom(a *insights.Analysis) SummaryData {
	return SummaryData{
		Counts:         a.Metrics.Counts,
		TotalCustomers: a.Metrics.TotalCustomers,
		LowScore:       a.LowScore,
		Threshold:      a.Threshold,
	}
}

// BuildSummaryPrompt renders the monthly report request.
func BuildSummaryPrompt(d SummaryData) string {
	var b strings.Builder
	b.WriteString("Based on the following CHI (Customer Health Index) security score analysis data, please generate a comprehensive monthly summary report in markdown format:\n\n")
	b.WriteString("Analysis Results:\n")
	fmt.Fprintf(&b, "- Exit from Red (Improved): %d customers\n", d.Counts.ExitFromRed)
	fmt.Fprintf(&b, "- Return Back to Red (Deteriorated): %d customers\n", d.Counts.ReturnToRed)
	fmt.Fprintf(&b, "- New Comer to Red (New risks): %d customers\n", d.Counts.NewComerToRed)
	fmt.Fprintf(&b, "- Missing from CHI: %d customers\n", d.Counts.MissingFromCHI)
	fmt.Fprintf(&b, "- Total customers analyzed: %d\n\n", d.TotalCustomers)
	fmt.Fprintf(&b, "Low Score Trend Analysis (customers with security score < %s):\n", insights.FormatScore(&d.Threshold))
	fmt.Fprintf(&b, "- Previous month total low-score customers: %d\n", d.LowScore.PrevLowTotal)
	fmt.Fprintf(&b, "- Current month total low-score customers: %d\n", d.LowScore.CurrLowTotal)
	fmt.Fprintf(&b, "- Net improvement: %d customers\n", d.LowScore.ImprovementCount)
	fmt.Fprintf(&b, "- Improvement percentage: %.1f%%\n\n", d.LowScore.ImprovementPercentage)
	b.WriteString("Please write a professional summary including the following key points:\n")
	b.WriteString("1. Highlights the overall low-score trend and improvement metrics\n")
	b.WriteString("2. Analyzes the movement between categories (Exit, Return, New Comer)\n")
	b.WriteString("3. Congratulates customers who improved their security posture\n")
	b.WriteString("4. Identifies areas needing attention and specific customer segments\n")
	b.WriteString("5. Encourages TAM teams to maintain regular reviews and focus areas\n")
	b.WriteString("6. Provides an overall assessment of the security posture changes\n\n")
	b.WriteString("Format the summary response in clean markdown limited to 200 to 300 words in paragraph , emphasis, but no bullet points. ")
	b.WriteString("Write in a professional, encouraging tone suitable for a TAM team report. Keep it concise but comprehensive. ")
	b.WriteString("Do not use any terminal colors or formatting codes.")
	return b.String()
}

const truncatedNote = "\n\n[Summary truncated for processing efficiency]"

// BuildChatContext is the preamble sent with every chat question: a one-line
// digest of the analysis and the summary currently in force.
func BuildChatContext(d SummaryData, summary string) string {
	if r := []rune(summary); len(r) > config.DefaultSummaryContextLen {
		summary = string(r[:config.DefaultSummaryContextLen]) + truncatedNote
	}
	return fmt.Sprintf("CHI Analysis: %d improved, %d deteriorated, %d new low-score, %d missing data. Total: %d customers, %.1f%% improvement.\n\nCurrent Summary:\n%s",
		d.Counts.ExitFromRed, d.Counts.ReturnToRed, d.Counts.NewComerToRed, d.Counts.MissingFromCHI,
		d.TotalCustomers, d.LowScore.ImprovementPercentage, summary)
}

// BuildChatPrompt joins context and question.
func BuildChatPrompt(chatContext, question string) string {
	if strings.TrimSpace(chatContext) == "" {
		return question
	}
	return chatContext + "\n\nUser Question: " + question
}

// QuickQuestion names a canned rewrite request.
type QuickQuestion string

const (
	QuickImprovements QuickQuestion = "improvements"
	QuickRisks        QuickQuestion = "risks"
	QuickMetrics      QuickQuestion = "metrics"
)

var quickQuestions = map[QuickQuestion]string{
	QuickImprovements: "Please rewrite the summary to focus more on the positive improvements and success stories. Highlight the customers who improved their security scores.",
	QuickRisks:        "Please rewrite the summary to emphasize the security risks and areas that need immediate attention. Focus on the deteriorating customers.",
	QuickMetrics:      "Please enhance the summary with more detailed metrics and statistical analysis. Include percentages and trends.",
}

// QuickQuestions lists the canned questions in display order.
var QuickQuestions = []QuickQuestion{QuickImprovements, QuickRisks, QuickMetrics}

// Text returns the prompt for q.
func (q QuickQuestion) Text() (string, bool) {
	s, ok := quickQuestions[QuickQuestion(strings.ToLower(strings.TrimSpace(string(q))))]
	return s, ok
}
