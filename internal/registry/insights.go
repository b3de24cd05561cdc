package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/alegriaw/chi-monthly-report-analyzer/internal/insights"
	"github.com/alegriaw/chi-monthly-report-analyzer/pkg/mcperr"
	"github.com/alegriaw/chi-monthly-report-analyzer/pkg/validation"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterInsightsTools wires analyze_scores and historical_trend.
func RegisterInsightsTools(s *server.MCPServer, reg *Registry, h *handlers) {
	analyze := mcp.NewTool(
		"analyze_scores",
		mcp.WithDescription("Compare two periods of CHI security scores and classify customers into Exit from Red (was below the threshold, now at or above), Return Back to Red, New Comer to Red (was missing, now red) and Missing from CHI (has an overall score but no current security score). mode=columns (default) compares two Security Score columns on one sheet; mode=sheets compares two YYYY-MM-DD snapshot sheets. Returns counts, low-score trend metrics, the risk summary and one page of records per category.\n\nPagination: pass next_cursor from a category page as cursor to continue that category; a cursor replays the original inputs and is rejected with CURSOR_INVALID if the workbook changed. Errors include MISSING_COLUMN, UNKNOWN_COLUMN, NOT_ENOUGH_SHEETS, INVALID_SHEET and PERMISSION_DENIED."),
		mcp.WithInputSchema[insights.AnalyzeInput](),
		mcp.WithOutputSchema[insights.AnalyzeOutput](),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	add(s, reg, analyze, mcp.NewTypedToolHandler(h.analyzeScores))

	trend := mcp.NewTool(
		"historical_trend",
		mcp.WithDescription("Build the month-by-month low security score series from every YYYY-MM-DD snapshot sheet: low-score customer count, total customers and low-score percentage per snapshot, with month-over-month exit and return counts (the latest month uses the exact counts from the selected comparison, earlier months are estimated from the change in low-score totals). Non-dated sheets are listed as skipped. Use since to drop older snapshots. Errors include NO_HISTORY and the analyze_scores errors."),
		mcp.WithInputSchema[insights.TrendInput](),
		mcp.WithOutputSchema[insights.TrendOutput](),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	add(s, reg, trend, mcp.NewTypedToolHandler(h.historicalTrend))
}

func (h *handlers) analyzeScores(ctx context.Context, req mcp.CallToolRequest, in insights.AnalyzeInput) (*mcp.CallToolResult, error) {
	if strings.TrimSpace(in.Cursor) != "" {
		// The cursor carries the path and comparison inputs.
		if err := validation.Validator().Var(in.Cursor, "cursor"); err != nil {
			return mcperr.New(mcperr.CursorInvalid, "failed to decode cursor; restart pagination"), nil
		}
	} else if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}

	out, err := h.deps.Analyzer.Analyze(ctx, in)
	if err != nil {
		return toolError(err), nil
	}

	c := out.Counts
	summary := fmt.Sprintf("mode=%s prev=%s curr=%s exit=%d return=%d new=%d missing=%d improvement=%.1f%% risk=%s",
		out.Mode, out.PrevSource, out.CurrSource,
		c.ExitFromRed, c.ReturnToRed, c.NewComerToRed, c.MissingFromCHI,
		out.LowScore.ImprovementPercentage, out.Metrics.RiskLevel)
	lines := []string{summary}
	for _, p := range out.Pages {
		names := make([]string, 0, len(p.Records))
		for _, r := range p.Records {
			names = append(names, r.Customer)
		}
		line := fmt.Sprintf("- %s total=%d offset=%d customers=%v", p.DisplayName, p.Total, p.Offset, previewHeader(names, 8))
		if p.NextCursor != "" {
			line += " more=true"
		}
		lines = append(lines, line)
	}
	return structured(out, summary, strings.Join(lines, "\n")), nil
}

func (h *handlers) historicalTrend(ctx context.Context, req mcp.CallToolRequest, in insights.TrendInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	out, err := h.deps.Analyzer.Trend(ctx, in)
	if err != nil {
		return toolError(err), nil
	}
	summary := fmt.Sprintf("points=%d skipped=%d", len(out.Points), len(out.Skipped))
	lines := []string{summary}
	for _, p := range out.Points {
		lines = append(lines, fmt.Sprintf("- %s low=%d total=%d low_pct=%.1f%% exit=%d return=%d estimated=%v", p.MonthLabel, p.LowScoreCustomers, p.TotalCustomers, p.LowScorePercentage, p.ExitFromRed, p.ReturnToRed, p.Estimated))
	}
	return structured(out, summary, strings.Join(lines, "\n")), nil
}
