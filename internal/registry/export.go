package registry

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/alegriaw/chi-monthly-report-analyzer/internal/insights"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/report"
	"github.com/alegriaw/chi-monthly-report-analyzer/pkg/mcperr"
	"github.com/alegriaw/chi-monthly-report-analyzer/pkg/validation"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// ExportInput selects the analysis to write and where.
type ExportInput struct {
	insights.CompareParams
	Output       string `json:"output" validate:"required,export_ext" jsonschema_description:"Destination file (.xlsx workbook or .md report) inside an allowed directory"`
	IncludeTrend bool   `json:"include_trend,omitempty" jsonschema_description:"Add the historical trend from dated snapshot sheets"`
	SessionID    string `json:"session_id,omitempty" validate:"omitempty,uuid" jsonschema_description:"Include the current AI summary and chat of this session (markdown only)"`
}

// ExportOutput describes the written report.
type ExportOutput struct {
	Output      string `json:"output"`
	Format      string `json:"format"`
	Records     int    `json:"records"`
	TrendPoints int    `json:"trend_points"`
	AISummary   bool   `json:"ai_summary"`
	ChatTurns   int    `json:"chat_turns"`
}

// RegisterExportTools wires export_report. The write filter hides it unless
// writes are enabled.
func RegisterExportTools(s *server.MCPServer, reg *Registry, h *handlers) {
	tool := mcp.NewTool(
		"export_report",
		mcp.WithDescription("Write a CHI comparison to disk. .xlsx produces a Summary sheet, one sheet per category and an optional Trend sheet; .md produces a markdown report with key insights, risk assessment, category tables, the optional trend and, with session_id, the AI summary and chat. The output path must be inside an allowed directory. Errors include PERMISSION_DENIED, UNSUPPORTED_FORMAT, EXPORT_FAILED and the analyze_scores errors."),
		mcp.WithInputSchema[ExportInput](),
		mcp.WithOutputSchema[ExportOutput](),
		mcp.WithDestructiveHintAnnotation(true),
	)
	add(s, reg, tool, mcp.NewTypedToolHandler(h.exportReport))
}

func (h *handlers) exportReport(ctx context.Context, req mcp.CallToolRequest, in ExportInput) (*mcp.CallToolResult, error) {
	if !h.deps.AllowWrites {
		return mcperr.New(mcperr.PermissionDenied, "write tools are disabled; set CHI_ENABLE_WRITES=true"), nil
	}
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	if h.deps.Security == nil {
		return mcperr.New(mcperr.PermissionDenied, "no allowed directories configured"), nil
	}
	target, err := h.deps.Security.ValidateOutputPath(in.Output)
	if err != nil {
		return toolError(err), nil
	}

	res, _, err := h.deps.Analyzer.Compare(ctx, in.CompareParams)
	if err != nil {
		return toolError(err), nil
	}

	var trend []insights.SnapshotMetrics
	if in.IncludeTrend {
		t, err := h.deps.Analyzer.Trend(ctx, insights.TrendInput{CompareParams: in.CompareParams})
		switch {
		case errors.Is(err, insights.ErrNoHistory):
			zerolog.Ctx(ctx).Info().Msg("no dated snapshots; exporting without trend")
		case err != nil:
			return toolError(err), nil
		default:
			trend = t.Points
		}
	}

	out := ExportOutput{Output: target, Records: len(res.Records), TrendPoints: len(trend)}
	switch strings.ToLower(filepath.Ext(target)) {
	case ".md":
		out.Format = "markdown"
		opts := report.MarkdownOptions{Trend: trend, GeneratedAt: time.Now()}
		if in.SessionID != "" && h.deps.Assistant != nil {
			if sess, ok := h.deps.Assistant.Sessions().Get(in.SessionID); ok {
				opts.AISummary = sess.CurrentSummary()
				for _, turn := range sess.History() {
					opts.Chat = append(opts.Chat, report.ChatEntry{Question: turn.Question, Answer: turn.Answer})
				}
			}
		}
		out.AISummary, out.ChatTurns = opts.AISummary != "", len(opts.Chat)
		err = report.SaveMarkdown(target, res, opts)
	default:
		out.Format = "xlsx"
		err = report.SaveWorkbook(target, res, trend)
	}
	if err != nil {
		return mcperr.Wrapf(mcperr.ExportFailed, "%v", err), nil
	}

	summary := fmt.Sprintf("wrote %s (%s) records=%d trend_points=%d", filepath.Base(target), out.Format, out.Records, out.TrendPoints)
	return structured(out, summary, summary), nil
}
