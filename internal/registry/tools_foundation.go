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

// RegisterFoundationTools wires list_sheets, the discovery step before any
// comparison.
func RegisterFoundationTools(s *server.MCPServer, reg *Registry, h *handlers) {
	tool := mcp.NewTool(
		"list_sheets",
		mcp.WithDescription("List the sheets of a CHI report workbook with the detected header row, Security Score columns and whether Customer and Overall Score columns exist. Dated sheets (YYYY-MM-DD) are flagged as snapshots and the default prev/curr pair for mode=sheets is reported. Use before analyze_scores to choose a comparison mode. Errors include PERMISSION_DENIED, NOT_FOUND and UNSUPPORTED_FORMAT."),
		mcp.WithInputSchema[insights.StructureInput](),
		mcp.WithOutputSchema[insights.StructureOutput](),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	add(s, reg, tool, mcp.NewTypedToolHandler(h.listSheets))
}

func (h *handlers) listSheets(ctx context.Context, req mcp.CallToolRequest, in insights.StructureInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	out, err := h.deps.Analyzer.Structure(ctx, in)
	if err != nil {
		return toolError(err), nil
	}
	summary := fmt.Sprintf("sheets=%d can_compare_sheets=%v", len(out.Sheets), out.CanCompareSheets)
	lines := []string{summary}
	for _, sh := range out.Sheets {
		lines = append(lines, fmt.Sprintf("- %s rows=%d header_row=%d snapshot=%v scores=%v", sh.Name, sh.Rows, sh.HeaderRow, sh.Snapshot, previewHeader(sh.SecurityColumns, 4)))
	}
	return structured(out, summary, strings.Join(lines, "\n")), nil
}
