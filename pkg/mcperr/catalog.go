package mcperr

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Code defines a canonical MCP error code used across tools.
type Code string

const (
	// Validation & Input
	Validation    Code = "VALIDATION"
	InvalidSheet  Code = "INVALID_SHEET"
	CursorInvalid Code = "CURSOR_INVALID"

	// Resource & Limits
	BusyResource Code = "BUSY_RESOURCE"
	Timeout      Code = "TIMEOUT"

	// IO & Formats
	OpenFailed        Code = "OPEN_FAILED"
	ReadFailed        Code = "READ_FAILED"
	ExportFailed      Code = "EXPORT_FAILED"
	UnsupportedFormat Code = "UNSUPPORTED_FORMAT"
	PermissionDenied  Code = "PERMISSION_DENIED"
	NotFound          Code = "NOT_FOUND"

	// Analysis
	MissingColumn   Code = "MISSING_COLUMN"
	UnknownColumn   Code = "UNKNOWN_COLUMN"
	NotEnoughSheets Code = "NOT_ENOUGH_SHEETS"
	NoHistory       Code = "NO_HISTORY"
	AnalysisFailed  Code = "ANALYSIS_FAILED"

	// Assistant
	AssistantUnavailable Code = "ASSISTANT_UNAVAILABLE"
	AuthRequired         Code = "AUTH_REQUIRED"
	UsageLimit           Code = "USAGE_LIMIT"
	AssistantFailed      Code = "ASSISTANT_FAILED"
	FormattingError      Code = "FORMATTING_ERROR"
)

// Entry documents a code's standard message, retry semantics, and next steps.
type Entry struct {
	Code      Code
	Message   string
	Retryable bool
	NextSteps []string
}

// catalog maps canonical codes to guidance. Messages can be overridden per error.
var catalog = map[Code]Entry{
	Validation:    {Code: Validation, Message: "invalid inputs", Retryable: true, NextSteps: []string{"Correct the inputs per schema and retry"}},
	InvalidSheet:  {Code: InvalidSheet, Message: "sheet not found", Retryable: true, NextSteps: []string{"Check sheet names (snapshots are named YYYY-MM-DD)", "Check case and spacing"}},
	CursorInvalid: {Code: CursorInvalid, Message: "cursor is invalid for current analysis", Retryable: true, NextSteps: []string{"Restart pagination from the first page", "Re-run analyze_scores if the workbook changed"}},

	BusyResource: {Code: BusyResource, Message: "concurrent request limit reached", Retryable: true, NextSteps: []string{"Retry after a short delay"}},
	Timeout:      {Code: Timeout, Message: "operation exceeded configured time limit", Retryable: true, NextSteps: []string{"Retry later or raise the configured timeout"}},

	OpenFailed:        {Code: OpenFailed, Message: "failed to open workbook", Retryable: true, NextSteps: []string{"Verify path, permissions, and format"}},
	ReadFailed:        {Code: ReadFailed, Message: "failed to read worksheet", Retryable: true, NextSteps: []string{"Verify the workbook opens in Excel"}},
	ExportFailed:      {Code: ExportFailed, Message: "failed to write report", Retryable: false, NextSteps: []string{"Check the output directory is writable and allowed"}},
	UnsupportedFormat: {Code: UnsupportedFormat, Message: "unsupported file format", Retryable: false, NextSteps: []string{"Convert to .xlsx and retry"}},
	PermissionDenied:  {Code: PermissionDenied, Message: "path is outside the allowed directories", Retryable: false, NextSteps: []string{"Choose a file under CHI_ALLOWED_DIRS"}},
	NotFound:          {Code: NotFound, Message: "file not found", Retryable: false, NextSteps: []string{"Verify the path exists"}},

	MissingColumn:   {Code: MissingColumn, Message: "required column not found", Retryable: false, NextSteps: []string{"Ensure the sheet has Customer, Security Score and Overall Score headers"}},
	UnknownColumn:   {Code: UnknownColumn, Message: "requested column or sheet not found", Retryable: true, NextSteps: []string{"Omit prev/curr to use the detected defaults", "Check header spelling"}},
	NotEnoughSheets: {Code: NotEnoughSheets, Message: "sheet comparison needs at least two snapshot sheets", Retryable: false, NextSteps: []string{"Use mode=columns or add dated snapshot sheets"}},
	NoHistory:       {Code: NoHistory, Message: "no dated snapshot sheets found", Retryable: false, NextSteps: []string{"Name snapshot sheets YYYY-MM-DD"}},
	AnalysisFailed:  {Code: AnalysisFailed, Message: "analysis failed", Retryable: true, NextSteps: []string{"Verify the workbook layout and retry"}},

	AssistantUnavailable: {Code: AssistantUnavailable, Message: "AI assistant is not available", Retryable: true, NextSteps: []string{"Call assistant_status for details", "Use the standard summary"}},
	AuthRequired:         {Code: AuthRequired, Message: "AI assistant requires login", Retryable: true, NextSteps: []string{"Run 'q login' in a terminal, then retry"}},
	UsageLimit:           {Code: UsageLimit, Message: "AI assistant usage limit reached", Retryable: true, NextSteps: []string{"Wait and retry later"}},
	AssistantFailed:      {Code: AssistantFailed, Message: "AI assistant call failed", Retryable: true, NextSteps: []string{"Retry, or use the standard summary"}},
	FormattingError:      {Code: FormattingError, Message: "AI response was not a usable summary", Retryable: true, NextSteps: []string{"Retry to regenerate the summary"}},
}

// Lookup returns the catalog entry for a code.
func Lookup(code Code) (Entry, bool) {
	e, ok := catalog[code]
	return e, ok
}

// normalize builds a standard error string including next steps for MCP clients that
// surface only a message string. Format: "CODE: message" followed by a guidance tail.
func normalize(code Code, msg string) string {
	base := strings.TrimSpace(msg)
	e, ok := catalog[code]
	if !ok {
		if base == "" {
			return string(code)
		}
		return fmt.Sprintf("%s: %s", string(code), base)
	}
	if base == "" {
		base = e.Message
	}
	guidance := ""
	if len(e.NextSteps) > 0 {
		guidance = " | nextSteps: " + strings.Join(e.NextSteps, "; ")
	}
	return fmt.Sprintf("%s: %s%s", e.Code, base, guidance)
}

// FromText parses a "CODE: message" string, enriches it with catalog guidance,
// and returns an MCP tool error result.
func FromText(text string) *mcp.CallToolResult {
	t := strings.TrimSpace(text)
	if t == "" {
		return mcp.NewToolResultError(normalize(Validation, ""))
	}
	code, msg, found := strings.Cut(t, ":")
	if !found {
		return mcp.NewToolResultError(normalize(Validation, t))
	}
	return mcp.NewToolResultError(normalize(Code(strings.TrimSpace(code)), strings.TrimSpace(msg)))
}

// New returns an MCP error result for a given code and optional message override.
func New(code Code, message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(normalize(code, message))
}

// Wrapf formats details and returns an MCP error result for the code.
func Wrapf(code Code, format string, args ...any) *mcp.CallToolResult {
	return mcp.NewToolResultError(normalize(code, fmt.Sprintf(format, args...)))
}

// IsInvalidSheet returns true if an error matches common excelize "sheet does not exist" messages.
func IsInvalidSheet(err error) bool {
	if err == nil {
		return false
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "doesn't exist") || strings.Contains(low, "does not exist")
}
