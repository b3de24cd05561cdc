package registry

import (
	"context"
	"errors"
	"os"

	"github.com/alegriaw/chi-monthly-report-analyzer/internal/assistant"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/insights"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/security"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/workbooks"
	"github.com/alegriaw/chi-monthly-report-analyzer/pkg/mcperr"
	"github.com/mark3labs/mcp-go/mcp"
)

// toolError maps a domain error onto the catalog code clients branch on.
// Assistant errors carry the user-facing message rather than the raw error.
func toolError(err error) *mcp.CallToolResult {
	var missing *insights.MissingColumnError
	switch {
	case errors.Is(err, security.ErrNotAllowed):
		return mcperr.New(mcperr.PermissionDenied, "")
	case errors.Is(err, security.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return mcperr.New(mcperr.NotFound, "")
	case errors.Is(err, security.ErrUnsupportedExtension), errors.Is(err, workbooks.ErrUnsupportedFormat):
		return mcperr.New(mcperr.UnsupportedFormat, "")

	case errors.As(err, &missing):
		return mcperr.New(mcperr.MissingColumn, missing.Error())
	case errors.Is(err, insights.ErrMissingColumn):
		return mcperr.New(mcperr.MissingColumn, "")
	case errors.Is(err, insights.ErrUnknownColumn):
		return mcperr.New(mcperr.UnknownColumn, err.Error())
	case errors.Is(err, insights.ErrNotEnoughSheets):
		return mcperr.New(mcperr.NotEnoughSheets, "")
	case errors.Is(err, insights.ErrNoHistory):
		return mcperr.New(mcperr.NoHistory, "")
	case errors.Is(err, insights.ErrCursorStale):
		return mcperr.New(mcperr.CursorInvalid, "")
	case mcperr.IsInvalidSheet(err):
		return mcperr.New(mcperr.InvalidSheet, "")

	case errors.Is(err, assistant.ErrAuthRequired):
		return mcperr.New(mcperr.AuthRequired, assistant.UserMessage(err))
	case errors.Is(err, assistant.ErrUsageLimit):
		return mcperr.New(mcperr.UsageLimit, assistant.UserMessage(err))
	case errors.Is(err, assistant.ErrTimeout):
		return mcperr.New(mcperr.Timeout, assistant.UserMessage(err))
	case errors.Is(err, assistant.ErrCLINotFound), errors.Is(err, assistant.ErrUnavailable), errors.Is(err, assistant.ErrNoCLIAccount):
		return mcperr.New(mcperr.AssistantUnavailable, assistant.UserMessage(err))
	case errors.Is(err, assistant.ErrFormatting):
		return mcperr.New(mcperr.FormattingError, assistant.UserMessage(err))
	case errors.Is(err, assistant.ErrSessionNotFound), errors.Is(err, assistant.ErrInvalidTransition):
		return mcperr.New(mcperr.Validation, err.Error())
	case isAssistantFailure(err):
		return mcperr.New(mcperr.AssistantFailed, assistant.UserMessage(err))

	case errors.Is(err, context.DeadlineExceeded):
		return mcperr.New(mcperr.Timeout, "")
	}
	return mcperr.Wrapf(mcperr.AnalysisFailed, "%v", err)
}

func isAssistantFailure(err error) bool {
	var cliErr *assistant.CLIError
	return errors.Is(err, assistant.ErrEmptyResponse) || errors.Is(err, assistant.ErrLogoutUnsupported) || errors.As(err, &cliErr)
}
