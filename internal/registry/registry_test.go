package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alegriaw/chi-monthly-report-analyzer/config"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/assistant"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/insights"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/runtime"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/security"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/workbooks"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const aiSummary = "October showed a healthy security posture overall, with two customers leaving the red zone."

type fakeProvider struct {
	mu      sync.Mutex
	replies []string
	err     error
	prompts []string
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Generate(ctx context.Context, req assistant.Request) (*assistant.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, req.Prompt)
	if p.err != nil {
		return nil, p.err
	}
	text := aiSummary
	if len(p.replies) > 0 {
		text, p.replies = p.replies[0], p.replies[1:]
	}
	return &assistant.Response{Text: text}, nil
}

func writeRows(t *testing.T, f *excelize.File, sheet string, rows [][]any) {
	t.Helper()
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		_, err := f.NewSheet(sheet)
		require.NoError(t, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}
}

type fixture struct {
	dir  string
	path string
	h    *handlers
	llm  *fakeProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := excelize.NewFile()
	writeRows(t, f, "Sheet1", [][]any{
		{"Customer", "Security Score (Oct)", "Security Score (Sept)", "Overall Score"},
		{"rec1", 50, 30, 50},
		{"rec2", 30, 50, 30},
		{"rec3", 20, nil, 20},
		{"rec4", 45, 40, nil},
	})
	writeRows(t, f, "2025-09-08", [][]any{
		{"Customer", "Security Score", "Overall Score"},
		{"rec1", 30, 30}, {"rec2", 50, 50}, {"rec4", 40, 40},
	})
	writeRows(t, f, "2025-10-06", [][]any{
		{"Customer", "Security Score", "Overall Score"},
		{"rec1", 50, 50}, {"rec2", 30, 30}, {"rec3", 20, 20}, {"rec4", 45, nil},
	})
	path := filepath.Join(dir, "chi.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	sec, err := security.NewManager([]string{dir}, nil)
	require.NoError(t, err)
	mgr := workbooks.NewManager(time.Minute, time.Minute, nil, time.Now)
	mgr.SetValidator(sec)
	t.Cleanup(func() { _ = mgr.Close(context.Background()) })

	llm := &fakeProvider{}
	cfg := config.Default()
	deps := Deps{
		Analyzer:    &insights.Analyzer{Limits: runtime.NewLimits(2, 2), Mgr: mgr, Config: cfg.Analysis},
		Security:    sec,
		Assistant:   assistant.NewService(llm, cfg.Assistant),
		Config:      cfg,
		AllowWrites: true,
	}
	return &fixture{dir: dir, path: path, h: &handlers{deps: deps}, llm: llm}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func requireCode(t *testing.T, res *mcp.CallToolResult, code string) {
	t.Helper()
	require.True(t, res.IsError)
	require.True(t, strings.HasPrefix(resultText(t, res), code+":"), resultText(t, res))
}

func TestRegisterAllAndWriteFilter(t *testing.T) {
	fx := newFixture(t)
	s := server.NewMCPServer("test", "0.0.0")
	reg := New()
	RegisterAll(s, reg, fx.h.deps)

	tools, err := reg.Tools(context.Background())
	require.NoError(t, err)
	var names []string
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	require.Equal(t, []string{"analyze_scores", "assistant_status", "chat_summary", "export_report", "generate_summary", "historical_trend", "list_sheets"}, names)

	_, ok := reg.Get("analyze_scores")
	require.True(t, ok)

	t.Setenv("CHI_ENABLE_WRITES", "")
	filtered := NewWriteToolFilter(false).FilterTools(context.Background(), tools)
	require.Len(t, filtered, len(tools)-1)
	for _, tool := range filtered {
		require.NotEqual(t, "export_report", tool.Name)
	}
	require.Len(t, NewWriteToolFilter(true).FilterTools(context.Background(), tools), len(tools))

	t.Setenv("CHI_ENABLE_WRITES", "yes")
	require.True(t, NewWriteToolFilter(false).AllowWrites())
}

func TestListSheets(t *testing.T) {
	fx := newFixture(t)
	res, err := fx.h.listSheets(context.Background(), mcp.CallToolRequest{}, insights.StructureInput{Path: fx.path})
	require.NoError(t, err)
	require.False(t, res.IsError)
	out := res.StructuredContent.(insights.StructureOutput)
	require.Len(t, out.Sheets, 3)
	require.True(t, out.CanCompareSheets)
	require.Contains(t, resultText(t, res), "sheets=3")
}

func TestAnalyzeScores(t *testing.T) {
	fx := newFixture(t)
	res, err := fx.h.analyzeScores(context.Background(), mcp.CallToolRequest{}, insights.AnalyzeInput{
		CompareParams: insights.CompareParams{Path: fx.path},
		Limit:         1,
	})
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	out := res.StructuredContent.(insights.AnalyzeOutput)
	require.Equal(t, 2, out.Counts.ExitFromRed)
	require.Equal(t, 1, out.Counts.ReturnToRed)
	require.Len(t, out.Pages, len(insights.Categories))
	require.NotEmpty(t, out.Pages[0].NextCursor)
	require.Contains(t, resultText(t, res), "exit=2")

	next, err := fx.h.analyzeScores(context.Background(), mcp.CallToolRequest{}, insights.AnalyzeInput{Cursor: out.Pages[0].NextCursor})
	require.NoError(t, err)
	require.False(t, next.IsError, resultText(t, next))
	page := next.StructuredContent.(insights.AnalyzeOutput).Pages
	require.Len(t, page, 1)
	require.Equal(t, 1, page[0].Offset)
}

func TestAnalyzeScoresErrors(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	res, err := fx.h.analyzeScores(ctx, mcp.CallToolRequest{}, insights.AnalyzeInput{})
	require.NoError(t, err)
	requireCode(t, res, "VALIDATION")

	res, _ = fx.h.analyzeScores(ctx, mcp.CallToolRequest{}, insights.AnalyzeInput{Cursor: "not-a-cursor"})
	requireCode(t, res, "CURSOR_INVALID")

	res, _ = fx.h.analyzeScores(ctx, mcp.CallToolRequest{}, insights.AnalyzeInput{CompareParams: insights.CompareParams{Path: fx.path}, Category: "red"})
	requireCode(t, res, "VALIDATION")
	require.Contains(t, resultText(t, res), "category must be one of")

	res, _ = fx.h.analyzeScores(ctx, mcp.CallToolRequest{}, insights.AnalyzeInput{CompareParams: insights.CompareParams{Path: fx.path}, Category: "Exit from Red"})
	require.False(t, res.IsError, resultText(t, res))

	other := filepath.Join(t.TempDir(), "other.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SaveAs(other))
	res, _ = fx.h.analyzeScores(ctx, mcp.CallToolRequest{}, insights.AnalyzeInput{CompareParams: insights.CompareParams{Path: other}})
	requireCode(t, res, "PERMISSION_DENIED")

	res, _ = fx.h.analyzeScores(ctx, mcp.CallToolRequest{}, insights.AnalyzeInput{CompareParams: insights.CompareParams{Path: filepath.Join(fx.dir, "absent.xlsx")}})
	requireCode(t, res, "NOT_FOUND")

	res, _ = fx.h.analyzeScores(ctx, mcp.CallToolRequest{}, insights.AnalyzeInput{CompareParams: insights.CompareParams{Path: fx.path, Sheet: "Nope"}})
	requireCode(t, res, "UNKNOWN_COLUMN")
}

func TestHistoricalTrend(t *testing.T) {
	fx := newFixture(t)
	res, err := fx.h.historicalTrend(context.Background(), mcp.CallToolRequest{}, insights.TrendInput{
		CompareParams: insights.CompareParams{Path: fx.path},
	})
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
	out := res.StructuredContent.(insights.TrendOutput)
	require.Len(t, out.Points, 2)
	require.Equal(t, []string{"Sheet1"}, out.Skipped)

	res, _ = fx.h.historicalTrend(context.Background(), mcp.CallToolRequest{}, insights.TrendInput{
		CompareParams: insights.CompareParams{Path: fx.path},
		Since:         "October",
	})
	requireCode(t, res, "VALIDATION")

	res, _ = fx.h.historicalTrend(context.Background(), mcp.CallToolRequest{}, insights.TrendInput{
		CompareParams: insights.CompareParams{Path: fx.path},
		Since:         "2030-01-01",
	})
	requireCode(t, res, "NO_HISTORY")
}

func TestSummaryChatFlow(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	rewrite := "A rewritten summary that focuses on the risks facing the customers that returned to red."
	fx.llm.replies = []string{aiSummary, rewrite}

	res, err := fx.h.generateSummary(ctx, mcp.CallToolRequest{}, SummaryInput{CompareParams: insights.CompareParams{Path: fx.path}})
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
	sum := res.StructuredContent.(SummaryOutput)
	require.Equal(t, "ai", sum.Source)
	require.Equal(t, aiSummary, sum.Summary)
	require.Equal(t, assistant.StateSummaryShown, sum.State)
	require.NotEmpty(t, sum.StandardSummary)
	require.Contains(t, fx.llm.prompts[0], "- Exit from Red (Improved): 2 customers")

	res, _ = fx.h.chatSummary(ctx, mcp.CallToolRequest{}, ChatInput{SessionID: sum.SessionID, Quick: "risks"})
	require.False(t, res.IsError, resultText(t, res))
	chat := res.StructuredContent.(ChatOutput)
	require.Equal(t, rewrite, chat.Answer)
	require.Equal(t, assistant.StateResponseShown, chat.State)
	require.Len(t, chat.History, 1)
	require.Contains(t, fx.llm.prompts[1], "Current Summary:\n"+aiSummary)
	require.Contains(t, fx.llm.prompts[1], "User Question: Please rewrite the summary to emphasize the security risks")

	res, _ = fx.h.chatSummary(ctx, mcp.CallToolRequest{}, ChatInput{SessionID: sum.SessionID, Action: "adopt"})
	chat = res.StructuredContent.(ChatOutput)
	require.True(t, chat.Improved)
	require.Equal(t, rewrite, chat.CurrentSummary)

	res, _ = fx.h.chatSummary(ctx, mcp.CallToolRequest{}, ChatInput{SessionID: sum.SessionID, Action: "revert"})
	chat = res.StructuredContent.(ChatOutput)
	require.False(t, chat.Improved)
	require.Equal(t, aiSummary, chat.CurrentSummary)

	res, _ = fx.h.chatSummary(ctx, mcp.CallToolRequest{}, ChatInput{SessionID: sum.SessionID, Action: "revert"})
	requireCode(t, res, "VALIDATION")

	res, _ = fx.h.chatSummary(ctx, mcp.CallToolRequest{}, ChatInput{SessionID: sum.SessionID, Action: "clear_history"})
	require.Empty(t, res.StructuredContent.(ChatOutput).History)

	res, _ = fx.h.chatSummary(ctx, mcp.CallToolRequest{}, ChatInput{SessionID: sum.SessionID})
	requireCode(t, res, "VALIDATION")

	res, _ = fx.h.chatSummary(ctx, mcp.CallToolRequest{}, ChatInput{SessionID: "9b2f0c8e-6a53-4f43-9e43-3f7f8f0f6a11", Question: "hi"})
	requireCode(t, res, "VALIDATION")

	res, _ = fx.h.generateSummary(ctx, mcp.CallToolRequest{}, SummaryInput{SessionID: sum.SessionID})
	require.False(t, res.IsError, resultText(t, res))
	require.Equal(t, sum.SessionID, res.StructuredContent.(SummaryOutput).SessionID)
}

func TestGenerateSummaryFailures(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	in := SummaryInput{CompareParams: insights.CompareParams{Path: fx.path}}

	fx.llm.err = assistant.ErrAuthRequired
	res, err := fx.h.generateSummary(ctx, mcp.CallToolRequest{}, in)
	require.NoError(t, err)
	requireCode(t, res, "AUTH_REQUIRED")
	require.Contains(t, resultText(t, res), "Please login to Amazon Q CLI")

	fx.llm.err = nil
	fx.llm.replies = []string{"[0m too short"}
	res, _ = fx.h.generateSummary(ctx, mcp.CallToolRequest{}, in)
	requireCode(t, res, "FORMATTING_ERROR")

	fx.llm.err = &assistant.CLIError{Stderr: "boom", Err: errors.New("exit status 1")}
	in.Fallback = true
	res, _ = fx.h.generateSummary(ctx, mcp.CallToolRequest{}, in)
	require.False(t, res.IsError, resultText(t, res))
	out := res.StructuredContent.(SummaryOutput)
	require.Equal(t, "standard", out.Source)
	require.Equal(t, out.StandardSummary, out.Summary)
	require.Equal(t, "Amazon Q error: boom", out.AssistantError)
	require.Equal(t, assistant.StateSummaryShown, out.State)
}

func TestAssistantToolsWithoutProvider(t *testing.T) {
	fx := newFixture(t)
	fx.h.deps.Assistant = nil
	ctx := context.Background()

	res, _ := fx.h.generateSummary(ctx, mcp.CallToolRequest{}, SummaryInput{CompareParams: insights.CompareParams{Path: fx.path}})
	requireCode(t, res, "ASSISTANT_UNAVAILABLE")

	res, _ = fx.h.generateSummary(ctx, mcp.CallToolRequest{}, SummaryInput{CompareParams: insights.CompareParams{Path: fx.path}, Fallback: true})
	require.False(t, res.IsError)
	require.Equal(t, "standard", res.StructuredContent.(SummaryOutput).Source)

	res, _ = fx.h.assistantStatus(ctx, mcp.CallToolRequest{}, StatusInput{})
	require.False(t, res.StructuredContent.(StatusOutput).Available)

	res, _ = fx.h.assistantStatus(ctx, mcp.CallToolRequest{}, StatusInput{Action: "logout"})
	requireCode(t, res, "ASSISTANT_UNAVAILABLE")
}

func TestAssistantStatusHostedProvider(t *testing.T) {
	fx := newFixture(t)
	res, err := fx.h.assistantStatus(context.Background(), mcp.CallToolRequest{}, StatusInput{Refresh: true})
	require.NoError(t, err)
	st := res.StructuredContent.(StatusOutput)
	require.True(t, st.Available)
	require.Equal(t, "fake", st.Provider)
	require.Equal(t, "status", st.Action)
	require.Equal(t, "Configured", resultText(t, res))

	res, _ = fx.h.assistantStatus(context.Background(), mcp.CallToolRequest{}, StatusInput{Action: "login"})
	requireCode(t, res, "ASSISTANT_UNAVAILABLE")
	require.Contains(t, resultText(t, res), "Amazon Q CLI provider only")

	res, _ = fx.h.assistantStatus(context.Background(), mcp.CallToolRequest{}, StatusInput{Action: "signup"})
	requireCode(t, res, "VALIDATION")
}

// qRunner answers q CLI invocations by their joined arguments.
type qRunner struct {
	mu      sync.Mutex
	results map[string]error
	stdout  map[string]string
	calls   []string
}

func (r *qRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.Join(args, " ")
	r.calls = append(r.calls, key)
	err, ok := r.results[key]
	if !ok {
		return "", "", errors.New("unexpected command " + key)
	}
	if err != nil {
		return "", err.Error(), err
	}
	return r.stdout[key], "", nil
}

func TestAssistantStatusAccountActions(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	r := &qRunner{
		results: map[string]error{
			"--version":   nil,
			"login":       errors.New("select a login method"),
			"chat --help": errors.New("You are not logged in"),
			"logout":      nil,
		},
		stdout: map[string]string{"--version": "q 1.12.0"},
	}
	fx.h.deps.Assistant = assistant.NewService(assistant.NewQCLI("q", r), fx.h.deps.Config.Assistant)

	res, err := fx.h.assistantStatus(ctx, mcp.CallToolRequest{}, StatusInput{Action: "login"})
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
	out := res.StructuredContent.(StatusOutput)
	require.False(t, out.Available)
	require.Equal(t, "login", out.Action)
	require.Len(t, out.Steps, 4)
	require.Contains(t, resultText(t, res), "2. Run: q login")

	res, _ = fx.h.assistantStatus(ctx, mcp.CallToolRequest{}, StatusInput{})
	require.True(t, res.StructuredContent.(StatusOutput).Cached)

	res, _ = fx.h.assistantStatus(ctx, mcp.CallToolRequest{}, StatusInput{Action: "logout"})
	require.False(t, res.IsError, resultText(t, res))
	require.Equal(t, "Logout successful!", resultText(t, res))
	require.Contains(t, r.calls, "logout")

	res, _ = fx.h.assistantStatus(ctx, mcp.CallToolRequest{}, StatusInput{})
	require.False(t, res.StructuredContent.(StatusOutput).Cached)

	r.results["logout"] = errors.New("error: unrecognized subcommand 'logout'")
	res, _ = fx.h.assistantStatus(ctx, mcp.CallToolRequest{}, StatusInput{Action: "logout"})
	requireCode(t, res, "ASSISTANT_FAILED")
}

func TestExportReport(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	xlsx := filepath.Join(fx.dir, "report.xlsx")
	res, err := fx.h.exportReport(ctx, mcp.CallToolRequest{}, ExportInput{
		CompareParams: insights.CompareParams{Path: fx.path},
		Output:        xlsx,
		IncludeTrend:  true,
	})
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
	out := res.StructuredContent.(ExportOutput)
	require.Equal(t, "xlsx", out.Format)
	require.Equal(t, 2, out.TrendPoints)
	f, err := excelize.OpenFile(xlsx)
	require.NoError(t, err)
	require.Contains(t, f.GetSheetList(), "Trend")
	require.NoError(t, f.Close())

	sumRes, _ := fx.h.generateSummary(ctx, mcp.CallToolRequest{}, SummaryInput{CompareParams: insights.CompareParams{Path: fx.path}})
	sessionID := sumRes.StructuredContent.(SummaryOutput).SessionID

	md := filepath.Join(fx.dir, "report.md")
	res, _ = fx.h.exportReport(ctx, mcp.CallToolRequest{}, ExportInput{
		CompareParams: insights.CompareParams{Path: fx.path},
		Output:        md,
		SessionID:     sessionID,
	})
	require.False(t, res.IsError, resultText(t, res))
	require.True(t, res.StructuredContent.(ExportOutput).AISummary)
	data, err := os.ReadFile(md)
	require.NoError(t, err)
	require.Contains(t, string(data), "## AI Summary")
	require.Contains(t, string(data), aiSummary)
}

func TestExportReportGuards(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	in := ExportInput{CompareParams: insights.CompareParams{Path: fx.path}, Output: filepath.Join(fx.dir, "r.xlsx")}

	fx.h.deps.AllowWrites = false
	res, _ := fx.h.exportReport(ctx, mcp.CallToolRequest{}, in)
	requireCode(t, res, "PERMISSION_DENIED")

	fx.h.deps.AllowWrites = true
	res, _ = fx.h.exportReport(ctx, mcp.CallToolRequest{}, ExportInput{CompareParams: in.CompareParams, Output: filepath.Join(fx.dir, "r.csv")})
	requireCode(t, res, "VALIDATION")

	res, _ = fx.h.exportReport(ctx, mcp.CallToolRequest{}, ExportInput{CompareParams: in.CompareParams, Output: filepath.Join(t.TempDir(), "r.md")})
	requireCode(t, res, "PERMISSION_DENIED")
}

func TestToolErrorCodes(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{security.ErrNotAllowed, "PERMISSION_DENIED"},
		{security.ErrNotFound, "NOT_FOUND"},
		{workbooks.ErrUnsupportedFormat, "UNSUPPORTED_FORMAT"},
		{&insights.MissingColumnError{Sheet: "Sheet1", Column: "Customer"}, "MISSING_COLUMN"},
		{insights.ErrNotEnoughSheets, "NOT_ENOUGH_SHEETS"},
		{insights.ErrNoHistory, "NO_HISTORY"},
		{insights.ErrCursorStale, "CURSOR_INVALID"},
		{errors.New("sheet Foo does not exist"), "INVALID_SHEET"},
		{assistant.ErrUsageLimit, "USAGE_LIMIT"},
		{&assistant.ProviderError{Provider: "openai", StatusCode: 429, Err: errors.New("slow down")}, "USAGE_LIMIT"},
		{&assistant.ProviderError{Provider: "openai", StatusCode: 401, Err: errors.New("bad key")}, "AUTH_REQUIRED"},
		{assistant.ErrTimeout, "TIMEOUT"},
		{assistant.ErrCLINotFound, "ASSISTANT_UNAVAILABLE"},
		{assistant.ErrEmptyResponse, "ASSISTANT_FAILED"},
		{context.DeadlineExceeded, "TIMEOUT"},
		{errors.New("boom"), "ANALYSIS_FAILED"},
	}
	for _, tc := range cases {
		t.Run(tc.code+"/"+tc.err.Error(), func(t *testing.T) {
			requireCode(t, toolError(tc.err), tc.code)
		})
	}
}
