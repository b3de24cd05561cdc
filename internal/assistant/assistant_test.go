package assistant

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alegriaw/chi-monthly-report-analyzer/config"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/insights"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/runtime"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type runResult struct {
	stdout, stderr string
	err            error
	block          bool
}

// fakeRunner answers by the first argument after the binary.
type fakeRunner struct {
	mu      sync.Mutex
	results map[string]runResult
	calls   [][]string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	key := strings.Join(args, " ")
	if len(args) > 0 && args[0] == "chat" && len(args) > 1 && args[1] != "--help" {
		key = "chat"
	}
	r, ok := f.results[key]
	f.mu.Unlock()
	if !ok {
		return "", "", errors.New("unexpected command " + key)
	}
	if r.block {
		<-ctx.Done()
		return "", "", ctx.Err()
	}
	return r.stdout, r.stderr, r.err
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeProvider struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	prompts []string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.prompts)
	f.prompts = append(f.prompts, req.Prompt)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.replies) {
		return &Response{Text: f.replies[i]}, nil
	}
	return &Response{Text: f.replies[len(f.replies)-1]}, nil
}

type recordingObserver struct {
	mu   sync.Mutex
	ops  []string
	errs []error
}

func (o *recordingObserver) OnAssistantCall(provider, op string, d time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, provider+":"+op)
	o.errs = append(o.errs, err)
}

func sampleData() SummaryData {
	return SummaryData{
		Counts:         insights.Counts{ExitFromRed: 5, ReturnToRed: 2, NewComerToRed: 3, MissingFromCHI: 1},
		TotalCustomers: 11,
		LowScore:       insights.LowScoreMetrics{PrevLowTotal: 10, CurrLowTotal: 8, ImprovementCount: 2, ImprovementPercentage: 20},
		Threshold:      42,
	}
}

const goodSummary = "## Monthly CHI Summary\n\nThis month **five customers** exited the red zone while two returned and three are new."

func TestCleanOutput(t *testing.T) {
	in := "\x1b[1m\x1b[32mHello\x1b[0m [1;31mworld[0m\n\n\n\n  \nbye  "
	require.Equal(t, "Hello world\n\nbye", CleanOutput(in))
	require.Equal(t, "", CleanOutput("\x1b[0m \n"))
}

func TestQCLI_Generate(t *testing.T) {
	r := &fakeRunner{results: map[string]runResult{"chat": {stdout: "\x1b[32m> answer\x1b[0m\n"}}}
	q := NewQCLI("", r)
	resp, err := q.Generate(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	require.Equal(t, "> answer", resp.Text)
	require.Equal(t, []string{"q", "chat", "--no-interactive", "--trust-all-tools", "hi"}, r.calls[0])
}

func TestQCLI_ErrorMapping(t *testing.T) {
	exitErr := errors.New("exit status 1")
	cases := []struct {
		name string
		res  runResult
		want error
	}{
		{"auth", runResult{stderr: "error: Not logged in", err: exitErr}, ErrAuthRequired},
		{"quota", runResult{stderr: "Monthly QUOTA exceeded", err: exitErr}, ErrUsageLimit},
		{"limit", runResult{stderr: "rate limit", err: exitErr}, ErrUsageLimit},
		{"missing", runResult{err: exec.ErrNotFound}, ErrCLINotFound},
		{"empty", runResult{stdout: "\x1b[0m\n"}, ErrEmptyResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := NewQCLI("q", &fakeRunner{results: map[string]runResult{"chat": tc.res}})
			_, err := q.Generate(context.Background(), Request{Prompt: "x"})
			require.ErrorIs(t, err, tc.want)
		})
	}

	q := NewQCLI("q", &fakeRunner{results: map[string]runResult{"chat": {stderr: "\x1b[31mboom\x1b[0m", err: exitErr}}})
	_, err := q.Generate(context.Background(), Request{Prompt: "x"})
	var cliErr *CLIError
	require.ErrorAs(t, err, &cliErr)
	require.Equal(t, "boom", cliErr.Stderr)
	require.Equal(t, "Amazon Q error: boom", UserMessage(err))
}

func TestQCLI_Timeout(t *testing.T) {
	q := NewQCLI("q", &fakeRunner{results: map[string]runResult{"chat": {block: true}}})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.Generate(ctx, Request{Prompt: "x"})
	require.ErrorIs(t, err, ErrTimeout)
	require.Equal(t, "Request timed out. Please try again.", UserMessage(err))
}

func TestBuildSummaryPrompt(t *testing.T) {
	p := BuildSummaryPrompt(sampleData())
	require.True(t, strings.HasPrefix(p, "Based on the following CHI (Customer Health Index) security score analysis data"))
	require.Contains(t, p, "- Exit from Red (Improved): 5 customers\n")
	require.Contains(t, p, "- Total customers analyzed: 11\n")
	require.Contains(t, p, "(customers with security score < 42):")
	require.Contains(t, p, "- Net improvement: 2 customers\n")
	require.Contains(t, p, "- Improvement percentage: 20.0%\n")
	require.Contains(t, p, "6. Provides an overall assessment of the security posture changes")
	require.True(t, strings.HasSuffix(p, "Do not use any terminal colors or formatting codes."))

	d := sampleData()
	d.Threshold = 37.5
	require.Contains(t, BuildSummaryPrompt(d), "security score < 37.5)")
}

func TestBuildChatContextAndPrompt(t *testing.T) {
	c := BuildChatContext(sampleData(), "short summary")
	require.Equal(t, "CHI Analysis: 5 improved, 2 deteriorated, 3 new low-score, 1 missing data. Total: 11 customers, 20.0% improvement.\n\nCurrent Summary:\nshort summary", c)

	long := BuildChatContext(sampleData(), strings.Repeat("a", 2500))
	require.True(t, strings.HasSuffix(long, "\n"+strings.Repeat("a", 2000)+"\n\n[Summary truncated for processing efficiency]"))

	require.Equal(t, "why?", BuildChatPrompt("", "why?"))
	require.Equal(t, "ctx\n\nUser Question: why?", BuildChatPrompt("ctx", "why?"))
}

func TestQuickQuestions(t *testing.T) {
	for _, q := range QuickQuestions {
		text, ok := q.Text()
		require.True(t, ok)
		require.True(t, strings.HasPrefix(text, "Please "))
	}
	text, ok := QuickQuestion(" Risks ").Text()
	require.True(t, ok)
	require.Contains(t, text, "deteriorating customers")
	_, ok = QuickQuestion("jokes").Text()
	require.False(t, ok)
}

func TestWithRetry(t *testing.T) {
	transient := &ProviderError{Provider: "fake", StatusCode: 503, Err: errors.New("down")}
	p := &fakeProvider{replies: []string{"", "", "ok"}, errs: []error{transient, transient}}
	rp := WithRetry(p, RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond, Multiplier: 2})
	resp, err := rp.Generate(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Text)
	require.Len(t, p.prompts, 3)

	auth := &ProviderError{Provider: "fake", StatusCode: 401, Err: errors.New("bad key")}
	p = &fakeProvider{replies: []string{"ok"}, errs: []error{auth}}
	_, err = WithRetry(p, DefaultRetryConfig(3)).Generate(context.Background(), Request{})
	require.ErrorIs(t, err, ErrAuthRequired)
	require.Len(t, p.prompts, 1)

	p = &fakeProvider{replies: []string{"ok"}, errs: []error{ErrUsageLimit}}
	_, err = WithRetry(p, DefaultRetryConfig(3)).Generate(context.Background(), Request{})
	require.ErrorIs(t, err, ErrUsageLimit)
	require.Len(t, p.prompts, 1)

	require.Same(t, Provider(p), WithRetry(p, DefaultRetryConfig(0)))
}

func TestProviderErrorSentinels(t *testing.T) {
	require.ErrorIs(t, &ProviderError{StatusCode: 403, Err: errors.New("x")}, ErrAuthRequired)
	require.ErrorIs(t, &ProviderError{StatusCode: 429, Err: errors.New("x")}, ErrUsageLimit)
	require.ErrorIs(t, &ProviderError{StatusCode: 500, Err: errors.New("x")}, ErrUnavailable)
	require.True(t, (&ProviderError{StatusCode: 429}).Retryable())
	require.False(t, (&ProviderError{StatusCode: 400}).Retryable())
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(context.Background(), config.AssistantConfig{Provider: "qcli", Binary: "q", MaxRetries: 1}, &fakeRunner{})
	require.NoError(t, err)
	require.Equal(t, ProviderQCLI, p.Name())

	_, err = NewProvider(context.Background(), config.AssistantConfig{Provider: "anthropic"}, nil)
	require.Error(t, err)

	p, err = NewProvider(context.Background(), config.AssistantConfig{Provider: "openai", APIKey: "sk-test", MaxRetries: 0}, nil)
	require.NoError(t, err)
	require.Equal(t, ProviderOpenAI, p.Name())

	_, err = NewProvider(context.Background(), config.AssistantConfig{Provider: "bard"}, nil)
	require.ErrorIs(t, err, ErrUnknownProvider)
}

type fakeLLM struct {
	got []llms.MessageContent
}

func (f *fakeLLM) GenerateContent(ctx context.Context, msgs []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	f.got = msgs
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "  local answer "}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, opts...)
}

func TestLangChainProvider(t *testing.T) {
	llm := &fakeLLM{}
	p := NewLangChainProvider(ProviderOllama, llm, 256)
	resp, err := p.Generate(context.Background(), Request{System: "be brief", Prompt: "hi"})
	require.NoError(t, err)
	require.Equal(t, "local answer", resp.Text)
	require.Len(t, llm.got, 2)
	require.Equal(t, llms.ChatMessageTypeSystem, llm.got[0].Role)
	require.Equal(t, llms.ChatMessageTypeHuman, llm.got[1].Role)
}

func TestService_GenerateSummary(t *testing.T) {
	obs := &recordingObserver{}
	p := &fakeProvider{replies: []string{goodSummary}}
	ctrl := runtime.NewController(runtime.NewLimits(2, 2))
	svc := NewService(p, config.Default().Assistant, WithController(ctrl), WithObserver(obs))

	text, err := svc.GenerateSummary(context.Background(), sampleData())
	require.NoError(t, err)
	require.Equal(t, goodSummary, text)
	require.Contains(t, p.prompts[0], "Missing from CHI: 1 customers")
	require.Equal(t, []string{"fake:summary"}, obs.ops)

	// The assistant slot is released afterwards.
	require.NoError(t, ctrl.AcquireAssistant(context.Background()))
	ctrl.ReleaseAssistant()
}

func TestService_GenerateSummaryFormatting(t *testing.T) {
	for _, reply := range []string{"too short", "[Tool uses: none] " + strings.Repeat("x", 80)} {
		svc := NewService(&fakeProvider{replies: []string{reply}}, config.Default().Assistant)
		_, err := svc.GenerateSummary(context.Background(), sampleData())
		require.ErrorIs(t, err, ErrFormatting)
	}
}

func TestService_SessionFlow(t *testing.T) {
	p := &fakeProvider{replies: []string{goodSummary, "Improved summary text"}}
	svc := NewService(p, config.Default().Assistant)
	sess := svc.Sessions().NewSession(sampleData())

	_, err := svc.Summarize(context.Background(), sess)
	require.NoError(t, err)
	require.Equal(t, StateSummaryShown, sess.State())

	answer, err := svc.Ask(context.Background(), sess, "Make it upbeat")
	require.NoError(t, err)
	require.Equal(t, "Improved summary text", answer)
	require.Equal(t, StateResponseShown, sess.State())
	require.Contains(t, p.prompts[1], "Current Summary:\n"+goodSummary+"\n\nUser Question: Make it upbeat")

	require.NoError(t, sess.AdoptResponse())
	require.Equal(t, "Improved summary text", sess.CurrentSummary())
	require.Len(t, sess.History(), 1)
}

func TestService_AskFailureRestoresState(t *testing.T) {
	p := &fakeProvider{replies: []string{goodSummary, ""}, errs: []error{nil, ErrAuthRequired}}
	svc := NewService(p, config.Default().Assistant)
	sess := svc.Sessions().NewSession(sampleData())
	_, err := svc.Summarize(context.Background(), sess)
	require.NoError(t, err)

	_, err = svc.Ask(context.Background(), sess, "why?")
	require.ErrorIs(t, err, ErrAuthRequired)
	require.Equal(t, StateSummaryShown, sess.State())
	require.Empty(t, sess.History())
}

func TestService_StatusForHostedProvider(t *testing.T) {
	svc := NewService(&fakeProvider{replies: []string{"x"}}, config.Default().Assistant)
	st := svc.Status(context.Background())
	require.True(t, st.Available)
	require.Equal(t, "fake", st.Provider)
}
