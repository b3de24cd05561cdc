package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alegriaw/chi-monthly-report-analyzer/config"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/runtime"
	"github.com/rs/zerolog"
)

// CallObserver receives one event per provider call.
type CallObserver interface {
	OnAssistantCall(provider, op string, duration time.Duration, err error)
}

// Service runs summary and chat requests against a Provider, one at a time
// when a runtime controller is attached.
type Service struct {
	provider Provider
	cfg      config.AssistantConfig
	runner   Runner
	cache    *StatusCache
	sessions *SessionStore
	ctrl     *runtime.Controller
	observer CallObserver
}

// Option configures a Service.
type Option func(*Service)

// WithController serializes provider calls through ctrl's assistant slot.
func WithController(ctrl *runtime.Controller) Option {
	return func(s *Service) { s.ctrl = ctrl }
}

// WithObserver reports provider calls to o.
func WithObserver(o CallObserver) Option {
	return func(s *Service) { s.observer = o }
}

// WithRunner sets the command runner used by status probes and login/logout.
// A q CLI provider's own runner is used otherwise.
func WithRunner(r Runner) Option {
	return func(s *Service) { s.runner = r }
}

// WithStatusCache shares a status cache between services.
func WithStatusCache(c *StatusCache) Option {
	return func(s *Service) { s.cache = c }
}

// NewService wires p with the assistant settings in cfg.
func NewService(p Provider, cfg config.AssistantConfig, opts ...Option) *Service {
	s := &Service{provider: p, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.runner == nil {
		s.runner = ExecRunner{}
		if q, ok := unwrapQCLI(p); ok {
			s.runner = q.runner
		}
	}
	if s.cache == nil {
		s.cache = NewStatusCache(cfg.StatusTTL)
	}
	if s.sessions == nil {
		s.sessions = NewSessionStore(config.DefaultChatHistoryKeep, time.Hour)
	}
	return s
}

// Provider returns the configured backend.
func (s *Service) Provider() Provider { return s.provider }

// Sessions exposes the chat session store.
func (s *Service) Sessions() *SessionStore { return s.sessions }

// StatusCache exposes the probe cache so callers can clear it.
func (s *Service) StatusCache() *StatusCache { return s.cache }

func (s *Service) call(ctx context.Context, op string, timeout time.Duration, prompt string) (string, error) {
	if s.ctrl != nil {
		if err := s.ctrl.AcquireAssistant(ctx); err != nil {
			return "", fmt.Errorf("%w: waiting for assistant slot: %v", ErrTimeout, err)
		}
		defer s.ctrl.ReleaseAssistant()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logger := zerolog.Ctx(ctx).With().Str("provider", s.provider.Name()).Str("op", op).Logger()
	logger.Debug().Int("prompt_len", len(prompt)).Msg("sending assistant request")

	start := time.Now()
	resp, err := s.provider.Generate(ctx, Request{Prompt: prompt, MaxTokens: s.cfg.MaxTokens})
	if err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = ErrTimeout
	}
	var text string
	if err == nil {
		text = CleanOutput(resp.Text)
		if text == "" {
			err = ErrEmptyResponse
		}
	}
	if s.observer != nil {
		s.observer.OnAssistantCall(s.provider.Name(), op, time.Since(start), err)
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// GenerateSummary asks for the monthly markdown summary of d.
func (s *Service) GenerateSummary(ctx context.Context, d SummaryData) (string, error) {
	text, err := s.call(ctx, "summary", s.timeout(s.cfg.SummaryTimeout, config.DefaultSummaryTimeout), BuildSummaryPrompt(d))
	if err != nil {
		return "", err
	}
	if err := checkFormatting(text); err != nil {
		zerolog.Ctx(ctx).Warn().Str("preview", preview(text, 200)).Msg("assistant output has formatting issues")
		return "", err
	}
	return text, nil
}

// Chat sends question with an optional context preamble.
func (s *Service) Chat(ctx context.Context, question, chatContext string) (string, error) {
	return s.call(ctx, "chat", s.timeout(s.cfg.ChatTimeout, config.DefaultChatTimeout), BuildChatPrompt(chatContext, question))
}

// Summarize generates a summary for sess and shows it. A session that
// already holds a summary is regenerated first.
func (s *Service) Summarize(ctx context.Context, sess *Session) (string, error) {
	if sess.State() != StateIdle {
		if err := sess.Regenerate(); err != nil {
			return "", err
		}
	}
	text, err := s.GenerateSummary(ctx, sess.Data)
	if err != nil {
		return "", err
	}
	if err := sess.ShowSummary(text); err != nil {
		return "", err
	}
	return text, nil
}

// Ask runs one chat round on sess using its current summary as context.
func (s *Service) Ask(ctx context.Context, sess *Session, question string) (string, error) {
	chatCtx := BuildChatContext(sess.Data, sess.CurrentSummary())
	if err := sess.Ask(question); err != nil {
		return "", err
	}
	answer, err := s.Chat(ctx, question, chatCtx)
	if err != nil {
		if ferr := sess.Fail(); ferr != nil {
			return "", errors.Join(err, ferr)
		}
		return "", err
	}
	if err := sess.Respond(answer); err != nil {
		return "", err
	}
	return answer, nil
}

// Status reports whether the backend can take requests. Only the q CLI is
// probed; hosted providers are reported as configured.
func (s *Service) Status(ctx context.Context) Status {
	q, ok := unwrapQCLI(s.provider)
	if !ok {
		return Status{Provider: s.provider.Name(), Available: true, Message: "Configured", CheckedAt: time.Now()}
	}
	return CheckStatus(ctx, s.runner, q.Binary(), s.cache)
}

// Login checks the q CLI sign-in state. Hosted providers return ErrNoCLIAccount.
func (s *Service) Login(ctx context.Context) (LoginResult, error) {
	q, ok := unwrapQCLI(s.provider)
	if !ok {
		return LoginResult{}, ErrNoCLIAccount
	}
	return Login(ctx, s.runner, q.Binary(), s.cache)
}

// Logout signs the q CLI out. Hosted providers return ErrNoCLIAccount.
func (s *Service) Logout(ctx context.Context) error {
	q, ok := unwrapQCLI(s.provider)
	if !ok {
		return ErrNoCLIAccount
	}
	return Logout(ctx, s.runner, q.Binary(), s.cache)
}

func unwrapQCLI(p Provider) (*QCLI, bool) {
	if r, ok := p.(*retryProvider); ok {
		p = r.inner
	}
	q, ok := p.(*QCLI)
	return q, ok
}

func (s *Service) timeout(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}

// checkFormatting rejects output that is too short or still carries
// bracketed escape residue near the top.
func checkFormatting(text string) error {
	r := []rune(text)
	if len(r) < 50 {
		return fmt.Errorf("%w: output too short (%d chars)", ErrFormatting, len(r))
	}
	head := r
	if len(head) > 100 {
		head = head[:100]
	}
	for _, c := range head {
		if c == '[' {
			return fmt.Errorf("%w: bracket in output head", ErrFormatting)
		}
	}
	return nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
