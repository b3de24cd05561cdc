package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alegriaw/chi-monthly-report-analyzer/internal/assistant"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/insights"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/report"
	"github.com/alegriaw/chi-monthly-report-analyzer/pkg/mcperr"
	"github.com/alegriaw/chi-monthly-report-analyzer/pkg/validation"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// SummaryInput selects the analysis to summarize, or an existing session to
// regenerate.
type SummaryInput struct {
	insights.CompareParams
	SessionID string `json:"session_id,omitempty" validate:"omitempty,uuid" jsonschema_description:"Regenerate the summary of this session instead of starting a new one; comparison inputs are then ignored"`
	Fallback  bool   `json:"fallback,omitempty" jsonschema_description:"On assistant failure return the standard summary instead of an error"`
}

// SummaryOutput is the result of generate_summary.
type SummaryOutput struct {
	SessionID       string          `json:"session_id"`
	State           assistant.State `json:"state"`
	Summary         string          `json:"summary"`
	Source          string          `json:"source" jsonschema_description:"ai or standard"`
	StandardSummary string          `json:"standard_summary"`
	AssistantError  string          `json:"assistant_error,omitempty"`
}

// ChatInput drives one step of a summary chat session.
type ChatInput struct {
	SessionID string `json:"session_id" validate:"required,uuid" jsonschema_description:"Session returned by generate_summary"`
	Action    string `json:"action,omitempty" validate:"omitempty,oneof=ask adopt revert clear_history" jsonschema_description:"ask (default), adopt (use the last answer as the summary), revert (back to the original summary), clear_history"`
	Question  string `json:"question,omitempty" validate:"omitempty,max=4000" jsonschema_description:"Question or rewrite request for action=ask"`
	Quick     string `json:"quick,omitempty" validate:"omitempty,oneof=improvements risks metrics" jsonschema_description:"Canned rewrite request used when question is empty"`
}

// ChatOutput reports the session after the action.
type ChatOutput struct {
	SessionID      string               `json:"session_id"`
	State          assistant.State      `json:"state"`
	Answer         string               `json:"answer,omitempty"`
	CurrentSummary string               `json:"current_summary"`
	Improved       bool                 `json:"improved"`
	History        []assistant.ChatTurn `json:"history"`
}

// StatusInput controls the availability probe and the q CLI account actions.
type StatusInput struct {
	Action  string `json:"action,omitempty" validate:"omitempty,oneof=status login logout" jsonschema_description:"status (default), login (check sign-in and return manual sign-in steps) or logout (sign the q CLI out)"`
	Refresh bool   `json:"refresh,omitempty" jsonschema_description:"Ignore the cached result and probe again"`
}

// StatusOutput is the assistant status after the requested action.
type StatusOutput struct {
	assistant.Status
	Action string   `json:"action"`
	Steps  []string `json:"steps,omitempty" jsonschema_description:"Manual sign-in steps when login is needed"`
}

// RegisterAssistantTools wires generate_summary, chat_summary and
// assistant_status.
func RegisterAssistantTools(s *server.MCPServer, reg *Registry, h *handlers) {
	gen := mcp.NewTool(
		"generate_summary",
		mcp.WithDescription("Generate a 200 to 300 word markdown monthly summary of a CHI comparison with the configured AI assistant and open a chat session for refining it. Accepts the analyze_scores comparison inputs, or session_id to regenerate. The deterministic standard summary is always returned alongside; with fallback=true it replaces the AI summary when the assistant fails. Errors include ASSISTANT_UNAVAILABLE, AUTH_REQUIRED, USAGE_LIMIT, TIMEOUT and FORMATTING_ERROR."),
		mcp.WithInputSchema[SummaryInput](),
		mcp.WithOutputSchema[SummaryOutput](),
	)
	add(s, reg, gen, mcp.NewTypedToolHandler(h.generateSummary))

	chat := mcp.NewTool(
		"chat_summary",
		mcp.WithDescription("Ask follow-up questions about a generated summary, or request a rewrite (quick: improvements, risks, metrics). The analysis digest and the current summary are sent as context. action=adopt makes the last answer the current summary, action=revert restores the original and action=clear_history drops the conversation. Invalid steps for the session state return VALIDATION."),
		mcp.WithInputSchema[ChatInput](),
		mcp.WithOutputSchema[ChatOutput](),
	)
	add(s, reg, chat, mcp.NewTypedToolHandler(h.chatSummary))

	status := mcp.NewTool(
		"assistant_status",
		mcp.WithDescription("Report whether the AI assistant can take requests. For the Amazon Q CLI this probes the installed version and login state; results are cached for ten minutes unless refresh=true. action=login reports the sign-in state and the manual sign-in steps; action=logout signs the q CLI out and clears the cached status. Hosted providers return ASSISTANT_UNAVAILABLE for login and logout."),
		mcp.WithInputSchema[StatusInput](),
		mcp.WithOutputSchema[StatusOutput](),
		mcp.WithReadOnlyHintAnnotation(false),
	)
	add(s, reg, status, mcp.NewTypedToolHandler(h.assistantStatus))
}

func (h *handlers) generateSummary(ctx context.Context, req mcp.CallToolRequest, in SummaryInput) (*mcp.CallToolResult, error) {
	svc := h.deps.Assistant
	if in.SessionID == "" {
		if msg := validation.ValidateStruct(in); msg != "" {
			return mcperr.FromText(msg), nil
		}
	} else if err := validation.Validator().Var(in.SessionID, "uuid"); err != nil {
		return mcperr.New(mcperr.Validation, "session_id must be a uuid"), nil
	}
	if svc == nil && !in.Fallback {
		return mcperr.New(mcperr.AssistantUnavailable, "no assistant provider configured"), nil
	}

	var sess *assistant.Session
	if in.SessionID != "" {
		if svc == nil {
			return toolError(assistant.ErrSessionNotFound), nil
		}
		var ok bool
		if sess, ok = svc.Sessions().Get(in.SessionID); !ok {
			return toolError(fmt.Errorf("%w: %s", assistant.ErrSessionNotFound, in.SessionID)), nil
		}
	} else {
		res, _, err := h.deps.Analyzer.Compare(ctx, in.CompareParams)
		if err != nil {
			return toolError(err), nil
		}
		data := assistant.SummaryDataFrom(res)
		if svc == nil {
			standard := report.StandardSummary(data.Counts, data.LowScore)
			out := SummaryOutput{Summary: standard, Source: "standard", StandardSummary: standard, AssistantError: "no assistant provider configured"}
			return structured(out, "source=standard", standard), nil
		}
		svc.Sessions().Prune(time.Now())
		sess = svc.Sessions().NewSession(data)
	}

	standard := report.StandardSummary(sess.Data.Counts, sess.Data.LowScore)
	out := SummaryOutput{SessionID: sess.ID, StandardSummary: standard}
	text, err := svc.Summarize(ctx, sess)
	switch {
	case err == nil:
		out.Summary, out.Source = text, "ai"
	case in.Fallback:
		zerolog.Ctx(ctx).Warn().Err(err).Str("session", sess.ID).Msg("assistant summary failed; using standard summary")
		if sess.State() != assistant.StateIdle {
			_ = sess.Regenerate()
		}
		if serr := sess.ShowSummary(standard); serr != nil {
			return toolError(serr), nil
		}
		out.Summary, out.Source, out.AssistantError = standard, "standard", assistant.UserMessage(err)
	default:
		return toolError(err), nil
	}
	out.State = sess.State()
	summary := fmt.Sprintf("session=%s source=%s", out.SessionID, out.Source)
	return structured(out, summary, out.Summary), nil
}

func (h *handlers) chatSummary(ctx context.Context, req mcp.CallToolRequest, in ChatInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	svc := h.deps.Assistant
	if svc == nil {
		return mcperr.New(mcperr.AssistantUnavailable, "no assistant provider configured"), nil
	}
	sess, ok := svc.Sessions().Get(in.SessionID)
	if !ok {
		return toolError(fmt.Errorf("%w: %s", assistant.ErrSessionNotFound, in.SessionID)), nil
	}

	out := ChatOutput{SessionID: sess.ID}
	var err error
	switch in.Action {
	case "", "ask":
		question := strings.TrimSpace(in.Question)
		if question == "" && in.Quick != "" {
			question, _ = assistant.QuickQuestion(in.Quick).Text()
		}
		if question == "" {
			return mcperr.New(mcperr.Validation, "question or quick is required for action=ask"), nil
		}
		out.Answer, err = svc.Ask(ctx, sess, question)
	case "adopt":
		err = sess.AdoptResponse()
	case "revert":
		err = sess.Revert()
	case "clear_history":
		err = sess.ClearHistory()
	}
	if err != nil {
		return toolError(err), nil
	}

	out.State = sess.State()
	out.CurrentSummary = sess.CurrentSummary()
	out.Improved = sess.Improved()
	out.History = sess.History()
	summary := fmt.Sprintf("session=%s state=%s turns=%d improved=%v", out.SessionID, out.State, len(out.History), out.Improved)
	text := out.Answer
	if text == "" {
		text = summary
	}
	return structured(out, summary, text), nil
}

func (h *handlers) assistantStatus(ctx context.Context, req mcp.CallToolRequest, in StatusInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	out := StatusOutput{Action: in.Action}
	if out.Action == "" {
		out.Action = "status"
	}
	svc := h.deps.Assistant
	if svc == nil {
		if out.Action != "status" {
			return mcperr.New(mcperr.AssistantUnavailable, "no assistant provider configured"), nil
		}
		out.Status = assistant.Status{Message: "No assistant provider configured", CheckedAt: time.Now()}
		return structured(out, statusSummary(out), out.Message), nil
	}
	if in.Refresh {
		svc.StatusCache().Clear()
	}

	switch out.Action {
	case "login":
		res, err := svc.Login(ctx)
		if err != nil {
			return toolError(err), nil
		}
		out.Status = svc.Status(ctx)
		out.Message, out.Steps = res.Message, res.Steps
	case "logout":
		if err := svc.Logout(ctx); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("q logout failed")
			return toolError(err), nil
		}
		out.Status = assistant.Status{Provider: svc.Provider().Name(), Message: "Logout successful!", CheckedAt: time.Now()}
	default:
		out.Status = svc.Status(ctx)
	}

	text := out.Message
	for i, step := range out.Steps {
		text += fmt.Sprintf("\n%d. %s", i+1, step)
	}
	return structured(out, statusSummary(out), text), nil
}

func statusSummary(out StatusOutput) string {
	return fmt.Sprintf("action=%s provider=%s available=%v cached=%v", out.Action, out.Provider, out.Available, out.Cached)
}
