package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// Hooks implements mcp-go server lifecycle callbacks for basic telemetry and
// logging, and times tool calls between the before and after hooks.
type Hooks struct {
	logger zerolog.Logger

	mu      sync.Mutex
	started map[string]time.Time
	now     func() time.Time
}

// NewHooks constructs a Hooks instance with the provided logger.
func NewHooks(logger zerolog.Logger) *Hooks {
	return &Hooks{logger: logger, started: map[string]time.Time{}, now: time.Now}
}

// Server builds the mcp-go hook set bound to this instance.
func (h *Hooks) Server() *server.Hooks {
	hooks := &server.Hooks{}

	hooks.AddOnRegisterSession(func(ctx context.Context, session server.ClientSession) {
		h.OnSessionStart(session.SessionID())
	})
	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		h.OnSessionEnd(session.SessionID())
	})
	hooks.AddAfterListTools(func(ctx context.Context, id any, req *mcp.ListToolsRequest, res *mcp.ListToolsResult) {
		h.logger.Debug().Int("tools", len(res.Tools)).Msg("list_tools served")
	})
	hooks.AddBeforeCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest) {
		h.mu.Lock()
		h.started[fmt.Sprint(id)] = h.now()
		h.mu.Unlock()
	})
	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, res *mcp.CallToolResult) {
		var err error
		if res != nil && res.IsError {
			err = fmt.Errorf("%s", firstText(res))
		}
		h.OnToolCall(sessionID(ctx), req.Params.Name, h.elapsed(id), err)
	})
	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		h.logger.Error().Str("method", string(method)).Err(err).Msg("request error")
	})
	return hooks
}

func (h *Hooks) elapsed(id any) time.Duration {
	key := fmt.Sprint(id)
	h.mu.Lock()
	defer h.mu.Unlock()
	start, ok := h.started[key]
	if !ok {
		return 0
	}
	delete(h.started, key)
	return h.now().Sub(start)
}

func sessionID(ctx context.Context) string {
	if s := server.ClientSessionFromContext(ctx); s != nil {
		return s.SessionID()
	}
	return ""
}

func firstText(res *mcp.CallToolResult) string {
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return "tool error"
}

// OnServerStart is called when the server begins accepting connections.
func (h *Hooks) OnServerStart() {
	h.logger.Info().Msg("MCP server starting")
}

// OnServerStop is called during server shutdown.
func (h *Hooks) OnServerStop() {
	h.logger.Info().Msg("MCP server stopping")
}

// OnSessionStart records the start of a client session.
func (h *Hooks) OnSessionStart(sessionID string) {
	h.logger.Info().Str("session_id", sessionID).Msg("session started")
}

// OnSessionEnd records the end of a client session.
func (h *Hooks) OnSessionEnd(sessionID string) {
	h.logger.Info().Str("session_id", sessionID).Msg("session ended")
}

// OnToolCall logs tool invocations and their outcomes.
func (h *Hooks) OnToolCall(sessionID, toolName string, duration time.Duration, err error) {
	if err != nil {
		h.logger.Warn().Str("session_id", sessionID).Str("tool", toolName).Dur("duration", duration).Err(err).Msg("tool call error")
		return
	}
	h.logger.Info().Str("session_id", sessionID).Str("tool", toolName).Dur("duration", duration).Msg("tool call completed")
}

// OnAssistantCall logs one round trip to the AI assistant backend.
func (h *Hooks) OnAssistantCall(provider, op string, duration time.Duration, err error) {
	if err != nil {
		h.logger.Warn().Str("provider", provider).Str("op", op).Dur("duration", duration).Err(err).Msg("assistant call failed")
		return
	}
	h.logger.Info().Str("provider", provider).Str("op", op).Dur("duration", duration).Msg("assistant call completed")
}
