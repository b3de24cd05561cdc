package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/alegriaw/chi-monthly-report-analyzer/pkg/mcperr"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// Middleware wraps every MCP tool call with the Controller's request slot and
// the tool's time budget.
type Middleware struct {
	ctrl   *Controller
	logger zerolog.Logger
}

func NewMiddleware(ctrl *Controller, logger zerolog.Logger) *Middleware {
	return &Middleware{ctrl: ctrl, logger: logger}
}

// ToolMiddleware is installed with server.WithToolHandlerMiddleware. A call
// that cannot get a slot returns BUSY_RESOURCE; a call that outlives its
// budget returns TIMEOUT. Both are tool results, not transport errors.
func (m *Middleware) ToolMiddleware(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limits := m.ctrl.limits
		tool := req.Params.Name
		log := m.logger.With().Str("tool", tool).Logger()

		if err := m.acquire(ctx, limits.AcquireRequestTimeout); err != nil {
			log.Warn().Int("max", limits.MaxConcurrentRequests).Msg("request limit reached")
			return mcperr.Wrapf(mcperr.BusyResource, "%d tool calls already running", limits.MaxConcurrentRequests), nil
		}
		defer m.ctrl.ReleaseRequest()

		budget := limits.TimeoutFor(tool)
		callCtx, cancel := log.WithContext(ctx), context.CancelFunc(func() {})
		if budget > 0 {
			callCtx, cancel = context.WithTimeout(callCtx, budget)
		}
		defer cancel()

		start := time.Now()
		res, err := next(callCtx, req)
		elapsed := time.Since(start)

		if errors.Is(err, context.DeadlineExceeded) || (err == nil && res == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded)) {
			log.Warn().Dur("budget", budget).Dur("elapsed", elapsed).Msg("tool call timed out")
			return mcperr.Wrapf(mcperr.Timeout, "%s exceeded its %s limit", tool, budget), nil
		}
		log.Debug().Dur("elapsed", elapsed).Bool("is_error", res != nil && res.IsError).Msg("tool call finished")
		return res, err
	}
}

func (m *Middleware) acquire(ctx context.Context, wait time.Duration) error {
	if wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}
	return m.ctrl.AcquireRequest(ctx)
}
