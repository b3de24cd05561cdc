package runtime

import (
	"context"
	"time"

	"github.com/alegriaw/chi-monthly-report-analyzer/config"
	"golang.org/x/sync/semaphore"
)

// Limits captures the concurrency and workbook guardrails configured for the server.
type Limits struct {
	// Concurrency caps
	MaxConcurrentRequests int
	MaxOpenWorkbooks      int
	MaxAssistantCalls     int

	// Row and page bounds
	MaxRowsPerSheet int
	DefaultPageSize int
	MaxPageSize     int

	// Timeouts
	OperationTimeout      time.Duration
	AcquireRequestTimeout time.Duration
	// ToolTimeouts overrides OperationTimeout per tool name; assistant tools
	// wait on slow model backends.
	ToolTimeouts map[string]time.Duration
}

// NewLimits initializes Limits with sensible fallbacks when values are unset.
func NewLimits(maxConcurrentRequests, maxOpenWorkbooks int) Limits {
	if maxConcurrentRequests <= 0 {
		maxConcurrentRequests = config.DefaultMaxConcurrentRequests
	}
	if maxOpenWorkbooks <= 0 {
		maxOpenWorkbooks = config.DefaultMaxOpenWorkbooks
	}

	return Limits{
		MaxConcurrentRequests: maxConcurrentRequests,
		MaxOpenWorkbooks:      maxOpenWorkbooks,
		MaxAssistantCalls:     config.DefaultMaxAssistantCalls,
		MaxRowsPerSheet:       config.DefaultMaxRowsPerSheet,
		DefaultPageSize:       config.DefaultPageSize,
		MaxPageSize:           config.DefaultMaxPageSize,
		OperationTimeout:      config.DefaultOperationTimeout,
		AcquireRequestTimeout: config.DefaultAcquireRequestTimeout,
		ToolTimeouts:          map[string]time.Duration{},
	}
}

// NewLimitsFromConfig derives Limits from the loaded configuration. Assistant
// tools get the summary and chat timeouts plus a small margin for queueing.
func NewLimitsFromConfig(cfg *config.Config) Limits {
	l := NewLimits(cfg.Server.MaxConcurrentRequests, cfg.Server.MaxOpenWorkbooks)
	if cfg.Server.OperationTimeout > 0 {
		l.OperationTimeout = cfg.Server.OperationTimeout
	}
	margin := 5 * time.Second
	l.ToolTimeouts["generate_summary"] = cfg.Assistant.SummaryTimeout + margin
	l.ToolTimeouts["chat_summary"] = cfg.Assistant.ChatTimeout + margin
	l.ToolTimeouts["assistant_status"] = config.DefaultStatusProbeTimeout + 2*config.DefaultLoginProbeTimeout + margin
	return l
}

// TimeoutFor returns the execution bound for a tool call.
func (l Limits) TimeoutFor(tool string) time.Duration {
	if d, ok := l.ToolTimeouts[tool]; ok && d > 0 {
		return d
	}
	return l.OperationTimeout
}

// Controller coordinates runtime semaphores for request, workbook and
// assistant guardrails.
type Controller struct {
	limits             Limits
	requestSemaphore   *semaphore.Weighted
	workbookSemaphore  *semaphore.Weighted
	assistantSemaphore *semaphore.Weighted
}

// NewController constructs a Controller backed by weighted semaphores.
func NewController(limits Limits) *Controller {
	assistant := limits.MaxAssistantCalls
	if assistant <= 0 {
		assistant = config.DefaultMaxAssistantCalls
	}
	return &Controller{
		limits:             limits,
		requestSemaphore:   semaphore.NewWeighted(int64(limits.MaxConcurrentRequests)),
		workbookSemaphore:  semaphore.NewWeighted(int64(limits.MaxOpenWorkbooks)),
		assistantSemaphore: semaphore.NewWeighted(int64(assistant)),
	}
}

// AcquireRequest reserves capacity for an incoming request.
func (c *Controller) AcquireRequest(ctx context.Context) error {
	return c.requestSemaphore.Acquire(ctx, 1)
}

// ReleaseRequest frees previously-acquired request capacity.
func (c *Controller) ReleaseRequest() {
	c.requestSemaphore.Release(1)
}

// AcquireWorkbook reserves an open workbook slot.
func (c *Controller) AcquireWorkbook(ctx context.Context) error {
	return c.workbookSemaphore.Acquire(ctx, 1)
}

// ReleaseWorkbook frees an open workbook slot.
func (c *Controller) ReleaseWorkbook() {
	c.workbookSemaphore.Release(1)
}

// AcquireAssistant serializes calls into the AI assistant backend.
func (c *Controller) AcquireAssistant(ctx context.Context) error {
	return c.assistantSemaphore.Acquire(ctx, 1)
}

// ReleaseAssistant frees the assistant slot.
func (c *Controller) ReleaseAssistant() {
	c.assistantSemaphore.Release(1)
}

// LimitsSnapshot exposes the configured guardrails for telemetry and discovery.
func (c *Controller) LimitsSnapshot() Limits {
	return c.limits
}
