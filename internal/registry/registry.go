package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/alegriaw/chi-monthly-report-analyzer/config"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/assistant"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/insights"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/security"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Deps are the services tool handlers call into. Assistant may be nil, in
// which case the assistant tools report ASSISTANT_UNAVAILABLE.
type Deps struct {
	Analyzer  *insights.Analyzer
	Security  *security.Manager
	Assistant *assistant.Service
	Config    *config.Config

	// AllowWrites gates export_report at call time as well as discovery.
	AllowWrites bool
}

// Registry keeps the tool definitions registered on the server for discovery.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]mcp.Tool
}

// New constructs an empty Registry ready for tool population.
func New() *Registry {
	return &Registry{
		tools: map[string]mcp.Tool{},
	}
}

// Register stores a tool definition for discovery.
func (r *Registry) Register(tool mcp.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tools[tool.Name] = tool
}

// Get returns a tool by name when present.
func (r *Registry) Get(name string) (mcp.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Tools returns a stable-sorted list of registered tool definitions.
func (r *Registry) Tools(ctx context.Context) ([]mcp.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]mcp.Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}

	sort.Slice(tools, func(i, j int) bool {
		return tools[i].Name < tools[j].Name
	})

	return tools, ctx.Err()
}

// RegisterAll adds every CHI tool to s and records it in reg.
func RegisterAll(s *server.MCPServer, reg *Registry, deps Deps) {
	h := &handlers{deps: deps}
	RegisterFoundationTools(s, reg, h)
	RegisterInsightsTools(s, reg, h)
	RegisterAssistantTools(s, reg, h)
	RegisterExportTools(s, reg, h)
}

// handlers carries Deps into the typed tool handler methods.
type handlers struct {
	deps Deps
}

// add registers tool on the server and in the registry in one step.
func add(s *server.MCPServer, reg *Registry, tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.AddTool(tool, handler)
	reg.Register(tool)
}

// structured builds a result carrying out as structured content with a text
// rendering for clients that ignore structured output.
func structured(out any, summary, text string) *mcp.CallToolResult {
	res := mcp.NewToolResultStructured(out, summary)
	if text == "" {
		text = summary
	}
	res.Content = []mcp.Content{mcp.NewTextContent(text)}
	return res
}

// previewHeader returns a bounded preview slice for compact summaries.
func previewHeader(h []string, n int) []string {
	if len(h) <= n {
		return h
	}
	return h[:n]
}
