package registry

import (
	"context"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// WriteToolFilter hides tools that write to disk unless writes are enabled
// in config or with CHI_ENABLE_WRITES=true.
type WriteToolFilter struct {
	allowWrites bool
}

// NewWriteToolFilter enables writes when enabled is set or the environment
// variable CHI_ENABLE_WRITES is truthy.
func NewWriteToolFilter(enabled bool) *WriteToolFilter {
	return &WriteToolFilter{allowWrites: enabled || envTrue("CHI_ENABLE_WRITES")}
}

// AllowWrites reports whether write tools are exposed.
func (f *WriteToolFilter) AllowWrites() bool { return f.allowWrites }

func envTrue(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes"
}

// FilterTools implements server tool filtering semantics. When writes are
// disabled, tools prefixed export_ or write_ are excluded from discovery.
func (f *WriteToolFilter) FilterTools(ctx context.Context, tools []mcp.Tool) []mcp.Tool {
	if f.allowWrites {
		return tools
	}
	out := make([]mcp.Tool, 0, len(tools))
	for _, t := range tools {
		if isWriteTool(t.Name) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func isWriteTool(name string) bool {
	name = strings.ToLower(name)
	return strings.HasPrefix(name, "export_") || strings.HasPrefix(name, "write_")
}
