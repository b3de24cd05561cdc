package assistant

import "context"

// Provider is the text generation backend behind summaries and chat.
type Provider interface {
	// Generate sends one prompt and returns the cleaned reply.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Name identifies the backend in logs and status output.
	Name() string
}

// Request describes a single prompt.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Response is the provider reply.
type Response struct {
	Text  string
	Model string
}

// Provider names accepted by NewProvider.
const (
	ProviderQCLI      = "qcli"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
)

// resolveModel maps a friendly model name to a provider model ID, falling
// back to def when name is empty.
func resolveModel(name, def string, models map[string]string) string {
	if name == "" {
		return def
	}
	if id, ok := models[name]; ok {
		return id
	}
	return name
}
