package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const defaultOllamaModel = "llama3.1"

// LangChainProvider adapts any langchaingo model; the ollama backend is the
// one wired by NewProvider.
type LangChainProvider struct {
	name      string
	model     llms.Model
	maxTokens int
}

// NewLangChainProvider wraps model under name.
func NewLangChainProvider(name string, model llms.Model, maxTokens int) *LangChainProvider {
	return &LangChainProvider{name: name, model: model, maxTokens: maxTokens}
}

// NewOllamaProvider talks to a local Ollama server. An empty serverURL uses
// the library default.
func NewOllamaProvider(model, serverURL string, maxTokens int) (*LangChainProvider, error) {
	if model == "" {
		model = defaultOllamaModel
	}
	opts := []ollama.Option{ollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("assistant: create ollama client: %w", err)
	}
	return NewLangChainProvider(ProviderOllama, llm, maxTokens), nil
}

func (p *LangChainProvider) Name() string { return p.name }

func (p *LangChainProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	var msgs []llms.MessageContent
	if req.System != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	resp, err := p.model.GenerateContent(ctx, msgs, llms.WithMaxTokens(pickMaxTokens(req.MaxTokens, p.maxTokens)))
	if err != nil {
		if ctx.Err() != nil {
			return nil, contextError(ctx)
		}
		return nil, &ProviderError{Provider: p.name, Err: err}
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return nil, ErrEmptyResponse
	}
	return &Response{Text: text}, nil
}
