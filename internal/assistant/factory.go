package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/alegriaw/chi-monthly-report-analyzer/config"
)

// NewProvider builds the configured backend wrapped in retry logic. runner is
// only used by the qcli provider and may be nil.
func NewProvider(ctx context.Context, cfg config.AssistantConfig, runner Runner) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderQCLI:
		p = NewQCLI(cfg.Binary, runner)
	case ProviderAnthropic:
		p, err = NewAnthropicProvider(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.MaxTokens)
	case ProviderOpenAI:
		p, err = NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.MaxTokens)
	case ProviderGemini:
		p, err = NewGeminiProvider(ctx, cfg.APIKey, cfg.Model, cfg.MaxTokens)
	case ProviderOllama:
		p, err = NewOllamaProvider(cfg.Model, cfg.BaseURL, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownProvider, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return WithRetry(p, DefaultRetryConfig(cfg.MaxRetries)), nil
}
