package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the user-facing configuration for the analyzer CLI and MCP server.
type Config struct {
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Assistant AssistantConfig `yaml:"assistant"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AnalysisConfig controls classification and header detection.
type AnalysisConfig struct {
	Threshold      float64  `yaml:"threshold"`
	CurrentSheet   string   `yaml:"current_sheet"`
	HeaderKeywords []string `yaml:"header_keywords,omitempty"`
	HeaderScanRows int      `yaml:"header_scan_rows"`
}

// AssistantConfig selects and tunes the AI summary provider.
type AssistantConfig struct {
	Provider       string        `yaml:"provider"`
	Model          string        `yaml:"model,omitempty"`
	APIKey         string        `yaml:"api_key,omitempty"`
	BaseURL        string        `yaml:"base_url,omitempty"`
	Binary         string        `yaml:"binary,omitempty"`
	MaxTokens      int           `yaml:"max_tokens"`
	SummaryTimeout time.Duration `yaml:"summary_timeout"`
	ChatTimeout    time.Duration `yaml:"chat_timeout"`
	StatusTTL      time.Duration `yaml:"status_ttl"`
	MaxRetries     int           `yaml:"max_retries"`
}

// ServerConfig carries MCP server guardrails.
type ServerConfig struct {
	AllowedDirs           []string      `yaml:"allowed_dirs,omitempty"`
	EnableWrites          bool          `yaml:"enable_writes"`
	MaxConcurrentRequests int           `yaml:"max_concurrent_requests"`
	MaxOpenWorkbooks      int           `yaml:"max_open_workbooks"`
	OperationTimeout      time.Duration `yaml:"operation_timeout"`
	ShutdownTimeout       time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig controls zerolog output.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			Threshold:      DefaultThreshold,
			CurrentSheet:   DefaultCurrentSheet,
			HeaderKeywords: []string{"Customer", "Security", "Overall"},
			HeaderScanRows: DefaultHeaderScanRows,
		},
		Assistant: AssistantConfig{
			Provider:       DefaultProvider,
			Binary:         DefaultQCLIBinary,
			MaxTokens:      DefaultMaxTokens,
			SummaryTimeout: DefaultSummaryTimeout,
			ChatTimeout:    DefaultChatTimeout,
			StatusTTL:      DefaultStatusCacheTTL,
			MaxRetries:     2,
		},
		Server: ServerConfig{
			MaxConcurrentRequests: DefaultMaxConcurrentRequests,
			MaxOpenWorkbooks:      DefaultMaxOpenWorkbooks,
			OperationTimeout:      DefaultOperationTimeout,
			ShutdownTimeout:       5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Load reads a YAML config file on top of the defaults and then applies
// CHI_* environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("CHI_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("config: CHI_THRESHOLD: %w", err)
		}
		c.Analysis.Threshold = f
	}
	if v := os.Getenv("CHI_PROVIDER"); v != "" {
		c.Assistant.Provider = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("CHI_MODEL"); v != "" {
		c.Assistant.Model = v
	}
	if v := os.Getenv("CHI_Q_BINARY"); v != "" {
		c.Assistant.Binary = v
	}
	if v := os.Getenv("CHI_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CHI_ALLOWED_DIRS"); v != "" {
		c.Server.AllowedDirs = filepath.SplitList(v)
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("CHI_ENABLE_WRITES"))); v != "" {
		c.Server.EnableWrites = v == "1" || v == "true" || v == "yes"
	}

	// Provider API keys; only consulted when no key was configured explicitly.
	if c.Assistant.APIKey == "" {
		switch c.Assistant.Provider {
		case "anthropic":
			c.Assistant.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "openai":
			c.Assistant.APIKey = os.Getenv("OPENAI_API_KEY")
		case "gemini":
			c.Assistant.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
	return nil
}

// Validate reports configuration values that cannot work.
func (c *Config) Validate() error {
	if c.Analysis.Threshold < 0 || c.Analysis.Threshold > 100 {
		return fmt.Errorf("config: threshold must be within [0,100], got %v", c.Analysis.Threshold)
	}
	if c.Analysis.HeaderScanRows <= 0 {
		return fmt.Errorf("config: header_scan_rows must be positive")
	}
	switch c.Assistant.Provider {
	case "qcli", "ollama":
	case "anthropic", "openai", "gemini":
		if c.Assistant.APIKey == "" {
			return fmt.Errorf("config: provider %q requires an API key", c.Assistant.Provider)
		}
	default:
		return fmt.Errorf("config: unknown assistant provider %q", c.Assistant.Provider)
	}
	if c.Assistant.SummaryTimeout <= 0 || c.Assistant.ChatTimeout <= 0 {
		return fmt.Errorf("config: assistant timeouts must be positive")
	}
	return nil
}
