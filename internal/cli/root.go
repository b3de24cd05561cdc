package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/alegriaw/chi-monthly-report-analyzer/config"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/assistant"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/insights"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/runtime"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/telemetry"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/workbooks"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// ProviderFactory builds the assistant backend from config.
type ProviderFactory func(ctx context.Context, cfg config.AssistantConfig) (assistant.Provider, error)

func defaultProvider(ctx context.Context, cfg config.AssistantConfig) (assistant.Provider, error) {
	return assistant.NewProvider(ctx, cfg, nil)
}

// app holds the state shared by every subcommand of one invocation.
type app struct {
	cfgPath   string
	logLevel  string
	threshold float64

	cfg    *config.Config
	logger zerolog.Logger

	newProvider ProviderFactory
}

// Option customizes the root command, mainly for tests.
type Option func(*app)

// WithProviderFactory replaces the assistant provider constructor.
func WithProviderFactory(f ProviderFactory) Option {
	return func(a *app) { a.newProvider = f }
}

// NewRootCmd assembles the chi command tree.
func NewRootCmd(opts ...Option) *cobra.Command {
	a := &app{newProvider: defaultProvider, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(a)
	}

	root := &cobra.Command{
		Use:           "chi",
		Short:         "CHI low security score analyzer",
		Long:          "Compare monthly Customer Health Index exports, classify customers moving in and out of the low security score zone, and report the trend.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "Path to a YAML config file (default $XDG_CONFIG_HOME/chi/config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config and CHI_LOG_LEVEL)")
	root.PersistentFlags().Float64Var(&a.threshold, "threshold", 0, "Low score threshold; scores strictly below it are red (default 42)")

	root.AddCommand(
		a.analyzeCmd(),
		a.trendCmd(),
		a.exportCmd(),
		a.summaryCmd(),
		a.chatCmd(),
		a.statusCmd(),
		a.loginCmd(),
		a.logoutCmd(),
		a.serveCmd(),
		versionCmd(),
	)
	return root
}

// Execute runs the CLI against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "chi", "config.yaml")
}

// setup loads configuration, applies flag overrides and configures logging.
func (a *app) setup(cmd *cobra.Command) error {
	path := a.cfgPath
	if path == "" {
		path = defaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("threshold") {
		cfg.Analysis.Threshold = a.threshold
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Logging)
	if err != nil {
		return err
	}
	a.logger = logger
	cmd.SetContext(logger.WithContext(cmd.Context()))
	return nil
}

// newLogger builds the process logger. Console output is used on terminals
// when enabled; otherwise JSON lines are written.
func newLogger(w io.Writer, cfg config.LoggingConfig) (zerolog.Logger, error) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	if s := strings.TrimSpace(cfg.Level); s != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(s))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
		level = l
	}
	out := w
	if cfg.Console && isTerminal(w) {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "chi").Logger(), nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// analyzer returns an Analyzer over a private handle manager and a release
// func that finishes the progress bar and closes the manager. Release is
// safe to call more than once.
func (a *app) analyzer(cmd *cobra.Command) (*insights.Analyzer, func()) {
	limits := runtime.NewLimitsFromConfig(a.cfg)
	mgr := workbooks.NewManager(config.DefaultWorkbookIdleTTL, config.DefaultWorkbookCleanupPeriod, nil, time.Now)
	an := &insights.Analyzer{Limits: limits, Mgr: mgr, Config: a.cfg.Analysis}
	if bar := newSheetProgress(cmd.ErrOrStderr()); bar != nil {
		an.Progress = func(sheet string) {
			bar.Describe("reading " + sheet)
			_ = bar.Add(1)
		}
		return an, sync.OnceFunc(func() {
			_ = bar.Finish()
			_ = mgr.Close(context.Background())
		})
	}
	return an, sync.OnceFunc(func() { _ = mgr.Close(context.Background()) })
}

// assistantService builds the configured provider wrapped in a Service that
// logs each call through the telemetry hooks.
func (a *app) assistantService(ctx context.Context) (*assistant.Service, error) {
	p, err := a.newProvider(ctx, a.cfg.Assistant)
	if err != nil {
		return nil, err
	}
	hooks := telemetry.NewHooks(a.logger)
	return assistant.NewService(p, a.cfg.Assistant, assistant.WithObserver(hooks)), nil
}

// compareFlags registers the comparison selectors shared by several commands.
func compareFlags(cmd *cobra.Command, p *insights.CompareParams) {
	cmd.Flags().StringVar(&p.Mode, "mode", "", "Comparison mode: columns (default) or sheets")
	cmd.Flags().StringVar(&p.Sheet, "sheet", "", "Sheet for columns mode (default Sheet1)")
	cmd.Flags().StringVar(&p.Prev, "prev", "", "Previous period column (columns mode) or sheet (sheets mode)")
	cmd.Flags().StringVar(&p.Curr, "curr", "", "Current period column (columns mode) or sheet (sheets mode)")
}
