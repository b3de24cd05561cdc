package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alegriaw/chi-monthly-report-analyzer/config"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/assistant"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/insights"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/registry"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/runtime"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/security"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/telemetry"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/workbooks"
	"github.com/alegriaw/chi-monthly-report-analyzer/pkg/version"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// mcpServer is a configured server plus the resources to release on exit.
type mcpServer struct {
	srv      *server.MCPServer
	registry *registry.Registry
	hooks    *telemetry.Hooks
	mgr      *workbooks.Manager
}

// buildServer wires security, limits, workbooks, the assistant and the tool
// registry into an MCP server.
func (a *app) buildServer(ctx context.Context) (*mcpServer, error) {
	logger := a.logger.With().Str("component", "mcp").Logger()

	secMgr, err := security.NewManager(a.cfg.Server.AllowedDirs, nil)
	if err != nil {
		return nil, fmt.Errorf("security: %w", err)
	}
	if err := secMgr.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("no allowed directories configured; set CHI_ALLOWED_DIRS: %w", err)
	}
	logger.Info().Strs("allowed_dirs", secMgr.AllowedDirectories()).Msg("security allow-list configured")

	limits := runtime.NewLimitsFromConfig(a.cfg)
	ctrl := runtime.NewController(limits)
	mgr := workbooks.NewManager(config.DefaultWorkbookIdleTTL, config.DefaultWorkbookCleanupPeriod, ctrl, time.Now)
	mgr.SetValidator(secMgr)

	hooks := telemetry.NewHooks(logger)

	var svc *assistant.Service
	if p, err := a.newProvider(ctx, a.cfg.Assistant); err != nil {
		logger.Warn().Err(err).Str("provider", a.cfg.Assistant.Provider).Msg("assistant disabled")
	} else {
		svc = assistant.NewService(p, a.cfg.Assistant, assistant.WithController(ctrl), assistant.WithObserver(hooks))
	}

	writeFilter := registry.NewWriteToolFilter(a.cfg.Server.EnableWrites)
	srv := server.NewMCPServer(
		"CHI Monthly Report Analyzer",
		version.Version(),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(hooks.Server()),
		server.WithToolHandlerMiddleware(runtime.NewMiddleware(ctrl, logger).ToolMiddleware),
		server.WithToolFilter(func(ctx context.Context, tools []mcp.Tool) []mcp.Tool { return writeFilter.FilterTools(ctx, tools) }),
	)

	reg := registry.New()
	registry.RegisterAll(srv, reg, registry.Deps{
		Analyzer:    &insights.Analyzer{Limits: limits, Mgr: mgr, Config: a.cfg.Analysis},
		Security:    secMgr,
		Assistant:   svc,
		Config:      a.cfg,
		AllowWrites: writeFilter.AllowWrites(),
	})

	snap := ctrl.LimitsSnapshot()
	logger.Info().
		Str("version", version.Version()).
		Int("max_concurrent_requests", snap.MaxConcurrentRequests).
		Int("max_open_workbooks", snap.MaxOpenWorkbooks).
		Dur("operation_timeout", snap.OperationTimeout).
		Bool("writes", writeFilter.AllowWrites()).
		Bool("assistant", svc != nil).
		Msg("server bootstrap configured")

	return &mcpServer{srv: srv, registry: reg, hooks: hooks, mgr: mgr}, nil
}

func (a *app) serveCmd() *cobra.Command {
	var stdio bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !stdio {
				return errors.New("no transport selected; use --stdio to run over stdio")
			}
			s, err := a.buildServer(cmd.Context())
			if err != nil {
				return err
			}
			s.mgr.Start()
			s.hooks.OnServerStart()
			defer func() {
				s.hooks.OnServerStop()
				shutdown := a.cfg.Server.ShutdownTimeout
				if shutdown <= 0 {
					shutdown = 5 * time.Second
				}
				ctx, cancel := context.WithTimeout(context.Background(), shutdown)
				defer cancel()
				if err := s.mgr.Close(ctx); err != nil {
					zerolog.Ctx(cmd.Context()).Warn().Err(err).Msg("workbook cleanup incomplete")
				}
			}()

			// Transport errors go to stderr so clients don't misread stdout.
			if err := server.ServeStdio(s.srv); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&stdio, "stdio", false, "Serve MCP over stdin/stdout")
	return cmd
}

func versionCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the current version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				fmt.Fprintln(cmd.OutOrStdout(), version.Build().String())
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "chi", version.Version())
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Include VCS revision and Go version")
	return cmd
}
