package commands

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codemerge/internal/api"
	"github.com/Sumatoshi-tech/codemerge/internal/mcp"
	"github.com/Sumatoshi-tech/codemerge/internal/observability"
)

// MCPCommand holds the configuration for the mcp command.
type MCPCommand struct {
	debug       bool
	diagnostics string
}

func newMCPCommand() *cobra.Command {
	mc := &MCPCommand{}

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The MCP server exposes the merge engine as tools that AI agents can
discover and invoke:
  - codemerge_diff: line edit script between two texts
  - codemerge_merge: two-way merge, optionally on top of a saved tree
  - codemerge_merge3: three-way merge with conflict markers`,
		Args: cobra.NoArgs,
		RunE: mc.run,
	}

	cmd.Flags().BoolVar(&mc.debug, "debug", false, "enable debug logging to stderr")
	cmd.Flags().StringVar(&mc.diagnostics, "diagnostics", "", "serve /healthz, /readyz and /metrics on this address")

	return cmd
}

func (mc *MCPCommand) run(cmd *cobra.Command, _ []string) error {
	metricsHandler, meterProvider, err := observability.PrometheusHandler()
	if err != nil {
		return err
	}

	meter := meterProvider.Meter(observability.InstrumentationName)

	rt, err := newRuntime(cmd, observability.ModeMCP, meter, func(cfg *observability.Config) {
		if mc.debug {
			cfg.LogLevel = slog.LevelDebug
			cfg.TraceVerbose = true
		}
	})
	if err != nil {
		return err
	}
	defer rt.close()

	opts, err := rt.renderOptions(cmd)
	if err != nil {
		return err
	}

	red, err := observability.NewREDMetrics(meter)
	if err != nil {
		return err
	}

	if mc.diagnostics != "" {
		diag, diagErr := observability.NewDiagnosticsServer(mc.diagnostics, metricsHandler, rt.providers.Logger)
		if diagErr != nil {
			return diagErr
		}

		defer func() {
			closeErr := diag.Close(context.Background())
			if closeErr != nil {
				rt.providers.Logger.Warn("diagnostics shutdown failed", "error", closeErr)
			}
		}()

		rt.providers.Logger.Info("diagnostics listening", "addr", diag.Addr())
	}

	srv := mcp.NewServer(mcp.ServerDeps{
		API:     api.NewHandler(rt.svc, opts),
		Logger:  rt.providers.Logger,
		Metrics: red,
		Tracer:  rt.providers.Tracer,
	})

	return srv.Run(cmd.Context())
}
