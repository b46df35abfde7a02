// Package commands implements CLI command handlers for codemerge.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"

	"github.com/Sumatoshi-tech/codemerge/internal/observability"
	"github.com/Sumatoshi-tech/codemerge/internal/service"
	"github.com/Sumatoshi-tech/codemerge/pkg/config"
	"github.com/Sumatoshi-tech/codemerge/pkg/render"
	"github.com/Sumatoshi-tech/codemerge/pkg/version"
)

const (
	flagConfig = "config"
	flagColor  = "color"
	stdioPath  = "-"

	colorAuto   = "auto"
	colorAlways = "always"
	colorNever  = "never"
)

// NewRootCommand builds the codemerge command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "codemerge",
		Short: "Line-level diff and merge engine",
		Long: `codemerge computes minimal line-level edit scripts and folds them into
merge trees that keep the original line order and every nested insertion.

Commands:
  diff      Edit script between two files
  merge     Two-way merge, optionally on top of a saved merge tree
  merge3    Three-way merge with conflict detection
  show      Render a saved merge tree
  resolve   Resolve conflicts in a saved merge tree
  validate  Check a saved merge tree
  serve     HTTP API server
  mcp       MCP server on stdio`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String(flagConfig, "", "config file (default: codemerge.yaml in ., ./config or ~/.config/codemerge)")
	rootCmd.PersistentFlags().String(flagColor, "", "colored output: auto, always or never (default from config)")

	rootCmd.AddCommand(
		newDiffCommand(),
		newMergeCommand(),
		newMerge3Command(),
		newShowCommand(),
		newResolveCommand(),
		newValidateCommand(),
		newServeCommand(),
		newMCPCommand(),
		newVersionCommand(),
	)

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "codemerge %s\n", version.String())
		},
	}
}

// runtime bundles what every engine command needs.
type runtime struct {
	cfg       *config.Config
	providers observability.Providers
	svc       *service.Service
}

// newRuntime loads the configuration and starts observability in mode. A nil
// meter means the one returned by observability.Init. adjust runs on the
// observability config before Init.
func newRuntime(cmd *cobra.Command, mode observability.AppMode, meter metric.Meter,
	adjust ...func(*observability.Config),
) (*runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	obsCfg, err := observabilityConfig(cfg, mode, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	for _, fn := range adjust {
		fn(&obsCfg)
	}

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	return assemble(cfg, providers, meter)
}

// assemble builds the service on initialised providers. A nil meter means
// providers.Meter. On failure the providers are shut down.
func assemble(cfg *config.Config, providers observability.Providers, meter metric.Meter) (*runtime, error) {
	if meter == nil {
		meter = providers.Meter
	}

	metrics, err := observability.NewMergeMetrics(meter)
	if err != nil {
		return nil, errors.Join(err, providers.Shutdown(context.Background()))
	}

	opts, err := service.OptionsFrom(cfg)
	if err != nil {
		return nil, errors.Join(err, providers.Shutdown(context.Background()))
	}

	return &runtime{
		cfg:       cfg,
		providers: providers,
		svc:       service.New(opts, providers.Logger, providers.Tracer, metrics),
	}, nil
}

// close flushes telemetry.
func (rt *runtime) close() {
	err := rt.providers.Shutdown(context.Background())
	if err != nil {
		rt.providers.Logger.Warn("observability shutdown failed", "error", err)
	}
}

// renderOptions resolves the color mode from the flag, then the config.
func (rt *runtime) renderOptions(cmd *cobra.Command) (render.Options, error) {
	mode := rt.cfg.Render.Color

	if flag := cmd.Flag(flagColor); flag != nil && flag.Value.String() != "" {
		mode = flag.Value.String()
	}

	opts := render.Options{Label1: rt.cfg.Render.Label1, Label2: rt.cfg.Render.Label2}

	switch mode {
	case colorAlways:
		opts.Color = true
	case colorNever:
		opts.Color = false
	case colorAuto:
		opts.Color = !color.NoColor
	default:
		return render.Options{}, fmt.Errorf("%w: %q", config.ErrInvalidColor, mode)
	}

	return opts, nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var path string

	if flag := cmd.Flag(flagConfig); flag != nil {
		path = flag.Value.String()
	}

	return config.LoadConfig(path)
}

func observabilityConfig(cfg *config.Config, mode observability.AppMode, logOutput io.Writer) (observability.Config, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(cfg.Logging.Level))
	if err != nil {
		return observability.Config{}, fmt.Errorf("%w: %w", config.ErrInvalidLogLevel, err)
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Environment = cfg.Telemetry.Environment
	obsCfg.Mode = mode
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Telemetry.OTLPHeaders)
	obsCfg.OTLPInsecure = cfg.Telemetry.Insecure
	obsCfg.SampleRatio = cfg.Telemetry.SampleRatio
	obsCfg.TraceVerbose = cfg.Telemetry.Verbose
	obsCfg.LogLevel = level
	obsCfg.LogJSON = cfg.Logging.Format == "json" || mode == observability.ModeMCP
	obsCfg.LogOutput = logOutput

	return obsCfg, nil
}

// readInput reads path, or standard input for "-".
func readInput(cmd *cobra.Command, path string) (service.Input, error) {
	var (
		data []byte
		err  error
	)

	if path == stdioPath {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path) //nolint:gosec // the path is a CLI argument.
	}

	if err != nil {
		return service.Input{}, fmt.Errorf("read %s: %w", path, err)
	}

	return service.Input{Name: path, Data: data}, nil
}

// writeOutput writes data to path, or to the command output for "" and "-".
func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" || path == stdioPath {
		_, err := cmd.OutOrStdout().Write(data)
		if err != nil {
			return fmt.Errorf("write output: %w", err)
		}

		return nil
	}

	err := os.WriteFile(path, data, 0o644) //nolint:gosec // merged output is a regular source file.
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return nil
}
