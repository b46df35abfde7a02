package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codemerge/internal/api"
	"github.com/Sumatoshi-tech/codemerge/internal/observability"
	"github.com/Sumatoshi-tech/codemerge/internal/server"
)

// ServeCommand holds the configuration for the serve command.
type ServeCommand struct {
	host string
	port int
}

func newServeCommand() *cobra.Command {
	sc := &ServeCommand{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Serve the diff, merge and merge3 operations as JSON over HTTP:

  POST /v1/diff     POST /v1/merge     POST /v1/merge3
  GET  /healthz     GET  /readyz       GET  /metrics

The server stops on SIGINT or SIGTERM after draining in-flight requests.`,
		Args: cobra.NoArgs,
		RunE: sc.run,
	}

	cmd.Flags().StringVar(&sc.host, "host", "", "listen host (default from config)")
	cmd.Flags().IntVar(&sc.port, "port", 0, "listen port (default from config)")

	return cmd
}

func (sc *ServeCommand) run(cmd *cobra.Command, _ []string) error {
	metricsHandler, meterProvider, err := observability.PrometheusHandler()
	if err != nil {
		return err
	}

	meter := meterProvider.Meter(observability.InstrumentationName)

	rt, err := newRuntime(cmd, observability.ModeServe, meter)
	if err != nil {
		return err
	}
	defer rt.close()

	if cmd.Flags().Changed("host") {
		rt.cfg.Server.Host = sc.host
	}

	if cmd.Flags().Changed("port") {
		rt.cfg.Server.Port = sc.port
	}

	err = rt.cfg.Validate()
	if err != nil {
		return err
	}

	opts, err := rt.renderOptions(cmd)
	if err != nil {
		return err
	}

	red, err := observability.NewREDMetrics(meter)
	if err != nil {
		return err
	}

	maxBody, err := rt.cfg.Server.MaxBodySizeBytes()
	if err != nil {
		return err
	}

	srv := server.New(api.NewHandler(rt.svc, opts), maxBody, server.Deps{
		Logger:  rt.providers.Logger,
		Tracer:  rt.providers.Tracer,
		RED:     red,
		Metrics: metricsHandler,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx, rt.cfg.Server)
}
