// Package server exposes the diff and merge API over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/codemerge/internal/api"
	"github.com/Sumatoshi-tech/codemerge/internal/observability"
	"github.com/Sumatoshi-tech/codemerge/pkg/config"
)

// Route patterns.
const (
	RouteDiff    = "POST /v1/diff"
	RouteMerge   = "POST /v1/merge"
	RouteMerge3  = "POST /v1/merge3"
	RouteHealth  = "GET /healthz"
	RouteReady   = "GET /readyz"
	RouteMetrics = "GET /metrics"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// ErrDraining is reported by the readiness check once shutdown has begun.
var ErrDraining = errors.New("server is shutting down")

// Deps holds injectable dependencies. Zero-value fields disable the feature.
type Deps struct {
	Logger *slog.Logger
	Tracer trace.Tracer

	// RED records per-route request metrics.
	RED *observability.REDMetrics

	// Metrics is served at /metrics when set.
	Metrics http.Handler
}

// Server routes HTTP requests to an api.Handler.
type Server struct {
	api      *api.Handler
	maxBody  int64
	logger   *slog.Logger
	tracer   trace.Tracer
	red      *observability.REDMetrics
	metrics  http.Handler
	draining atomic.Bool
}

// New creates a Server. maxBody caps request bodies; zero disables the cap.
func New(handler *api.Handler, maxBody int64, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = observability.DiscardLogger()
	}

	tracer := deps.Tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer(observability.InstrumentationName)
	}

	return &Server{
		api:     handler,
		maxBody: maxBody,
		logger:  logger,
		tracer:  tracer,
		red:     deps.RED,
		metrics: deps.Metrics,
	}
}

// Handler returns the routed handler wrapped in tracing middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(RouteDiff, handle(s, "diff", s.api.Diff))
	mux.Handle(RouteMerge, handle(s, "merge", s.api.Merge))
	mux.Handle(RouteMerge3, handle(s, "merge3", s.api.Merge3))
	mux.Handle(RouteHealth, observability.HealthHandler())
	mux.Handle(RouteReady, observability.ReadyHandler(s.ready))

	if s.metrics != nil {
		mux.Handle(RouteMetrics, s.metrics)
	}

	return observability.HTTPMiddleware(s.tracer, s.logger, mux)
}

// ListenAndServe serves on cfg.Addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, cfg config.ServerConfig) error {
	var lc net.ListenConfig

	listener, err := lc.Listen(ctx, "tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
	}

	return s.Serve(ctx, listener, cfg)
}

// Serve serves on listener until ctx is canceled, then drains in-flight
// requests. Readiness turns unavailable as soon as draining starts.
func (s *Server) Serve(ctx context.Context, listener net.Listener, cfg config.ServerConfig) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.Serve(listener)
	}()

	s.logger.InfoContext(ctx, "server listening", "addr", listener.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.draining.Store(true)
	s.logger.Info("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}

func (s *Server) ready(context.Context) error {
	if s.draining.Load() {
		return ErrDraining
	}

	return nil
}

// handle decodes a JSON request, runs it and writes the JSON response.
func handle[Req, Resp any](s *Server, op string, run func(context.Context, Req) (*Resp, error)) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
		ctx := hr.Context()
		start := time.Now()
		status := observability.StatusOK

		done := s.red.TrackInflight(ctx, op)

		defer func() {
			done()
			s.red.RecordRequest(ctx, op, status, time.Since(start))
		}()

		body := hr.Body
		if s.maxBody > 0 {
			body = http.MaxBytesReader(rw, hr.Body, s.maxBody)
		}

		var req Req

		dec := json.NewDecoder(body)
		dec.DisallowUnknownFields()

		err := dec.Decode(&req)
		if err != nil {
			status = observability.StatusError
			code := http.StatusBadRequest

			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				code = http.StatusRequestEntityTooLarge
			}

			writeError(ctx, rw, code, fmt.Errorf("decode request: %w", err))

			return
		}

		resp, err := run(ctx, req)
		if err != nil {
			status = observability.StatusError
			code := api.Status(err)

			if code >= http.StatusInternalServerError {
				s.logger.ErrorContext(ctx, "request failed", "op", op, "error", err)
			}

			writeError(ctx, rw, code, err)

			return
		}

		writeJSON(ctx, rw, http.StatusOK, resp)
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(ctx context.Context, rw http.ResponseWriter, code int, err error) {
	writeJSON(ctx, rw, code, errorBody{Error: err.Error()})
}

// writeJSON encodes value as the response body.
func writeJSON(ctx context.Context, rw http.ResponseWriter, code int, value any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)

	encodeErr := json.NewEncoder(rw).Encode(value)
	if encodeErr != nil {
		slog.Default().ErrorContext(ctx, "failed to encode JSON response", "error", encodeErr)
	}
}
