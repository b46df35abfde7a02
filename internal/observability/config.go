// Package observability wires OpenTelemetry tracing and metrics and the
// structured logger shared by every codemerge mode (CLI, MCP, server).
package observability

import (
	"io"
	"log/slog"
	"time"
)

// AppMode identifies how the binary was launched.
type AppMode string

const (
	// ModeCLI is a one-shot command.
	ModeCLI AppMode = "cli"
	// ModeMCP is the MCP stdio server.
	ModeMCP AppMode = "mcp"
	// ModeServe is the HTTP API server.
	ModeServe AppMode = "serve"
)

const (
	defaultServiceName     = "codemerge"
	defaultShutdownTimeout = 5 * time.Second
)

// Config holds all observability configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// Environment is the deployment environment (e.g. "production", "dev").
	Environment string

	Mode AppMode

	// OTLPEndpoint is the OTLP gRPC collector address (e.g. "localhost:4317").
	// Empty disables export and the providers become no-op.
	OTLPEndpoint string
	OTLPHeaders  map[string]string
	OTLPInsecure bool

	// SampleRatio is the root sampling ratio in (0, 1]. Zero samples everything.
	SampleRatio float64

	// TraceVerbose keeps the per-alignment spans that are dropped by default.
	TraceVerbose bool

	LogLevel slog.Level
	LogJSON  bool

	// LogOutput receives log records. Nil means os.Stderr.
	LogOutput io.Writer

	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config usable without any configuration file.
func DefaultConfig() Config {
	return Config{
		ServiceName:     defaultServiceName,
		Mode:            ModeCLI,
		LogLevel:        slog.LevelInfo,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}
