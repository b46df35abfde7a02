package config

import "time"

// Engine defaults.
const (
	DefaultEngineMaxCells     = int64(64 << 20)
	DefaultEngineSkip         = true
	DefaultEngineReserveSlots = true
	DefaultEngineTimeout      = 30 * time.Second
)

// Input defaults.
const (
	DefaultInputMaxFileSize = "8MB"
)

// Cache defaults.
const (
	DefaultCacheEntries = 256
	DefaultCacheMaxSize = "64MB"
)

// Render defaults.
const (
	DefaultRenderColor  = "auto"
	DefaultRenderLabel1 = "version1"
	DefaultRenderLabel2 = "version2"
)

// Server defaults.
const (
	DefaultServerHost          = "127.0.0.1"
	DefaultServerPort          = 8080
	DefaultServerReadTimeout   = 30 * time.Second
	DefaultServerWriteTimeout  = 60 * time.Second
	DefaultServerIdleTimeout   = 120 * time.Second
	DefaultServerMaxConcurrent = 8
	DefaultServerMaxBodySize   = "32MB"
)

// Logging defaults.
const (
	DefaultLoggingLevel  = "info"
	DefaultLoggingFormat = "text"
)

// Telemetry defaults.
const (
	DefaultTelemetryInsecure    = false
	DefaultTelemetrySampleRatio = 1.0
	DefaultTelemetryEnvironment = "development"
)
