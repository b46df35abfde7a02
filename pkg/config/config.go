// Package config provides configuration loading and validation for codemerge.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidPort        = errors.New("invalid server port")
	ErrInvalidConcurrent  = errors.New("max concurrent merges must be positive")
	ErrInvalidMaxCells    = errors.New("engine max cells must not be negative")
	ErrInvalidTimeout     = errors.New("engine timeout must not be negative")
	ErrInvalidCache       = errors.New("cache entries must not be negative")
	ErrInvalidSize        = errors.New("invalid size")
	ErrInvalidColor       = errors.New("render color must be auto, always or never")
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrInvalidLogFormat   = errors.New("log format must be text or json")
	ErrInvalidSampleRatio = errors.New("sample ratio must be within [0, 1]")
)

const (
	configName = "codemerge"
	configType = "yaml"
	envPrefix  = "CODEMERGE"
	maxPort    = 65535
)

var (
	colorModes = []string{"auto", "always", "never"}
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Config holds all configuration for codemerge.
type Config struct {
	Engine    EngineConfig    `mapstructure:"engine"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Input     InputConfig     `mapstructure:"input"`
	Render    RenderConfig    `mapstructure:"render"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// EngineConfig holds alignment and tree-building knobs.
type EngineConfig struct {
	MaxCells     int64         `mapstructure:"max_cells"`
	Skip         bool          `mapstructure:"skip"`
	ReserveSlots bool          `mapstructure:"reserve_slots"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// CacheConfig bounds the alignment cache. Zero entries disables it.
type CacheConfig struct {
	Entries int    `mapstructure:"entries"`
	MaxSize string `mapstructure:"max_size"`
}

// MaxSizeBytes parses MaxSize. Zero means no byte limit.
func (c CacheConfig) MaxSizeBytes() (int64, error) {
	return parseSize(c.MaxSize)
}

// InputConfig limits what is accepted as input text.
type InputConfig struct {
	MaxFileSize string `mapstructure:"max_file_size"`
}

// MaxFileSizeBytes parses MaxFileSize. Zero means unlimited.
func (c InputConfig) MaxFileSizeBytes() (int64, error) {
	return parseSize(c.MaxFileSize)
}

// RenderConfig controls terminal output.
type RenderConfig struct {
	Color  string `mapstructure:"color"`
	Label1 string `mapstructure:"label1"`
	Label2 string `mapstructure:"label2"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	MaxBodySize   string        `mapstructure:"max_body_size"`
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MaxBodySizeBytes parses MaxBodySize. Zero means unlimited.
func (c ServerConfig) MaxBodySizeBytes() (int64, error) {
	return parseSize(c.MaxBodySize)
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds OpenTelemetry export settings. An empty endpoint
// disables export.
type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	Insecure     bool    `mapstructure:"insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	Environment  string  `mapstructure:"environment"`
	Verbose      bool    `mapstructure:"verbose"`
}

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise codemerge.yaml is searched in CWD, ./config and
// $HOME/.config/codemerge. A missing config file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(filepath.Join(home, ".config", configName))
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxCells:     DefaultEngineMaxCells,
			Skip:         DefaultEngineSkip,
			ReserveSlots: DefaultEngineReserveSlots,
			Timeout:      DefaultEngineTimeout,
		},
		Cache: CacheConfig{Entries: DefaultCacheEntries, MaxSize: DefaultCacheMaxSize},
		Input: InputConfig{MaxFileSize: DefaultInputMaxFileSize},
		Render: RenderConfig{
			Color:  DefaultRenderColor,
			Label1: DefaultRenderLabel1,
			Label2: DefaultRenderLabel2,
		},
		Server: ServerConfig{
			Host:          DefaultServerHost,
			Port:          DefaultServerPort,
			ReadTimeout:   DefaultServerReadTimeout,
			WriteTimeout:  DefaultServerWriteTimeout,
			IdleTimeout:   DefaultServerIdleTimeout,
			MaxConcurrent: DefaultServerMaxConcurrent,
			MaxBodySize:   DefaultServerMaxBodySize,
		},
		Logging: LoggingConfig{Level: DefaultLoggingLevel, Format: DefaultLoggingFormat},
		Telemetry: TelemetryConfig{
			Insecure:    DefaultTelemetryInsecure,
			SampleRatio: DefaultTelemetrySampleRatio,
			Environment: DefaultTelemetryEnvironment,
		},
	}
}

func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("engine.max_cells", DefaultEngineMaxCells)
	viperCfg.SetDefault("engine.skip", DefaultEngineSkip)
	viperCfg.SetDefault("engine.reserve_slots", DefaultEngineReserveSlots)
	viperCfg.SetDefault("engine.timeout", DefaultEngineTimeout.String())

	viperCfg.SetDefault("cache.entries", DefaultCacheEntries)
	viperCfg.SetDefault("cache.max_size", DefaultCacheMaxSize)

	viperCfg.SetDefault("input.max_file_size", DefaultInputMaxFileSize)

	viperCfg.SetDefault("render.color", DefaultRenderColor)
	viperCfg.SetDefault("render.label1", DefaultRenderLabel1)
	viperCfg.SetDefault("render.label2", DefaultRenderLabel2)

	viperCfg.SetDefault("server.host", DefaultServerHost)
	viperCfg.SetDefault("server.port", DefaultServerPort)
	viperCfg.SetDefault("server.read_timeout", DefaultServerReadTimeout.String())
	viperCfg.SetDefault("server.write_timeout", DefaultServerWriteTimeout.String())
	viperCfg.SetDefault("server.idle_timeout", DefaultServerIdleTimeout.String())
	viperCfg.SetDefault("server.max_concurrent", DefaultServerMaxConcurrent)
	viperCfg.SetDefault("server.max_body_size", DefaultServerMaxBodySize)

	viperCfg.SetDefault("logging.level", DefaultLoggingLevel)
	viperCfg.SetDefault("logging.format", DefaultLoggingFormat)

	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_headers", "")
	viperCfg.SetDefault("telemetry.insecure", DefaultTelemetryInsecure)
	viperCfg.SetDefault("telemetry.sample_ratio", DefaultTelemetrySampleRatio)
	viperCfg.SetDefault("telemetry.environment", DefaultTelemetryEnvironment)
	viperCfg.SetDefault("telemetry.verbose", false)
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > maxPort {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Server.Port)
	}

	if c.Server.MaxConcurrent <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidConcurrent, c.Server.MaxConcurrent)
	}

	if c.Engine.MaxCells < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxCells, c.Engine.MaxCells)
	}

	if c.Engine.Timeout < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTimeout, c.Engine.Timeout)
	}

	if c.Cache.Entries < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCache, c.Cache.Entries)
	}

	if _, err := c.Cache.MaxSizeBytes(); err != nil {
		return fmt.Errorf("cache.max_size: %w", err)
	}

	if _, err := c.Input.MaxFileSizeBytes(); err != nil {
		return fmt.Errorf("input.max_file_size: %w", err)
	}

	if _, err := c.Server.MaxBodySizeBytes(); err != nil {
		return fmt.Errorf("server.max_body_size: %w", err)
	}

	if !slices.Contains(colorModes, c.Render.Color) {
		return fmt.Errorf("%w: %q", ErrInvalidColor, c.Render.Color)
	}

	if !slices.Contains(logLevels, strings.ToLower(c.Logging.Level)) {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}

	if !slices.Contains(logFormats, c.Logging.Format) {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidSampleRatio, c.Telemetry.SampleRatio)
	}

	return nil
}

func parseSize(s string) (int64, error) {
	if s == "" || s == "0" {
		return 0, nil
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidSize, s, err)
	}

	return int64(n), nil //nolint:gosec // sizes above 8 EiB are not meaningful here.
}
