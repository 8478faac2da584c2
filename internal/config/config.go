package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Output formats accepted by OutputFormat.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// Config represents runtime configuration sourced from environment variables.
// Command-line flags may override individual fields after Load.
type Config struct {
	LogLevel         slog.Level
	SysfsRoot        string
	ProfileFile      string
	OutputFormat     string
	Discover         bool
	DefaultIdlePower float64
	EmitMetrics      bool
}

// Load parses configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		LogLevel:         slog.LevelInfo,
		SysfsRoot:        "/sys",
		OutputFormat:     FormatTable,
		Discover:         false,
		DefaultIdlePower: 0,
		EmitMetrics:      false,
	}

	if value := strings.TrimSpace(os.Getenv("APP_LOG_LEVEL")); value != "" {
		level, err := ParseLogLevel(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = level
	}

	if value := strings.TrimSpace(os.Getenv("APP_SYSFS_ROOT")); value != "" {
		cfg.SysfsRoot = value
	}

	if value := strings.TrimSpace(os.Getenv("APP_PROFILE_FILE")); value != "" {
		cfg.ProfileFile = value
	}

	if value := strings.TrimSpace(os.Getenv("APP_OUTPUT_FORMAT")); value != "" {
		cfg.OutputFormat = strings.ToLower(value)
	}

	if value := strings.TrimSpace(os.Getenv("APP_DISCOVER")); value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_DISCOVER: %w", err)
		}
		cfg.Discover = enabled
	}

	if value := strings.TrimSpace(os.Getenv("APP_DEFAULT_IDLE_POWER")); value != "" {
		watts, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_DEFAULT_IDLE_POWER: %w", err)
		}
		cfg.DefaultIdlePower = watts
	}

	if value := strings.TrimSpace(os.Getenv("APP_EMIT_METRICS")); value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_EMIT_METRICS: %w", err)
		}
		cfg.EmitMetrics = enabled
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that may also have been set from flags.
func (c Config) Validate() error {
	switch c.OutputFormat {
	case FormatTable, FormatJSON:
	default:
		return fmt.Errorf("unsupported output format %q", c.OutputFormat)
	}
	if c.DefaultIdlePower < 0 {
		return fmt.Errorf("default idle power must be >= 0")
	}
	if c.SysfsRoot == "" {
		return fmt.Errorf("sysfs root must not be empty")
	}
	return nil
}

// ParseLogLevel maps a level name to a slog.Level.
func ParseLogLevel(input string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level %q", input)
	}
}
