package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/confd-io/confd/internal/bytesize"
)

// DefaultConfig returns a complete Config with every field defaulted, used
// when no config file is found (spec §6 "schema and data directories,
// socket path, and PID path are compile-time or environment variables").
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills any zero-valued field of cfg with its default.
func ApplyDefaults(cfg *Config) {
	varDir := "/var/lib/confd"
	if cfg.SocketPath == "" {
		cfg.SocketPath = "/var/run/confd/confd.sock"
	}
	if cfg.SchemaDir == "" {
		cfg.SchemaDir = filepath.Join(varDir, "yang")
	}
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(varDir, "data")
	}
	if cfg.PersistDir == "" {
		cfg.PersistDir = filepath.Join(varDir, "persist")
	}
	if cfg.PIDFile == "" {
		cfg.PIDFile = "/var/run/confd/confd.pid"
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = 16 * bytesize.MiB
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}
