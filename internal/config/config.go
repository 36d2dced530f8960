// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads crumbs tool settings from defaults, an optional config
// file and CRUMBS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. CRUMBS_BUS_TRANSPORT
const EnvPrefix = "CRUMBS"

// BusConfig selects and parameterizes the bus transport
type BusConfig struct {
	Transport   string        `mapstructure:"transport"` // i2c, serial, ws or sim
	Device      string        `mapstructure:"device"`    // Linux I2C bus name, e.g. "1" or "/dev/i2c-1"
	Port        string        `mapstructure:"port"`
	Baud        int           `mapstructure:"baud"`
	URL         string        `mapstructure:"url"`
	Username    string        `mapstructure:"username"`
	NoSSLVerify bool          `mapstructure:"noSSLVerify"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Settle      time.Duration `mapstructure:"settle"`
	RateLimit   float64       `mapstructure:"rateLimit"` // transactions per second, 0 disables
	RateBurst   int           `mapstructure:"rateBurst"`
}

// ScanConfig holds scan defaults
type ScanConfig struct {
	Start   uint8         `mapstructure:"start"`
	End     uint8         `mapstructure:"end"`
	Strict  bool          `mapstructure:"strict"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LumberjackConfig configures rotated file logging
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"` // empty disables file output
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig holds log level and output settings
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"` // console or json
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the endpoint
	Path string `mapstructure:"path"`
}

// SimConfig configures the simulated bus
type SimConfig struct {
	Listen       string        `mapstructure:"listen"`
	Path         string        `mapstructure:"path"`
	Peripherals  []string      `mapstructure:"peripherals"` // "addr:type"; empty places one of each family
	Foreign      []uint8       `mapstructure:"foreign"`
	BitErrorRate float64       `mapstructure:"bitErrorRate"`
	Latency      time.Duration `mapstructure:"latency"`
	Seed         int64         `mapstructure:"seed"`
}

// MonitorConfig configures the monitor TUI
type MonitorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Config is the top-level configuration
type Config struct {
	Bus     BusConfig     `mapstructure:"bus"`
	Scan    ScanConfig    `mapstructure:"scan"`
	Catalog string        `mapstructure:"catalog"` // device catalog file (.yaml, .yml or .toml)
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Sim     SimConfig     `mapstructure:"sim"`
	Monitor MonitorConfig `mapstructure:"monitor"`
}

// New returns a viper instance with defaults and environment overrides
// applied. Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path, or ./crumbs.yaml when path is empty,
// and unmarshals the merged settings. A missing default file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("crumbs")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration
func Default() *Config {
	var cfg Config
	// Defaults are all well-typed, Unmarshal cannot fail here
	_ = New().Unmarshal(&cfg)
	return &cfg
}

// Validate checks values that would otherwise fail deep inside a command
func (c *Config) Validate() error {
	switch c.Bus.Transport {
	case "i2c", "serial", "ws", "sim":
	default:
		return fmt.Errorf("invalid bus.transport %q (want i2c, serial, ws or sim)", c.Bus.Transport)
	}
	if c.Scan.Start > c.Scan.End {
		return fmt.Errorf("invalid scan range 0x%02X-0x%02X", c.Scan.Start, c.Scan.End)
	}
	if c.Sim.BitErrorRate < 0 || c.Sim.BitErrorRate > 1 {
		return fmt.Errorf("invalid sim.bitErrorRate %v", c.Sim.BitErrorRate)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bus.transport", "sim")
	v.SetDefault("bus.device", "1")
	v.SetDefault("bus.port", "")
	v.SetDefault("bus.baud", 115200)
	v.SetDefault("bus.url", "")
	v.SetDefault("bus.username", "")
	v.SetDefault("bus.noSSLVerify", false)
	v.SetDefault("bus.timeout", "50ms")
	v.SetDefault("bus.settle", "10ms")
	v.SetDefault("bus.rateLimit", 0)
	v.SetDefault("bus.rateBurst", 1)

	v.SetDefault("scan.start", 0x03)
	v.SetDefault("scan.end", 0x77)
	v.SetDefault("scan.strict", true)
	v.SetDefault("scan.timeout", "10ms")

	v.SetDefault("catalog", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 10)
	v.SetDefault("logging.file.maxBackups", 3)
	v.SetDefault("logging.file.maxAge", 28)
	v.SetDefault("logging.file.compress", false)

	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("sim.listen", ":8765")
	v.SetDefault("sim.path", "/bus")
	v.SetDefault("sim.peripherals", []string{})
	v.SetDefault("sim.foreign", []uint8{})
	v.SetDefault("sim.bitErrorRate", 0.0)
	v.SetDefault("sim.latency", "0s")
	v.SetDefault("sim.seed", 1)

	v.SetDefault("monitor.interval", "2s")
}
