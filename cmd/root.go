// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/crumbs/internal/catalog"
	"github.com/Thermoquad/crumbs/internal/config"
	"github.com/Thermoquad/crumbs/internal/logging"
)

var (
	configFile string

	v = config.New()

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
	cat    *catalog.Catalog
)

var rootCmd = &cobra.Command{
	Use:   "crumbs",
	Short: "CRUMBS bus tool",
	Long: `crumbs - A CLI tool for talking to CRUMBS peripherals.

Scans the bus, sends commands, runs two-phase queries, decodes frames offline
and monitors devices in a terminal UI. A simulated bus can be served over the
WebSocket bridge for testing without hardware.

Connection modes:
  I2C:       --transport i2c --device 1
  Serial:    --transport serial --port /dev/ttyACM0 [--baud 115200]
  WebSocket: --transport ws --url ws://host/bus [--username user]
  Simulated: --transport sim (default)

Settings may also come from ./crumbs.yaml (or --config) and CRUMBS_*
environment variables, e.g. CRUMBS_BUS_TRANSPORT=i2c.

For WebSocket authentication, the password is read from the CRUMBS_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:      "0.10.3",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "Config file (default ./crumbs.yaml)")

	// Bus selection
	pf.StringP("transport", "t", "sim", "Bus transport: i2c, serial, ws or sim")
	pf.String("device", "1", "Linux I2C bus name or number (i2c only)")
	pf.Duration("timeout", 0, "Reply read timeout (default from config)")
	pf.Duration("settle", 0, "Delay between SET_REPLY and read (default from config)")
	pf.Float64("rate-limit", 0, "Maximum bus transactions per second (0 disables)")

	// Serial connection flags
	pf.StringP("port", "p", "", "Serial bridge device")
	pf.IntP("baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	pf.StringP("url", "u", "", "WebSocket bridge URL (ws:// or wss://)")
	pf.String("username", "", "Username for HTTP Basic auth")
	pf.Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Logging and catalog
	pf.String("log-level", "info", "Log level: debug, info, warn or error")
	pf.String("catalog", "", "Device catalog file (.yaml, .yml or .toml)")

	bindFlags(map[string]string{
		"bus.transport":   "transport",
		"bus.device":      "device",
		"bus.timeout":     "timeout",
		"bus.settle":      "settle",
		"bus.rateLimit":   "rate-limit",
		"bus.port":        "port",
		"bus.baud":        "baud",
		"bus.url":         "url",
		"bus.username":    "username",
		"bus.noSSLVerify": "no-ssl-verify",
		"logging.level":   "log-level",
		"catalog":         "catalog",
	})
}

// bindFlags binds persistent flags to config keys; flags only override the
// config when set explicitly
func bindFlags(keys map[string]string) {
	for key, flag := range keys {
		if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
}

// bindCommandFlag binds a subcommand flag to a config key
func bindCommandFlag(cmd *cobra.Command, key, flag string) {
	if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

func setup() error {
	var err error
	cfg, err = config.Load(v, configFile)
	if err != nil {
		return err
	}

	logger, err = logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	cat, err = catalog.LoadOrDefault(cfg.Catalog)
	if err != nil {
		return err
	}

	logger.Debug("configuration loaded",
		zap.String("transport", cfg.Bus.Transport),
		zap.Duration("timeout", cfg.Bus.Timeout),
		zap.Int("families", len(cat.Families)))
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
