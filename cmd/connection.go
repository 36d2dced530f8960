// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/Thermoquad/crumbs/internal/catalog"
	"github.com/Thermoquad/crumbs/internal/config"
	"github.com/Thermoquad/crumbs/internal/controller"
	"github.com/Thermoquad/crumbs/internal/metrics"
	"github.com/Thermoquad/crumbs/internal/sim"
	"github.com/Thermoquad/crumbs/internal/transport"
)

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv(config.EnvPrefix + "_PASSWORD"); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// OpenSimBus builds a simulated bus with the configured peripherals and
// foreign devices
func OpenSimBus(sc config.SimConfig, cat *catalog.Catalog) (*transport.SimBus, map[uint8]*sim.Peripheral, error) {
	specs := sim.DefaultSpecs(cat)
	if len(sc.Peripherals) > 0 {
		specs = specs[:0]
		for _, s := range sc.Peripherals {
			spec, err := sim.ParseSpec(cat, s)
			if err != nil {
				return nil, nil, err
			}
			specs = append(specs, spec)
		}
	}

	bus := transport.NewSimBus()
	periphs, err := sim.Populate(bus, cat, specs, sc.Foreign)
	if err != nil {
		return nil, nil, err
	}

	if sc.Latency > 0 {
		for addr, p := range periphs {
			bus.AttachWithLatency(addr, p.Device(), sc.Latency)
		}
	}
	if sc.BitErrorRate > 0 {
		bus.SetBitErrors(sc.BitErrorRate, sc.Seed)
	}
	return bus, periphs, nil
}

// OpenBus opens the bus selected by bc. The returned string describes the
// connection for display.
func OpenBus(bc config.BusConfig) (transport.Bus, string, error) {
	switch bc.Transport {
	case "i2c":
		bus, err := transport.OpenLinuxI2C(bc.Device)
		if err != nil {
			return nil, "", err
		}
		return bus, bus.String(), nil

	case "serial":
		if bc.Port == "" {
			return nil, "", fmt.Errorf("--port is required for the serial transport")
		}
		bus, err := transport.OpenSerialBridge(bc.Port, bc.Baud)
		if err != nil {
			return nil, "", err
		}
		return bus, fmt.Sprintf("Serial: %s @ %d baud", bc.Port, bc.Baud), nil

	case "ws":
		if bc.URL == "" {
			return nil, "", fmt.Errorf("--url is required for the ws transport")
		}
		password := ""
		if bc.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}
		bus, err := transport.DialWSBridge(bc.URL, bc.Username, password, bc.NoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return bus, fmt.Sprintf("WebSocket: %s", bc.URL), nil

	case "sim":
		bus, periphs, err := OpenSimBus(cfg.Sim, cat)
		if err != nil {
			return nil, "", err
		}
		return bus, fmt.Sprintf("Simulated: %d peripherals", len(periphs)), nil
	}

	return nil, "", fmt.Errorf("unknown transport %q", bc.Transport)
}

// wrapBus applies the configured rate limit and, when m is set, metrics
func wrapBus(bus transport.Bus, bc config.BusConfig, m *metrics.BusMetrics) transport.Bus {
	if bc.RateLimit > 0 {
		bus = transport.NewLimitedBus(bus, bc.RateLimit, bc.RateBurst)
	}
	if m != nil {
		bus = metrics.Instrument(bus, m)
	}
	return bus
}

// OpenController opens the configured bus and wraps it in a controller.
// The caller closes the returned bus.
func OpenController(m *metrics.BusMetrics) (*controller.Controller, transport.Bus, string, error) {
	bus, info, err := OpenBus(cfg.Bus)
	if err != nil {
		return nil, nil, "", err
	}
	logger.Info("bus opened", zap.String("connection", info))

	bus = wrapBus(bus, cfg.Bus, m)
	ctl := controller.New(bus, controller.Options{
		Timeout: cfg.Bus.Timeout,
		Settle:  cfg.Bus.Settle,
		Catalog: cat,
		Logger:  logger,
		Metrics: m,
	})
	return ctl, bus, info, nil
}
