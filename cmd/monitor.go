// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/crumbs/internal/logging"
	"github.com/Thermoquad/crumbs/internal/metrics"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive bus monitor",
	Long: `Periodically scan the bus and show devices, versions and transaction
statistics in a terminal UI. Commands and queries can be issued from the
command line at the bottom.

Keys:
  tab      switch between device list and command input
  enter    run the command / start a query for the selected device
  s        scan now
  r        reset statistics
  q        quit

With --metrics-addr the bus metrics are also served for Prometheus.

Examples:
  crumbs monitor
  crumbs monitor --transport i2c --device 1 --interval 5s --metrics-addr :9100

Exit codes:
  0 - Normal exit
  1 - TUI error
  2 - Connection error`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().Duration("interval", 2*time.Second, "Scan interval")
	monitorCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")

	bindCommandFlag(monitorCmd, "monitor.interval", "interval")
	bindCommandFlag(monitorCmd, "metrics.addr", "metrics-addr")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	// Console logs would tear the TUI; keep only file output
	tuiLogger, err := logging.NewWithWriter(cfg.Logging, io.Discard)
	if err != nil {
		return err
	}
	logger = tuiLogger

	var busMetrics *metrics.BusMetrics
	if cfg.Metrics.Addr != "" {
		reg := metrics.NewRegistry()
		busMetrics = metrics.NewBusMetrics(reg)

		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, metrics.Handler(reg))
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	ctl, bus, connInfo, err := OpenController(busMetrics)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer bus.Close()

	interval := cfg.Monitor.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	model := newMonitorModel(ctl, cat, connInfo, scanOptions(), interval)
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}

	stats := ctl.Statistics()
	fmt.Print(stats.String())
	return nil
}
