// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/crumbs/internal/metrics"
	"github.com/Thermoquad/crumbs/internal/sim"
	"github.com/Thermoquad/crumbs/internal/transport"
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Simulated CRUMBS bus",
}

var (
	simPeripherals []string
	simForeign     []string
	simAuthUser    string
)

var simServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a simulated bus over the WebSocket bridge",
	Long: `Host simulated CRUMBS peripherals and expose them through the WebSocket
bridge, so every other command can run against them with --transport ws.

By default one peripheral of each catalog family is placed at 0x10, 0x11, ...
Peripherals are recorders: commands are stored per opcode and queries echo
the stored payload back.

Prometheus metrics for the simulated bus are served on /metrics.

Examples:
  crumbs sim serve --listen :8765
  crumbs sim serve --peripheral 0x20:led --peripheral 0x21:servo --foreign 0x50
  crumbs sim serve --bit-error-rate 0.001 --latency 5ms

  # In another terminal
  crumbs scan --transport ws --url ws://localhost:8765/bus

If --auth-user is set, clients must use HTTP Basic auth with the password
from CRUMBS_PASSWORD (or prompted).`,
	RunE: runSimServe,
}

func init() {
	rootCmd.AddCommand(simCmd)
	simCmd.AddCommand(simServeCmd)

	f := simServeCmd.Flags()
	f.String("listen", ":8765", "HTTP listen address")
	f.String("path", "/bus", "WebSocket bridge path")
	f.Float64("bit-error-rate", 0, "Probability of flipping each bit on the wire")
	f.Duration("latency", 0, "Per-read peripheral latency")
	f.Int64("seed", 1, "Bit error RNG seed")
	f.StringArrayVar(&simPeripherals, "peripheral", nil, "Peripheral as addr:type (repeatable)")
	f.StringArrayVar(&simForeign, "foreign", nil, "Address of a non-CRUMBS device (repeatable)")
	f.StringVar(&simAuthUser, "auth-user", "", "Require HTTP Basic auth with this username")

	bindCommandFlag(simServeCmd, "sim.listen", "listen")
	bindCommandFlag(simServeCmd, "sim.path", "path")
	bindCommandFlag(simServeCmd, "sim.bitErrorRate", "bit-error-rate")
	bindCommandFlag(simServeCmd, "sim.latency", "latency")
	bindCommandFlag(simServeCmd, "sim.seed", "seed")
}

func runSimServe(cmd *cobra.Command, args []string) error {
	sc := cfg.Sim
	if len(simPeripherals) > 0 {
		sc.Peripherals = simPeripherals
	}
	if len(simForeign) > 0 {
		sc.Foreign = sc.Foreign[:0]
		for _, s := range simForeign {
			addr, err := parseAddress(s)
			if err != nil {
				return err
			}
			sc.Foreign = append(sc.Foreign, addr)
		}
	}

	simBus, periphs, err := OpenSimBus(sc, cat)
	if err != nil {
		return err
	}
	defer simBus.Close()

	reg := metrics.NewRegistry()
	busMetrics := metrics.NewBusMetrics(reg)
	var bus transport.Bus = metrics.Instrument(simBus, busMetrics)

	server := transport.NewBridgeServer(bus, logger.Named("bridge"))
	if simAuthUser != "" {
		password, err := GetPassword()
		if err != nil {
			return err
		}
		server.RequireBasicAuth(simAuthUser, password)
	}

	mux := http.NewServeMux()
	mux.Handle(sc.Path, server)
	mux.Handle(cfg.Metrics.Path, metrics.Handler(reg))

	httpServer := &http.Server{
		Addr:              sc.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	printSimBus(periphs, sc.Foreign)
	logger.Info("simulated bus listening",
		zap.String("listen", sc.Listen),
		zap.String("path", sc.Path),
		zap.String("metrics", cfg.Metrics.Path),
		zap.Int("peripherals", len(periphs)),
		zap.Float64("bit_error_rate", sc.BitErrorRate),
		zap.Duration("latency", sc.Latency))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve %s: %w", sc.Listen, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func printSimBus(periphs map[uint8]*sim.Peripheral, foreign []uint8) {
	addrs := make([]int, 0, len(periphs))
	for a := range periphs {
		addrs = append(addrs, int(a))
	}
	sort.Ints(addrs)

	fmt.Printf("CRUMBS - Simulated Bus\n")
	for _, a := range addrs {
		p := periphs[uint8(a)]
		fmt.Printf("  0x%02X  %s (type 0x%02X)\n", a, cat.TypeName(p.TypeID()), p.TypeID())
	}
	for _, a := range foreign {
		fmt.Printf("  0x%02X  foreign device\n", a)
	}
	fmt.Println()
}
