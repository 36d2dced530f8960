// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/crumbs/internal/controller"
	"github.com/Thermoquad/crumbs/pkg/crumbs"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the bus for CRUMBS devices",
	Long: `Probe every address in the scan range and query each device found for
its version.

Strict mode (default) only reports addresses that return a decodable CRUMBS
frame. With --strict=false any device that acknowledges its address is
listed, including non-CRUMBS parts.

Examples:
  # Scan the simulated bus
  crumbs scan

  # Scan I2C bus 1 between 0x08 and 0x40, accepting any ACK
  crumbs scan --transport i2c --device 1 --start 0x08 --end 0x40 --strict=false

Exit codes:
  0 - Scan completed and at least one device was found
  1 - Scan failed or found nothing
  2 - Connection error`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().Uint8("start", crumbs.AddressMin, "First address to probe")
	scanCmd.Flags().Uint8("end", crumbs.AddressMax, "Last address to probe")
	scanCmd.Flags().Bool("strict", true, "Require a valid CRUMBS reply")
	scanCmd.Flags().Duration("scan-timeout", 0, "Per-address read timeout (default from config)")

	bindCommandFlag(scanCmd, "scan.start", "start")
	bindCommandFlag(scanCmd, "scan.end", "end")
	bindCommandFlag(scanCmd, "scan.strict", "strict")
	bindCommandFlag(scanCmd, "scan.timeout", "scan-timeout")
}

func scanOptions() crumbs.ScanOptions {
	return crumbs.ScanOptions{
		Start:   cfg.Scan.Start,
		End:     cfg.Scan.End,
		Strict:  cfg.Scan.Strict,
		Timeout: cfg.Scan.Timeout,
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	ctl, bus, connInfo, err := OpenController(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer bus.Close()

	opts := scanOptions()
	mode := "strict"
	if !opts.Strict {
		mode = "non-strict"
	}

	fmt.Printf("CRUMBS - Bus Scan\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Range: 0x%02X-0x%02X (%s)\n\n", opts.Start, opts.End, mode)

	report, err := ctl.Scan(opts)
	if err != nil {
		return err
	}

	printScanReport(report)

	if report.Total == 0 {
		os.Exit(1)
	}
	return nil
}

func printScanReport(report *controller.ScanReport) {
	if len(report.Devices) == 0 {
		fmt.Printf("No devices found (%v)\n", report.Duration.Round(time.Microsecond))
		return
	}

	fmt.Printf("%-6s %-6s %-12s %-24s %s\n", "ADDR", "TYPE", "NAME", "VERSION", "STATUS")
	for _, d := range report.Devices {
		version := "-"
		if d.Version != nil {
			version = d.Version.String()
		}
		status := "ok"
		if d.Err != nil {
			status = d.Err.Error()
		}
		fmt.Printf("0x%02X   0x%02X   %-12s %-24s %s\n", d.Addr, d.TypeID, d.TypeName, version, status)
	}

	fmt.Printf("\n%d device(s) found in %v (scan %s)\n",
		report.Total, report.Duration.Round(time.Microsecond), report.ID)
	if report.Total > len(report.Devices) {
		fmt.Printf("Only the first %d are listed\n", len(report.Devices))
	}
}
