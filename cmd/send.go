// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/crumbs/pkg/crumbs"
)

var sendCmd = &cobra.Command{
	Use:   "send <addr> <type> <opcode> [hex data...]",
	Short: "Send a command to a peripheral",
	Long: `Encode a CRUMBS message and write it to a peripheral.

The type may be a number or a catalog family name. Data is hex, with
optional 0x prefixes and separators.

Examples:
  # LED SET_ALL with mask 0x05
  crumbs send 0x10 led 0x01 05

  # Calculator ADD of two u32 operands
  crumbs send 0x12 3 1 0A000000 14000000

Exit codes:
  0 - Message sent
  1 - Send failed
  2 - Connection error`,
	Args: cobra.MinimumNArgs(3),
	RunE: runSend,
}

var (
	queryType  string
	queryCount int
)

var queryCmd = &cobra.Command{
	Use:   "query <addr> <opcode>",
	Short: "Run a two-phase query against a peripheral",
	Long: `Stage an opcode with SET_REPLY, then read and decode the reply.

Opcode 0 queries the device version and checks it against the catalog.

Examples:
  crumbs query 0x10 0
  crumbs query 0x12 0x80 --type calculator

Exit codes:
  0 - Valid reply received
  1 - Query failed
  2 - Connection error`,
	Args: cobra.ExactArgs(2),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVar(&queryType, "type", "", "Expected reply type (number or family name)")
	queryCmd.Flags().IntVarP(&queryCount, "count", "n", 1, "Number of queries to run")
}

func runSend(cmd *cobra.Command, args []string) error {
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	typeID, err := parseTypeID(cat, args[1])
	if err != nil {
		return err
	}
	opcode, err := parseUint8("opcode", args[2])
	if err != nil {
		return err
	}
	data, err := parseHexBytes(args[3:])
	if err != nil {
		return err
	}

	m := crumbs.NewMessage(typeID, opcode)
	if err := m.SetPayload(data); err != nil {
		return fmt.Errorf("%d data bytes (max %d): %w", len(data), crumbs.MaxPayload, err)
	}

	ctl, bus, connInfo, err := OpenController(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer bus.Close()

	fmt.Printf("Connection: %s\n", connInfo)
	if err := ctl.SendMessage(addr, &m); err != nil {
		fmt.Printf("SEND FAILED: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("-> 0x%02X %s\n", addr, describeMessage(cat, &m))
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	opcode, err := parseUint8("opcode", args[1])
	if err != nil {
		return err
	}

	var wantType *uint8
	if queryType != "" {
		t, err := parseTypeID(cat, queryType)
		if err != nil {
			return err
		}
		wantType = &t
	}

	ctl, bus, connInfo, err := OpenController(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer bus.Close()

	fmt.Printf("Connection: %s\n", connInfo)

	failed := 0
	for i := 0; i < queryCount; i++ {
		reply, err := ctl.Query(addr, opcode)
		if err != nil {
			fmt.Printf("QUERY FAILED: %v\n", err)
			failed++
			continue
		}

		fmt.Printf("<- 0x%02X %s\n", addr, describeMessage(cat, &reply))
		if wantType != nil && reply.TypeID != *wantType {
			fmt.Printf("   WARNING: expected type 0x%02X, got 0x%02X\n", *wantType, reply.TypeID)
		}

		if opcode == crumbs.OpcodeVersion {
			info, err := crumbs.ParseVersionReply(reply.Payload())
			if err != nil {
				fmt.Printf("   version: %v\n", err)
				failed++
				continue
			}
			status := "compatible"
			if err := cat.CheckVersion(reply.TypeID, info); err != nil {
				status = err.Error()
			}
			fmt.Printf("   version: %s (%s)\n", info, status)
		}
	}

	if queryCount > 1 {
		stats := ctl.Statistics()
		fmt.Print("\n" + stats.String())
	}
	if failed > 0 {
		os.Exit(1)
	}
	return nil
}
