// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/crumbs/internal/catalog"
	"github.com/Thermoquad/crumbs/pkg/crumbs"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <hex frame...>",
	Short: "Decode a CRUMBS frame",
	Long: `Validate and decode a raw frame without touching the bus.

Example:
  crumbs decode 01 01 02 AA BB 10`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		frame, err := parseHexBytes(args)
		if err != nil {
			return err
		}
		return decodeTo(cmd.OutOrStdout(), cat, frame)
	},
}

var encodeCmd = &cobra.Command{
	Use:   "encode <type> <opcode> [hex data...]",
	Short: "Encode a CRUMBS frame",
	Long: `Build a frame and print its bytes, e.g. for firmware test vectors.

Example:
  crumbs encode led 0x01 AA BB`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		typeID, err := parseTypeID(cat, args[0])
		if err != nil {
			return err
		}
		opcode, err := parseUint8("opcode", args[1])
		if err != nil {
			return err
		}
		data, err := parseHexBytes(args[2:])
		if err != nil {
			return err
		}
		return encodeTo(cmd.OutOrStdout(), cat, typeID, opcode, data)
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(encodeCmd)
}

func decodeTo(w io.Writer, c *catalog.Catalog, frame []byte) error {
	m, err := crumbs.Decode(frame, nil)
	if err != nil {
		return fmt.Errorf("decode %s: %w", crumbs.FormatFrame(frame), err)
	}

	fmt.Fprintln(w, describeMessage(c, &m))
	if extra := len(frame) - m.FrameSize(); extra > 0 {
		fmt.Fprintf(w, "(%d trailing bytes ignored)\n", extra)
	}
	if m.Opcode == crumbs.OpcodeVersion && int(m.DataLen) >= crumbs.VersionReplySize {
		if info, err := crumbs.ParseVersionReply(m.Payload()); err == nil {
			fmt.Fprintf(w, "version: %s\n", info)
		}
	}
	return nil
}

func encodeTo(w io.Writer, c *catalog.Catalog, typeID, opcode uint8, data []byte) error {
	m := crumbs.NewMessage(typeID, opcode)
	if err := m.SetPayload(data); err != nil {
		return fmt.Errorf("%d data bytes (max %d): %w", len(data), crumbs.MaxPayload, err)
	}

	frame, err := crumbs.EncodeFrame(&m)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, crumbs.FormatFrame(frame))
	fmt.Fprintln(w, describeMessage(c, &m))
	return nil
}
