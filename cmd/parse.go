// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/Thermoquad/crumbs/internal/catalog"
	"github.com/Thermoquad/crumbs/pkg/crumbs"
)

// parseUint8 accepts decimal, 0x hex, 0o octal or 0b binary
func parseUint8(what, s string) (uint8, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", what, s, err)
	}
	return uint8(v), nil
}

// parseAddress parses a 7-bit peripheral address
func parseAddress(s string) (uint8, error) {
	addr, err := parseUint8("address", s)
	if err != nil {
		return 0, err
	}
	if addr > 0x7F {
		return 0, fmt.Errorf("invalid address 0x%02X (7-bit addresses only)", addr)
	}
	return addr, nil
}

// parseTypeID accepts a number or a catalog family name
func parseTypeID(c *catalog.Catalog, s string) (uint8, error) {
	if v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8); err == nil {
		return uint8(v), nil
	}
	for _, f := range c.Families {
		if strings.EqualFold(f.Name, s) {
			return f.TypeID, nil
		}
	}
	return 0, fmt.Errorf("unknown type %q", s)
}

// parseHexBytes joins args and decodes them as hex. Each argument may carry
// a 0x prefix and use spaces, colons or dashes as separators:
// "AA BB", "0xAA 0xBB", "aa:bb" and "AABB" are equivalent.
func parseHexBytes(args []string) ([]byte, error) {
	var sb strings.Builder
	for _, a := range args {
		for _, tok := range strings.FieldsFunc(a, func(r rune) bool {
			return r == ' ' || r == ':' || r == '-' || r == ','
		}) {
			tok = strings.TrimPrefix(strings.TrimPrefix(tok, "0x"), "0X")
			if len(tok)%2 == 1 {
				tok = "0" + tok
			}
			sb.WriteString(tok)
		}
	}

	data, err := hex.DecodeString(sb.String())
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return data, nil
}

// describeMessage formats m with catalog names
func describeMessage(c *catalog.Catalog, m *crumbs.Message) string {
	return fmt.Sprintf("%s %s: %s",
		c.TypeName(m.TypeID), c.OpcodeName(m.TypeID, m.Opcode), crumbs.FormatMessage(m))
}
