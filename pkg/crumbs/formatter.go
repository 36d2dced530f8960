// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crumbs

import (
	"fmt"
	"strings"
)

// FormatMessage formats a message into a single human-readable line
func FormatMessage(m *Message) string {
	result := fmt.Sprintf("type=0x%02X %s (0x%02X) len=%d crc=0x%02X",
		m.TypeID, FormatOpcode(m.Opcode), m.Opcode, m.DataLen, m.CRC)

	if m.Opcode == OpcodeSetReply && m.DataLen > 0 {
		return result + fmt.Sprintf(" stage=0x%02X", m.Data[0])
	}
	if m.DataLen > 0 {
		result += " data=" + FormatFrame(m.Payload())
	}
	return result
}

// FormatOpcode returns the name of a protocol-level opcode, or its class for
// application opcodes
func FormatOpcode(opcode uint8) string {
	switch {
	case opcode == OpcodeVersion:
		return "VERSION"
	case opcode == OpcodeSetReply:
		return "SET_REPLY"
	case opcode == OpcodeReserved:
		return "RESERVED"
	case opcode <= OpcodeCommandMax:
		return "COMMAND"
	default:
		return "QUERY"
	}
}

// FormatFrame renders bytes as space-separated uppercase hex
func FormatFrame(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}
