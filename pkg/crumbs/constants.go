// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package crumbs provides a reference Go implementation of the CRUMBS bus protocol.
//
// CRUMBS is a small request/response protocol between one bus controller and
// many addressable peripherals on a shared byte-oriented bus such as I2C. This
// package provides the CRC engine, payload cursor, frame codec, dispatch core
// and bus scanner. It performs no I/O of its own and allocates nothing after a
// Context has been initialized, so it builds unchanged with TinyGo.
package crumbs

// Frame size limits.
//
// MessageMaxSize is a deployment constant rather than a property of the wire
// format: both ends of a bus must agree on it.
const (
	MessageMaxSize = 31
	HeaderSize     = 3 // type_id + opcode + data_len
	TrailerSize    = 1 // crc8
	FrameOverhead  = HeaderSize + TrailerSize
	MaxPayload     = MessageMaxSize - FrameOverhead
)

// Frame field offsets
const (
	offsetTypeID  = 0
	offsetOpcode  = 1
	offsetDataLen = 2
	offsetData    = 3
)

// CRC-8 configuration (poly 0x07, init 0x00, no reflection, xorout 0x00)
const (
	crcPolynomial = 0x07
	crcInitial    = 0x00
)

// Reserved opcodes
const (
	OpcodeVersion  = 0x00 // identity/version query, implicit default reply
	OpcodeSetReply = 0xFE // stage an opcode for the next read
	OpcodeReserved = 0xFF
)

// Opcode ranges. Commands live below 0x80, queries answered via SET_REPLY
// conventionally live at 0x80 and above.
const (
	OpcodeCommandMax = 0x7F
	OpcodeQueryMin   = 0x80
)

// I2C 7-bit address space usable by peripherals
const (
	AddressMin = 0x03
	AddressMax = 0x77
)

// Role identifies which side of the bus a Context serves.
type Role uint8

// Role values
const (
	RoleController Role = iota
	RolePeripheral
)

// String returns the role name
func (r Role) String() string {
	switch r {
	case RoleController:
		return "controller"
	case RolePeripheral:
		return "peripheral"
	default:
		return "unknown"
	}
}
