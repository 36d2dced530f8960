// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crumbs

import "time"

// DefaultSettle is the pause between the SET_REPLY write and the read in a
// two-phase query, giving the peripheral time to prepare its reply.
const DefaultSettle = 10 * time.Millisecond

// Writer sends a frame to a bus address
type Writer interface {
	Write(addr uint8, data []byte) error
}

// Reader reads up to len(buf) bytes from a bus address, waiting at most
// timeout. It returns the number of bytes received.
type Reader interface {
	Read(addr uint8, buf []byte, timeout time.Duration) (int, error)
}

// Prober tests an address for an acknowledging device. Buses that cannot
// issue an address-only transaction need not implement it.
type Prober interface {
	Probe(addr uint8) bool
}

// Bus is the transport a controller drives
type Bus interface {
	Writer
	Reader
}

// ControllerSend encodes m and writes it to addr. Transport errors are
// returned unchanged.
func ControllerSend(ctx *Context, w Writer, addr uint8, m *Message) error {
	if ctx.role != RoleController {
		return ErrWrongRole
	}

	var frame [MessageMaxSize]byte
	n, err := Encode(m, frame[:])
	if err != nil {
		return err
	}
	return w.Write(addr, frame[:n])
}

// SendSetReply stages opcode on the peripheral at addr for its next read
func SendSetReply(ctx *Context, w Writer, addr uint8, opcode uint8) error {
	m := NewMessage(0, OpcodeSetReply)
	m.Data[0] = opcode
	m.DataLen = 1
	return ControllerSend(ctx, w, addr, &m)
}

// ReadMessage reads one reply frame from addr and decodes it against ctx.
// An empty read yields ErrNoResponse.
func ReadMessage(ctx *Context, r Reader, addr uint8, timeout time.Duration) (Message, error) {
	if ctx.role != RoleController {
		return Message{}, ErrWrongRole
	}

	var buf [MessageMaxSize]byte
	n, err := r.Read(addr, buf[:], timeout)
	if err != nil {
		return Message{}, err
	}
	if n <= 0 {
		return Message{}, ErrNoResponse
	}
	if n > len(buf) {
		n = len(buf)
	}
	return Decode(buf[:n], ctx)
}

// Query performs the two-phase SET_REPLY query: stage opcode, wait settle,
// then read and decode the reply.
func Query(ctx *Context, bus Bus, addr, opcode uint8, settle, timeout time.Duration) (Message, error) {
	if err := SendSetReply(ctx, bus, addr, opcode); err != nil {
		return Message{}, err
	}
	if settle > 0 {
		time.Sleep(settle)
	}
	return ReadMessage(ctx, bus, addr, timeout)
}
