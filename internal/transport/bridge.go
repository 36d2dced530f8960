// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/crumbs/pkg/crumbs"
)

// Bridge operations
const (
	OpWrite uint8 = 0x01
	OpRead  uint8 = 0x02
	OpProbe uint8 = 0x03
)

// Bridge response status codes
const (
	StatusOK      uint8 = 0
	StatusNack    uint8 = 1
	StatusTimeout uint8 = 2
	StatusError   uint8 = 3
)

// MaxBridgeData bounds request and response data; bridged buses only carry
// CRUMBS frames
const MaxBridgeData = crumbs.MessageMaxSize

// Request is one bus transaction sent to a bridge
type Request struct {
	Op        uint8  `cbor:"0,keyasint"`
	Addr      uint8  `cbor:"1,keyasint"`
	Data      []byte `cbor:"2,keyasint,omitempty"`
	MaxLen    uint8  `cbor:"3,keyasint,omitempty"`
	TimeoutUS uint32 `cbor:"4,keyasint,omitempty"`
}

// Response is the bridge's answer to a Request
type Response struct {
	Status uint8  `cbor:"0,keyasint"`
	Data   []byte `cbor:"1,keyasint,omitempty"`
}

// Timeout returns the request timeout as a duration
func (r Request) Timeout() time.Duration {
	return time.Duration(r.TimeoutUS) * time.Microsecond
}

// Validate rejects requests a bridge must not execute
func (r Request) Validate() error {
	switch r.Op {
	case OpWrite:
		if len(r.Data) > MaxBridgeData {
			return fmt.Errorf("%w: write of %d bytes exceeds %d", ErrBridge, len(r.Data), MaxBridgeData)
		}
	case OpRead:
		if r.MaxLen == 0 || r.MaxLen > MaxBridgeData {
			return fmt.Errorf("%w: invalid read length %d", ErrBridge, r.MaxLen)
		}
	case OpProbe:
	default:
		return fmt.Errorf("%w: unknown op 0x%02X", ErrBridge, r.Op)
	}
	return nil
}

// StatusErr maps a response status to a transport error
func StatusErr(status uint8) error {
	switch status {
	case StatusOK:
		return nil
	case StatusNack:
		return ErrNack
	case StatusTimeout:
		return ErrTimeout
	default:
		return ErrBridge
	}
}

// errStatus maps a bus error to a response status
func errStatus(err error) uint8 {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrNack):
		return StatusNack
	case errors.Is(err, ErrTimeout):
		return StatusTimeout
	default:
		return StatusError
	}
}

// Execute runs req against bus and builds the response. This is the bridge
// side of the protocol, shared by the WebSocket server and test fixtures.
func Execute(bus Bus, req Request) Response {
	if err := req.Validate(); err != nil {
		return Response{Status: StatusError}
	}

	switch req.Op {
	case OpWrite:
		return Response{Status: errStatus(bus.Write(req.Addr, req.Data))}
	case OpRead:
		buf := make([]byte, req.MaxLen)
		n, err := bus.Read(req.Addr, buf, req.Timeout())
		if err != nil {
			return Response{Status: errStatus(err)}
		}
		return Response{Status: StatusOK, Data: buf[:n]}
	default:
		if bus.Probe(req.Addr) {
			return Response{Status: StatusOK}
		}
		return Response{Status: StatusNack}
	}
}

// RoundTripper carries one request to a bridge and returns its response
type RoundTripper interface {
	RoundTrip(req Request) (Response, error)
	Close() error
}

// BridgeBus is a CRUMBS bus whose transactions run on a remote bridge
type BridgeBus struct {
	mu   sync.Mutex
	rt   RoundTripper
	name string
}

// NewBridgeBus wraps rt
func NewBridgeBus(rt RoundTripper, name string) *BridgeBus {
	return &BridgeBus{rt: rt, name: name}
}

// String returns the bridge description
func (b *BridgeBus) String() string {
	return b.name
}

func (b *BridgeBus) roundTrip(req Request) (Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rt == nil {
		return Response{}, ErrClosed
	}
	return b.rt.RoundTrip(req)
}

// Write sends data to addr through the bridge
func (b *BridgeBus) Write(addr uint8, data []byte) error {
	resp, err := b.roundTrip(Request{Op: OpWrite, Addr: addr, Data: data})
	if err != nil {
		return fmt.Errorf("bridge write 0x%02X: %w", addr, err)
	}
	if err := StatusErr(resp.Status); err != nil {
		return fmt.Errorf("bridge write 0x%02X: %w", addr, err)
	}
	return nil
}

// Read reads up to len(buf) bytes from addr through the bridge
func (b *BridgeBus) Read(addr uint8, buf []byte, timeout time.Duration) (int, error) {
	maxLen := len(buf)
	if maxLen > MaxBridgeData {
		maxLen = MaxBridgeData
	}

	resp, err := b.roundTrip(Request{
		Op:        OpRead,
		Addr:      addr,
		MaxLen:    uint8(maxLen),
		TimeoutUS: uint32(timeout / time.Microsecond),
	})
	if err != nil {
		return 0, fmt.Errorf("bridge read 0x%02X: %w", addr, err)
	}
	if err := StatusErr(resp.Status); err != nil {
		return 0, fmt.Errorf("bridge read 0x%02X: %w", addr, err)
	}
	return copy(buf, resp.Data), nil
}

// Probe asks the bridge whether addr acknowledges
func (b *BridgeBus) Probe(addr uint8) bool {
	resp, err := b.roundTrip(Request{Op: OpProbe, Addr: addr})
	return err == nil && resp.Status == StatusOK
}

// Close closes the bridge connection
func (b *BridgeBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rt == nil {
		return nil
	}
	err := b.rt.Close()
	b.rt = nil
	return err
}
