// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sim provides simulated CRUMBS peripherals for the simulated bus.
//
// A simulated peripheral is a protocol test double: it records every command
// it receives and answers queries from what it recorded.
package sim

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/Thermoquad/crumbs/internal/catalog"
	"github.com/Thermoquad/crumbs/internal/transport"
	"github.com/Thermoquad/crumbs/pkg/crumbs"
)

// Peripheral is a simulated device built on a peripheral crumbs.Context
type Peripheral struct {
	ctx    *crumbs.Context
	typeID uint8
	module catalog.ModuleVersion

	mu       sync.Mutex
	last     map[uint8][]byte
	lastOp   uint8
	received int
}

// NewPeripheral creates a peripheral at addr. Each opcode in handled gets a
// dedicated handler; every other opcode reaches the message callback. Both
// record the payload.
func NewPeripheral(addr, typeID uint8, module catalog.ModuleVersion, handled []uint8) (*Peripheral, error) {
	p := &Peripheral{
		ctx:    crumbs.NewContext(crumbs.RolePeripheral, addr),
		typeID: typeID,
		module: module,
		last:   make(map[uint8][]byte),
	}

	for _, op := range handled {
		if err := p.ctx.Register(op, p.handle, nil); err != nil {
			return nil, fmt.Errorf("register opcode 0x%02X: %w", op, err)
		}
	}
	p.ctx.SetCallbacks(p.onMessage, p.onRequest, p)

	return p, nil
}

// FromCatalog creates a peripheral for a catalog family, registering a
// handler for each of its command opcodes
func FromCatalog(cat *catalog.Catalog, addr, typeID uint8) (*Peripheral, error) {
	f, ok := cat.Lookup(typeID)
	if !ok {
		return NewPeripheral(addr, typeID, catalog.ModuleVersion{Major: 1}, nil)
	}

	var handled []uint8
	for _, op := range f.Opcodes {
		if op.Code <= crumbs.OpcodeCommandMax && len(handled) < crumbs.MaxHandlers {
			handled = append(handled, op.Code)
		}
	}
	return NewPeripheral(addr, typeID, f.Module, handled)
}

func (p *Peripheral) handle(_ *crumbs.Context, opcode uint8, data []byte, _ any) {
	p.record(opcode, data)
}

func (p *Peripheral) onMessage(_ *crumbs.Context, m *crumbs.Message) {
	p.record(m.Opcode, m.Payload())
}

func (p *Peripheral) record(opcode uint8, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last[opcode] = append([]byte(nil), data...)
	p.lastOp = opcode
	p.received++
}

// onRequest answers the staged opcode: version info for opcode 0, the
// recorded payload when the opcode was written before, and for unrecorded
// queries the most recent command as [opcode, payload...]
func (p *Peripheral) onRequest(ctx *crumbs.Context, reply *crumbs.Message) {
	op := ctx.RequestedOpcode()
	reply.Init(p.typeID, op)

	if op == crumbs.OpcodeVersion {
		_ = crumbs.AddVersionReply(reply, p.module.Major, p.module.Minor, p.module.Patch)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if data, ok := p.last[op]; ok {
		_ = reply.AddBytes(data)
		return
	}
	if op >= crumbs.OpcodeQueryMin && p.received > 0 {
		_ = reply.AddU8(p.lastOp)
		data := p.last[p.lastOp]
		if len(data) > reply.Remaining() {
			data = data[:reply.Remaining()]
		}
		_ = reply.AddBytes(data)
	}
}

// Context returns the peripheral's protocol context
func (p *Peripheral) Context() *crumbs.Context {
	return p.ctx
}

// Device returns the bus attachment for this peripheral
func (p *Peripheral) Device() *transport.PeripheralDevice {
	return &transport.PeripheralDevice{Ctx: p.ctx}
}

// TypeID returns the peripheral's type ID
func (p *Peripheral) TypeID() uint8 {
	return p.typeID
}

// Last returns the last payload written with opcode
func (p *Peripheral) Last(opcode uint8) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.last[opcode]
	return data, ok
}

// Received returns the number of dispatched messages
func (p *Peripheral) Received() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.received
}

// Spec places a peripheral of a given type at an address
type Spec struct {
	Addr   uint8
	TypeID uint8
}

// ParseSpec parses "addr:type" where type is a number or a catalog family
// name, e.g. "0x20:led" or "32:1"
func ParseSpec(cat *catalog.Catalog, s string) (Spec, error) {
	addrStr, typeStr, ok := strings.Cut(s, ":")
	if !ok {
		return Spec{}, fmt.Errorf("invalid peripheral %q (want addr:type)", s)
	}

	addr, err := strconv.ParseUint(strings.TrimSpace(addrStr), 0, 8)
	if err != nil {
		return Spec{}, fmt.Errorf("invalid address in %q: %w", s, err)
	}

	typeStr = strings.TrimSpace(typeStr)
	if typeID, err := strconv.ParseUint(typeStr, 0, 8); err == nil {
		return Spec{Addr: uint8(addr), TypeID: uint8(typeID)}, nil
	}
	for _, f := range cat.Families {
		if strings.EqualFold(f.Name, typeStr) {
			return Spec{Addr: uint8(addr), TypeID: f.TypeID}, nil
		}
	}
	return Spec{}, fmt.Errorf("unknown peripheral type %q", typeStr)
}

// DefaultSpecs places one peripheral of each catalog family at 0x10, 0x11, ...
func DefaultSpecs(cat *catalog.Catalog) []Spec {
	specs := make([]Spec, 0, len(cat.Families))
	for i, f := range cat.Families {
		specs = append(specs, Spec{Addr: 0x10 + uint8(i), TypeID: f.TypeID})
	}
	return specs
}

// Populate attaches peripherals and foreign devices to bus and returns the
// peripherals by address
func Populate(bus *transport.SimBus, cat *catalog.Catalog, specs []Spec, foreign []uint8) (map[uint8]*Peripheral, error) {
	periphs := make(map[uint8]*Peripheral, len(specs))
	for _, s := range specs {
		p, err := FromCatalog(cat, s.Addr, s.TypeID)
		if err != nil {
			return nil, fmt.Errorf("peripheral 0x%02X: %w", s.Addr, err)
		}
		bus.Attach(s.Addr, p.Device())
		periphs[s.Addr] = p
	}
	for _, a := range foreign {
		if _, taken := periphs[a]; taken {
			return nil, fmt.Errorf("foreign device 0x%02X collides with a peripheral", a)
		}
		bus.Attach(a, &transport.ForeignDevice{})
	}
	return periphs, nil
}
