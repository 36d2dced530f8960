// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crumbs

import (
	"errors"
	"testing"
	"time"
)

// ============================================================
// Test Bus
// ============================================================

var errNack = errors.New("nack")

// testDevice answers bus traffic at one address
type testDevice interface {
	write(data []byte) error
	read(buf []byte) (int, error)
}

// peripheralDevice routes traffic through a peripheral context
type peripheralDevice struct {
	ctx *Context
}

func (d *peripheralDevice) write(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	d.ctx.HandleReceive(data)
	return nil
}

func (d *peripheralDevice) read(buf []byte) (int, error) {
	return d.ctx.BuildReply(buf)
}

// foreignDevice ACKs but answers with bytes that are not a frame
type foreignDevice struct{}

func (foreignDevice) write([]byte) error { return nil }

func (foreignDevice) read(buf []byte) (int, error) {
	return copy(buf, []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01}), nil
}

// silentDevice ACKs but times out on every read
type silentDevice struct{}

func (silentDevice) write([]byte) error { return nil }

func (silentDevice) read([]byte) (int, error) {
	return 0, errors.New("timeout")
}

type testBus struct {
	devices map[uint8]testDevice
	writes  int
	reads   int
	probes  int
}

func newTestBus() *testBus {
	return &testBus{devices: make(map[uint8]testDevice)}
}

func (b *testBus) Write(addr uint8, data []byte) error {
	b.writes++
	d, ok := b.devices[addr]
	if !ok {
		return errNack
	}
	return d.write(data)
}

func (b *testBus) Read(addr uint8, buf []byte, _ time.Duration) (int, error) {
	b.reads++
	d, ok := b.devices[addr]
	if !ok {
		return 0, errNack
	}
	return d.read(buf)
}

// probingBus adds an address-only probe
type probingBus struct {
	*testBus
}

func (b probingBus) Probe(addr uint8) bool {
	b.probes++
	_, ok := b.devices[addr]
	return ok
}

func newTestPeripheral(addr, typeID uint8) *peripheralDevice {
	ctx := NewContext(RolePeripheral, addr)
	ctx.SetCallbacks(nil, func(c *Context, reply *Message) {
		reply.Init(typeID, c.RequestedOpcode())
		if c.RequestedOpcode() == OpcodeVersion {
			AddVersionReply(reply, 1, 2, 3)
		}
	}, nil)
	return &peripheralDevice{ctx: ctx}
}

// ============================================================
// Scan Tests
// ============================================================

func TestScan_Disambiguation(t *testing.T) {
	bus := newTestBus()
	bus.devices[0x20] = newTestPeripheral(0x20, 0x01)
	bus.devices[0x21] = foreignDevice{}

	ctx := NewContext(RoleController, 0)
	opts := ScanOptions{Start: 0x08, End: 0x77, Timeout: time.Millisecond}
	found := make([]uint8, 8)

	n, err := Scan(ctx, bus, opts, found)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || found[0] != 0x20 || found[1] != 0x21 {
		t.Errorf("non-strict: n=%d found=% X", n, found[:n])
	}

	opts.Strict = true
	n, err = Scan(ctx, bus, opts, found)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || found[0] != 0x20 {
		t.Errorf("strict: n=%d found=% X", n, found[:n])
	}

	if ctx.CRCErrorCount() != 0 {
		t.Errorf("scan touched context stats: %d errors", ctx.CRCErrorCount())
	}
}

func TestScan_CapacityReportsTrueCount(t *testing.T) {
	bus := newTestBus()
	for _, a := range []uint8{0x10, 0x11, 0x12, 0x13} {
		bus.devices[a] = newTestPeripheral(a, 1)
	}

	ctx := NewContext(RoleController, 0)
	found := make([]uint8, 2)
	n, err := Scan(ctx, bus, ScanOptions{Start: 0x03, End: 0x77, Strict: true}, found)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("count = %d, want 4", n)
	}
	if found[0] != 0x10 || found[1] != 0x11 {
		t.Errorf("stored = % X", found)
	}
}

func TestScan_TimeoutsDoNotStopWalk(t *testing.T) {
	bus := newTestBus()
	bus.devices[0x10] = silentDevice{}
	bus.devices[0x11] = newTestPeripheral(0x11, 1)

	ctx := NewContext(RoleController, 0)
	found := make([]uint8, 4)
	n, _ := Scan(ctx, bus, ScanOptions{Start: 0x10, End: 0x11, Strict: true}, found)
	if n != 1 || found[0] != 0x11 {
		t.Errorf("n=%d found=% X", n, found[:n])
	}
}

func TestScan_UsesProber(t *testing.T) {
	bus := probingBus{newTestBus()}
	bus.devices[0x30] = newTestPeripheral(0x30, 1)

	ctx := NewContext(RoleController, 0)
	n, err := Scan(ctx, bus, ScanOptions{Start: 0x28, End: 0x37}, make([]uint8, 4))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("n = %d", n)
	}
	if bus.writes != 0 {
		t.Errorf("scan wrote %d times despite Prober", bus.writes)
	}
	if bus.reads != 0 {
		t.Errorf("non-strict scan without types read %d times", bus.reads)
	}
}

func TestScanWithTypes(t *testing.T) {
	bus := newTestBus()
	bus.devices[0x20] = newTestPeripheral(0x20, 0x01)
	bus.devices[0x40] = newTestPeripheral(0x40, 0x03)
	bus.devices[0x50] = foreignDevice{}

	ctx := NewContext(RoleController, 0)
	addrs := make([]uint8, 4)
	types := make([]uint8, 4)

	n, err := ScanWithTypes(ctx, bus, ScanOptions{Start: 0x03, End: 0x77}, addrs, types)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("n = %d", n)
	}
	want := [][2]uint8{{0x20, 0x01}, {0x40, 0x03}, {0x50, 0x00}}
	for i, w := range want {
		if addrs[i] != w[0] || types[i] != w[1] {
			t.Errorf("device %d: addr=0x%02X type=0x%02X, want 0x%02X/0x%02X", i, addrs[i], types[i], w[0], w[1])
		}
	}
}

func TestScan_Errors(t *testing.T) {
	bus := newTestBus()

	if _, err := Scan(NewContext(RolePeripheral, 0x10), bus, DefaultScanOptions(), nil); !errors.Is(err, ErrWrongRole) {
		t.Errorf("expected ErrWrongRole, got %v", err)
	}
	if _, err := Scan(NewContext(RoleController, 0), bus, ScanOptions{Start: 0x50, End: 0x10}, nil); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
}

func TestScan_FullRangeTerminates(t *testing.T) {
	bus := newTestBus()
	bus.devices[0xFF] = newTestPeripheral(0xFF, 1)

	ctx := NewContext(RoleController, 0)
	n, err := Scan(ctx, bus, ScanOptions{Start: 0x00, End: 0xFF, Strict: true}, make([]uint8, 1))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("n = %d", n)
	}
}

// ============================================================
// Controller Transport Tests
// ============================================================

func TestQuery_TwoPhase(t *testing.T) {
	bus := newTestBus()
	periph := newTestPeripheral(0x20, 0x02)
	bus.devices[0x20] = periph

	ctx := NewContext(RoleController, 0)
	m, err := Query(ctx, bus, 0x20, 0x80, 0, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if m.TypeID != 0x02 || m.Opcode != 0x80 {
		t.Errorf("reply %s", FormatMessage(&m))
	}
	if periph.ctx.RequestedOpcode() != 0x80 {
		t.Errorf("peripheral staged 0x%02X", periph.ctx.RequestedOpcode())
	}
	if !ctx.LastCRCOK() {
		t.Error("controller LastCRCOK should be true")
	}
}

func TestQuery_Version(t *testing.T) {
	bus := newTestBus()
	bus.devices[0x20] = newTestPeripheral(0x20, 0x02)

	ctx := NewContext(RoleController, 0)
	m, err := Query(ctx, bus, 0x20, OpcodeVersion, 0, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	info, err := ParseVersionReply(m.Payload())
	if err != nil {
		t.Fatal(err)
	}
	if info.Library != Version || info.Major != 1 || info.Minor != 2 || info.Patch != 3 {
		t.Errorf("version = %+v", info)
	}
}

func TestReadMessage_CorruptCounted(t *testing.T) {
	bus := newTestBus()
	bus.devices[0x21] = foreignDevice{}

	ctx := NewContext(RoleController, 0)
	_, err := ReadMessage(ctx, bus, 0x21, time.Millisecond)
	if !errors.Is(err, ErrIntegrity) {
		t.Errorf("expected integrity error, got %v", err)
	}
	if ctx.CRCErrorCount() != 1 || ctx.LastCRCOK() {
		t.Error("controller stats not updated")
	}
}

func TestControllerSend_TransportErrorUnchanged(t *testing.T) {
	bus := newTestBus()
	ctx := NewContext(RoleController, 0)
	m := NewMessage(1, 1)

	if err := ControllerSend(ctx, bus, 0x42, &m); !errors.Is(err, errNack) {
		t.Errorf("expected nack, got %v", err)
	}
	if err := ControllerSend(NewContext(RolePeripheral, 1), bus, 0x42, &m); !errors.Is(err, ErrWrongRole) {
		t.Errorf("expected ErrWrongRole, got %v", err)
	}
}
