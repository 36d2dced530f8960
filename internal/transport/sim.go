// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/Thermoquad/crumbs/pkg/crumbs"
)

// SimDevice is a device attached to a SimBus
type SimDevice interface {
	// Write delivers a controller write. A zero-length write is a probe.
	Write(data []byte) error
	// Read fills buf with the device's reply
	Read(buf []byte) (int, error)
}

// PeripheralDevice drives a peripheral crumbs.Context from bus traffic
type PeripheralDevice struct {
	Ctx *crumbs.Context
}

// Write hands a frame to the peripheral's receive path. Frames that fail to
// decode are still acknowledged at the bus level, as on real hardware.
func (d *PeripheralDevice) Write(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	_ = d.Ctx.HandleReceive(data)
	return nil
}

// Read builds the peripheral's reply
func (d *PeripheralDevice) Read(buf []byte) (int, error) {
	var frame [crumbs.MessageMaxSize]byte
	n, err := d.Ctx.BuildReply(frame[:])
	if err != nil {
		return 0, err
	}
	return copy(buf, frame[:n]), nil
}

// DefaultForeignReply declares 16 data bytes but carries two and no CRC
var DefaultForeignReply = []byte{0x00, 0x00, 0x10, 0x01, 0x02}

// ForeignDevice acknowledges its address but does not speak CRUMBS
type ForeignDevice struct {
	Reply []byte // nil uses DefaultForeignReply
}

// Write accepts and discards data
func (d *ForeignDevice) Write([]byte) error {
	return nil
}

// Read returns the fixed non-conforming reply
func (d *ForeignDevice) Read(buf []byte) (int, error) {
	if d.Reply == nil {
		return copy(buf, DefaultForeignReply), nil
	}
	return copy(buf, d.Reply), nil
}

type simSlot struct {
	dev     SimDevice
	latency time.Duration
}

// SimBus is an in-process bus hosting simulated devices. It can inject
// random bit errors into traffic and delay individual devices.
type SimBus struct {
	mu           sync.Mutex
	devices      map[uint8]*simSlot
	rng          *rand.Rand
	bitErrorRate float64
	sleep        func(time.Duration)
}

// NewSimBus returns an empty bus
func NewSimBus() *SimBus {
	return &SimBus{
		devices: make(map[uint8]*simSlot),
		rng:     rand.New(rand.NewSource(1)),
		sleep:   time.Sleep,
	}
}

// Attach places dev at addr, replacing any device already there
func (b *SimBus) Attach(addr uint8, dev SimDevice) {
	b.AttachWithLatency(addr, dev, 0)
}

// AttachWithLatency places dev at addr with a fixed reply latency. Reads
// with a shorter timeout fail with ErrTimeout.
func (b *SimBus) AttachWithLatency(addr uint8, dev SimDevice, latency time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices[addr] = &simSlot{dev: dev, latency: latency}
}

// Detach removes the device at addr
func (b *SimBus) Detach(addr uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.devices, addr)
}

// Addresses lists occupied addresses in ascending order
func (b *SimBus) Addresses() []uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	addrs := make([]uint8, 0, len(b.devices))
	for a := range b.devices {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// SetBitErrors flips each transferred bit with probability rate, using a
// generator seeded with seed. A zero rate disables injection.
func (b *SimBus) SetBitErrors(rate float64, seed int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bitErrorRate = rate
	b.rng = rand.New(rand.NewSource(seed))
}

// corrupt flips bits in data in place according to the error rate
func (b *SimBus) corrupt(data []byte) {
	if b.bitErrorRate <= 0 {
		return
	}
	for i := range data {
		for bit := 0; bit < 8; bit++ {
			if b.rng.Float64() < b.bitErrorRate {
				data[i] ^= 1 << bit
			}
		}
	}
}

// Write delivers data to the device at addr
func (b *SimBus) Write(addr uint8, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	slot, ok := b.devices[addr]
	if !ok {
		return ErrNack
	}

	wire := append([]byte(nil), data...)
	b.corrupt(wire)
	return slot.dev.Write(wire)
}

// Read reads the reply of the device at addr
func (b *SimBus) Read(addr uint8, buf []byte, timeout time.Duration) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	slot, ok := b.devices[addr]
	if !ok {
		return 0, ErrNack
	}

	if slot.latency > 0 {
		if timeout > 0 && slot.latency > timeout {
			b.sleep(timeout)
			return 0, ErrTimeout
		}
		b.sleep(slot.latency)
	}

	n, err := slot.dev.Read(buf)
	if err != nil {
		return 0, err
	}
	b.corrupt(buf[:n])
	return n, nil
}

// Probe reports whether a device occupies addr
func (b *SimBus) Probe(addr uint8) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.devices[addr]
	return ok
}

// Close is a no-op
func (b *SimBus) Close() error {
	return nil
}
