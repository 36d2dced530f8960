// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Txer is the combined write-then-read I2C primitive shared by periph.io
// buses and TinyGo machine.I2C.
type Txer interface {
	Tx(addr uint16, w, r []byte) error
}

// TxBus adapts a Txer to a CRUMBS bus.
//
// Reads with a timeout run the transaction on a goroutine and abandon it when
// the timeout expires; the abandoned transaction still holds the bus until it
// returns.
type TxBus struct {
	mu     sync.Mutex
	tx     Txer
	closer func() error
	name   string
}

// NewTxBus wraps tx. closer may be nil.
func NewTxBus(tx Txer, name string, closer func() error) *TxBus {
	return &TxBus{tx: tx, name: name, closer: closer}
}

// String returns the bus name
func (b *TxBus) String() string {
	return b.name
}

func (b *TxBus) transact(addr uint8, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tx == nil {
		return ErrClosed
	}
	return b.tx.Tx(uint16(addr), w, r)
}

// Write sends data to addr
func (b *TxBus) Write(addr uint8, data []byte) error {
	if err := b.transact(addr, data, nil); err != nil {
		return fmt.Errorf("i2c write 0x%02X: %w", addr, err)
	}
	return nil
}

// Read fills buf from addr. A zero timeout waits for the transaction.
func (b *TxBus) Read(addr uint8, buf []byte, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		if err := b.transact(addr, nil, buf); err != nil {
			return 0, fmt.Errorf("i2c read 0x%02X: %w", addr, err)
		}
		return len(buf), nil
	}

	// The goroutine reads into its own buffer so an abandoned transaction
	// cannot write into buf after we return
	tmp := make([]byte, len(buf))
	done := make(chan error, 1)
	go func() {
		done <- b.transact(addr, nil, tmp)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return 0, fmt.Errorf("i2c read 0x%02X: %w", addr, err)
		}
		return copy(buf, tmp), nil
	case <-timer.C:
		return 0, fmt.Errorf("i2c read 0x%02X: %w", addr, ErrTimeout)
	}
}

// Probe reads one byte from addr. Empty transfers are not used: periph's
// sysfs driver returns nil for them without touching the bus.
func (b *TxBus) Probe(addr uint8) bool {
	var one [1]byte
	return b.transact(addr, nil, one[:]) == nil
}

// Close releases the underlying bus
func (b *TxBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tx = nil
	if b.closer != nil {
		return b.closer()
	}
	return nil
}

var hostInit = sync.OnceValue(func() error {
	_, err := host.Init()
	return err
})

// OpenLinuxI2C opens an I2C bus through periph.io. name is a bus number or
// device path such as "1" or "/dev/i2c-1"; empty selects the first bus.
func OpenLinuxI2C(name string) (*TxBus, error) {
	if err := hostInit(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", name, err)
	}

	return NewTxBus(bus, describeBus(bus), bus.Close), nil
}

func describeBus(bus i2c.BusCloser) string {
	return "i2c: " + bus.String()
}
