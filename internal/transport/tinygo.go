// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"tinygo.org/x/drivers"
)

// NewTinyGoBus adapts a TinyGo drivers.I2C bus, e.g. machine.I2C0 on an
// RP2040 acting as bus controller
func NewTinyGoBus(bus drivers.I2C, name string) *TxBus {
	return NewTxBus(bus, name, nil)
}
