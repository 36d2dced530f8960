// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// crumbs - CRUMBS bus tool
//
// Scans, queries and monitors CRUMBS peripherals over Linux I2C, a serial
// or WebSocket bridge, or a simulated bus.

package main

import (
	"os"

	"github.com/Thermoquad/crumbs/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
