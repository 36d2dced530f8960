// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport implements CRUMBS buses for the host tools: Linux I2C,
// TinyGo I2C adapters, serial and WebSocket bridges, an in-process simulated
// bus and a rate limiter.
package transport

import (
	"errors"

	"github.com/Thermoquad/crumbs/pkg/crumbs"
)

// Transport errors
var (
	ErrNack    = errors.New("transport: address not acknowledged")
	ErrTimeout = errors.New("transport: timed out")
	ErrClosed  = errors.New("transport: closed")
	ErrBridge  = errors.New("transport: bridge error")
)

// Bus is a crumbs.Bus that can probe addresses and be closed
type Bus interface {
	crumbs.Bus
	crumbs.Prober
	Close() error
}
