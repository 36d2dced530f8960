// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// LimitedBus spaces transactions on a slow or shared bus
type LimitedBus struct {
	Bus
	limiter *rate.Limiter
}

// NewLimitedBus allows perSecond transactions with the given burst
func NewLimitedBus(bus Bus, perSecond float64, burst int) *LimitedBus {
	if burst < 1 {
		burst = 1
	}
	return &LimitedBus{
		Bus:     bus,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (b *LimitedBus) wait() error {
	return b.limiter.Wait(context.Background())
}

// Write waits for a token and writes
func (b *LimitedBus) Write(addr uint8, data []byte) error {
	if err := b.wait(); err != nil {
		return err
	}
	return b.Bus.Write(addr, data)
}

// Read waits for a token and reads
func (b *LimitedBus) Read(addr uint8, buf []byte, timeout time.Duration) (int, error) {
	if err := b.wait(); err != nil {
		return 0, err
	}
	return b.Bus.Read(addr, buf, timeout)
}

// Probe waits for a token and probes
func (b *LimitedBus) Probe(addr uint8) bool {
	if b.wait() != nil {
		return false
	}
	return b.Bus.Probe(addr)
}
