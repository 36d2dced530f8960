// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crumbs

import "time"

// ScanOptions selects the address range and the detection mode of a scan
type ScanOptions struct {
	Start   uint8
	End     uint8
	Strict  bool          // require a decodable reply, not just an ACK
	Timeout time.Duration // per-address read timeout in strict mode
}

// DefaultScanOptions covers the usable 7-bit range in strict mode
func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		Start:   AddressMin,
		End:     AddressMax,
		Strict:  true,
		Timeout: 10 * time.Millisecond,
	}
}

// Scan walks [opts.Start, opts.End] and records responding addresses in
// found. It returns the number of devices detected, which may exceed
// len(found); only the first len(found) are stored.
//
// Replies read during a scan are decoded without touching ctx statistics.
func Scan(ctx *Context, bus Bus, opts ScanOptions, found []uint8) (int, error) {
	return ScanWithTypes(ctx, bus, opts, found, nil)
}

// ScanWithTypes is Scan that also records the TypeID of each reply in types.
// Devices found without a decodable reply report type 0.
func ScanWithTypes(ctx *Context, bus Bus, opts ScanOptions, found []uint8, types []uint8) (int, error) {
	if ctx.role != RoleController {
		return 0, ErrWrongRole
	}
	if opts.Start > opts.End {
		return 0, ErrInvalidRange
	}

	prober, _ := bus.(Prober)
	count := 0

	for addr := int(opts.Start); addr <= int(opts.End); addr++ {
		a := uint8(addr)

		if !probe(bus, prober, a) {
			continue
		}

		var typeID uint8
		if opts.Strict || count < len(types) {
			t, ok := readType(bus, a, opts.Timeout)
			if opts.Strict && !ok {
				continue
			}
			typeID = t
		}

		if count < len(found) {
			found[count] = a
		}
		if count < len(types) {
			types[count] = typeID
		}
		count++
	}

	return count, nil
}

// probe tests for an acknowledging device, falling back to a zero-length
// write when the bus has no dedicated probe
func probe(bus Bus, prober Prober, addr uint8) bool {
	if prober != nil {
		return prober.Probe(addr)
	}
	return bus.Write(addr, nil) == nil
}

// readType reads a full frame from addr and reports its TypeID if it decodes
func readType(bus Bus, addr uint8, timeout time.Duration) (uint8, bool) {
	var buf [MessageMaxSize]byte
	n, err := bus.Read(addr, buf[:], timeout)
	if err != nil || n <= 0 {
		return 0, false
	}
	if n > len(buf) {
		n = len(buf)
	}
	m, err := decodeFrame(buf[:n])
	if err != nil {
		return 0, false
	}
	return m.TypeID, true
}
