// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crumbs

import "math"

// Payload writers append little-endian values to a message. A write that would
// exceed MaxPayload fails with ErrPayloadFull and leaves DataLen unchanged.

// reserve returns the slice for n more bytes and advances DataLen, or nil when
// the payload cannot hold them
func (m *Message) reserve(n int) []byte {
	start := int(m.DataLen)
	if start+n > MaxPayload {
		return nil
	}
	m.DataLen += uint8(n)
	return m.Data[start : start+n]
}

// AddU8 appends one byte
func (m *Message) AddU8(v uint8) error {
	b := m.reserve(1)
	if b == nil {
		return ErrPayloadFull
	}
	b[0] = v
	return nil
}

// AddU16 appends a little-endian uint16
func (m *Message) AddU16(v uint16) error {
	b := m.reserve(2)
	if b == nil {
		return ErrPayloadFull
	}
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	return nil
}

// AddU24 appends the low 24 bits of v, little-endian
func (m *Message) AddU24(v uint32) error {
	b := m.reserve(3)
	if b == nil {
		return ErrPayloadFull
	}
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	return nil
}

// AddU32 appends a little-endian uint32
func (m *Message) AddU32(v uint32) error {
	b := m.reserve(4)
	if b == nil {
		return ErrPayloadFull
	}
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	return nil
}

// AddI8 appends a signed byte
func (m *Message) AddI8(v int8) error {
	return m.AddU8(uint8(v))
}

// AddI16 appends a little-endian int16
func (m *Message) AddI16(v int16) error {
	return m.AddU16(uint16(v))
}

// AddI32 appends a little-endian int32
func (m *Message) AddI32(v int32) error {
	return m.AddU32(uint32(v))
}

// AddFloat32 appends an IEEE-754 float32 in little-endian byte order,
// independent of the host's native order.
func (m *Message) AddFloat32(v float32) error {
	return m.AddU32(math.Float32bits(v))
}

// AddBytes appends raw bytes. Nothing is written unless all of data fits.
func (m *Message) AddBytes(data []byte) error {
	b := m.reserve(len(data))
	if b == nil {
		return ErrPayloadFull
	}
	copy(b, data)
	return nil
}

// Payload readers extract little-endian values from data at offset. They fail
// with ErrOutOfRange instead of reading past len(data).

func inRange(data []byte, offset, width int) bool {
	return offset >= 0 && width >= 0 && offset <= len(data) && width <= len(data)-offset
}

// ReadU8 reads one byte at offset
func ReadU8(data []byte, offset int) (uint8, error) {
	if !inRange(data, offset, 1) {
		return 0, ErrOutOfRange
	}
	return data[offset], nil
}

// ReadU16 reads a little-endian uint16 at offset
func ReadU16(data []byte, offset int) (uint16, error) {
	if !inRange(data, offset, 2) {
		return 0, ErrOutOfRange
	}
	return uint16(data[offset]) | uint16(data[offset+1])<<8, nil
}

// ReadU24 reads a little-endian 24-bit value at offset
func ReadU24(data []byte, offset int) (uint32, error) {
	if !inRange(data, offset, 3) {
		return 0, ErrOutOfRange
	}
	return uint32(data[offset]) | uint32(data[offset+1])<<8 | uint32(data[offset+2])<<16, nil
}

// ReadU32 reads a little-endian uint32 at offset
func ReadU32(data []byte, offset int) (uint32, error) {
	if !inRange(data, offset, 4) {
		return 0, ErrOutOfRange
	}
	return uint32(data[offset]) | uint32(data[offset+1])<<8 |
		uint32(data[offset+2])<<16 | uint32(data[offset+3])<<24, nil
}

// ReadI8 reads a signed byte at offset
func ReadI8(data []byte, offset int) (int8, error) {
	v, err := ReadU8(data, offset)
	return int8(v), err
}

// ReadI16 reads a little-endian int16 at offset
func ReadI16(data []byte, offset int) (int16, error) {
	v, err := ReadU16(data, offset)
	return int16(v), err
}

// ReadI32 reads a little-endian int32 at offset
func ReadI32(data []byte, offset int) (int32, error) {
	v, err := ReadU32(data, offset)
	return int32(v), err
}

// ReadFloat32 reads a little-endian IEEE-754 float32 at offset
func ReadFloat32(data []byte, offset int) (float32, error) {
	v, err := ReadU32(data, offset)
	return math.Float32frombits(v), err
}

// ReadBytes copies len(out) bytes starting at offset into out
func ReadBytes(data []byte, offset int, out []byte) error {
	if !inRange(data, offset, len(out)) {
		return ErrOutOfRange
	}
	copy(out, data[offset:])
	return nil
}

// PayloadReader walks a payload front to back. The first failed read sticks:
// later reads return zero values and Err reports the failure, so handlers can
// read every field and check once.
type PayloadReader struct {
	data []byte
	off  int
	err  error
}

// NewPayloadReader creates a reader over data
func NewPayloadReader(data []byte) *PayloadReader {
	return &PayloadReader{data: data}
}

// Reset points the reader at a new payload
func (r *PayloadReader) Reset(data []byte) {
	r.data = data
	r.off = 0
	r.err = nil
}

// Err returns the first read error, if any
func (r *PayloadReader) Err() error {
	return r.err
}

// Offset returns the position of the next read
func (r *PayloadReader) Offset() int {
	return r.off
}

// Remaining returns the unread byte count
func (r *PayloadReader) Remaining() int {
	return len(r.data) - r.off
}

func (r *PayloadReader) take(n int) bool {
	if r.err != nil {
		return false
	}
	if !inRange(r.data, r.off, n) {
		r.err = ErrOutOfRange
		return false
	}
	r.off += n
	return true
}

// U8 reads the next byte
func (r *PayloadReader) U8() uint8 {
	if !r.take(1) {
		return 0
	}
	return r.data[r.off-1]
}

// U16 reads the next little-endian uint16
func (r *PayloadReader) U16() uint16 {
	if !r.take(2) {
		return 0
	}
	v, _ := ReadU16(r.data, r.off-2)
	return v
}

// U24 reads the next little-endian 24-bit value
func (r *PayloadReader) U24() uint32 {
	if !r.take(3) {
		return 0
	}
	v, _ := ReadU24(r.data, r.off-3)
	return v
}

// U32 reads the next little-endian uint32
func (r *PayloadReader) U32() uint32 {
	if !r.take(4) {
		return 0
	}
	v, _ := ReadU32(r.data, r.off-4)
	return v
}

// I16 reads the next little-endian int16
func (r *PayloadReader) I16() int16 {
	return int16(r.U16())
}

// I32 reads the next little-endian int32
func (r *PayloadReader) I32() int32 {
	return int32(r.U32())
}

// Float32 reads the next little-endian float32
func (r *PayloadReader) Float32() float32 {
	return math.Float32frombits(r.U32())
}
