// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crumbs

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC_Empty(t *testing.T) {
	if crc := CalculateCRC(nil); crc != crcInitial {
		t.Errorf("CRC of empty data should be initial value, got 0x%02X", crc)
	}
	if crc := CalculateCRCFast([]byte{}); crc != crcInitial {
		t.Errorf("fast CRC of empty data should be initial value, got 0x%02X", crc)
	}
}

func TestCalculateCRC_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint8
	}{
		{"ASCII '123456789'", []byte("123456789"), 0xF4}, // CRC-8/SMBUS check value
		{"zero header", []byte{0x00, 0x00, 0x00}, 0x00},
		{"example frame", []byte{0x01, 0x01, 0x02, 0xAA, 0xBB}, 0x10},
		{"set reply 0x80", []byte{0x00, 0xFE, 0x01, 0x80}, 0xDC},
		{"empty opcode 5", []byte{0x10, 0x05, 0x00}, 0xE3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if crc := CalculateCRC(tt.data); crc != tt.expected {
				t.Errorf("CRC mismatch: expected 0x%02X, got 0x%02X", tt.expected, crc)
			}
		})
	}
}

func TestCalculateCRC_TablesAgree(t *testing.T) {
	// Every single byte input exercises every byte table entry
	for b := 0; b < 256; b++ {
		data := []byte{byte(b)}
		if CalculateCRC(data) != CalculateCRCFast(data) {
			t.Fatalf("byte 0x%02X: nibble 0x%02X != table 0x%02X", b, CalculateCRC(data), CalculateCRCFast(data))
		}
	}

	data := make([]byte, 0, 64)
	for i := 0; i < 64; i++ {
		data = append(data, byte(i*37+11))
		if CalculateCRC(data) != CalculateCRCFast(data) {
			t.Fatalf("length %d: implementations disagree", len(data))
		}
	}
}

func TestCalculateCRC_BitFlipDetected(t *testing.T) {
	data := []byte{0x01, 0x01, 0x02, 0xAA, 0xBB}
	orig := CalculateCRC(data)
	for i := range data {
		for bit := 0; bit < 8; bit++ {
			data[i] ^= 1 << bit
			if CalculateCRC(data) == orig {
				t.Errorf("flip byte %d bit %d not detected", i, bit)
			}
			data[i] ^= 1 << bit
		}
	}
}

// ============================================================
// Payload Writer Tests
// ============================================================

func TestMessageInit(t *testing.T) {
	var m Message
	m.AddU8(0x55)
	m.Init(0x03, 0x42)

	if m.TypeID != 0x03 || m.Opcode != 0x42 {
		t.Errorf("header not set: type=0x%02X opcode=0x%02X", m.TypeID, m.Opcode)
	}
	if m.DataLen != 0 {
		t.Errorf("Init should clear payload, DataLen=%d", m.DataLen)
	}
}

func TestAddValues_LittleEndian(t *testing.T) {
	m := NewMessage(1, 1)
	if err := m.AddU8(0x11); err != nil {
		t.Fatal(err)
	}
	if err := m.AddU16(0x2233); err != nil {
		t.Fatal(err)
	}
	if err := m.AddU24(0x445566); err != nil {
		t.Fatal(err)
	}
	if err := m.AddU32(0x778899AA); err != nil {
		t.Fatal(err)
	}
	if err := m.AddI16(-2); err != nil {
		t.Fatal(err)
	}

	expected := []byte{0x11, 0x33, 0x22, 0x66, 0x55, 0x44, 0xAA, 0x99, 0x88, 0x77, 0xFE, 0xFF}
	if !bytes.Equal(m.Payload(), expected) {
		t.Errorf("payload mismatch:\n  got  % X\n  want % X", m.Payload(), expected)
	}
}

func TestAddFloat32_Encoding(t *testing.T) {
	m := NewMessage(1, 1)
	if err := m.AddFloat32(1.0); err != nil {
		t.Fatal(err)
	}
	// 1.0f is 0x3F800000
	expected := []byte{0x00, 0x00, 0x80, 0x3F}
	if !bytes.Equal(m.Payload(), expected) {
		t.Errorf("float32 bytes: got % X, want % X", m.Payload(), expected)
	}
}

func TestAdd_CapacityBoundary(t *testing.T) {
	m := NewMessage(1, 1)
	for i := 0; i < MaxPayload; i++ {
		if err := m.AddU8(byte(i)); err != nil {
			t.Fatalf("AddU8 %d failed: %v", i, err)
		}
	}

	if err := m.AddU8(0xFF); !errors.Is(err, ErrPayloadFull) {
		t.Errorf("expected ErrPayloadFull, got %v", err)
	}
	if m.DataLen != MaxPayload {
		t.Errorf("DataLen changed on failed add: %d", m.DataLen)
	}
}

func TestAdd_NoPartialWrite(t *testing.T) {
	m := NewMessage(1, 1)
	for i := 0; i < MaxPayload-2; i++ {
		m.AddU8(0)
	}

	tests := []struct {
		name string
		add  func() error
	}{
		{"u24", func() error { return m.AddU24(0xFFFFFF) }},
		{"u32", func() error { return m.AddU32(0xFFFFFFFF) }},
		{"float32", func() error { return m.AddFloat32(1.5) }},
		{"bytes", func() error { return m.AddBytes([]byte{1, 2, 3}) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.add(); !errors.Is(err, ErrPayloadFull) {
				t.Errorf("expected ErrPayloadFull, got %v", err)
			}
			if m.DataLen != MaxPayload-2 {
				t.Errorf("DataLen changed: %d", m.DataLen)
			}
			if m.Data[MaxPayload-2] != 0 || m.Data[MaxPayload-1] != 0 {
				t.Error("bytes written past DataLen on failed add")
			}
		})
	}

	// u16 still fits exactly
	if err := m.AddU16(0xBEEF); err != nil {
		t.Errorf("AddU16 into last two bytes failed: %v", err)
	}
}

func TestSetPayload_TooLarge(t *testing.T) {
	m := NewMessage(1, 1)
	m.AddU8(7)
	if err := m.SetPayload(make([]byte, MaxPayload+1)); !errors.Is(err, ErrPayloadFull) {
		t.Errorf("expected ErrPayloadFull, got %v", err)
	}
	if m.DataLen != 1 {
		t.Errorf("message modified on failure: DataLen=%d", m.DataLen)
	}
}

// ============================================================
// Payload Reader Tests
// ============================================================

func TestReadValues(t *testing.T) {
	data := []byte{0x11, 0x33, 0x22, 0x66, 0x55, 0x44, 0xAA, 0x99, 0x88, 0x77}

	u8, err := ReadU8(data, 0)
	if err != nil || u8 != 0x11 {
		t.Errorf("ReadU8 = 0x%02X, %v", u8, err)
	}
	u16, err := ReadU16(data, 1)
	if err != nil || u16 != 0x2233 {
		t.Errorf("ReadU16 = 0x%04X, %v", u16, err)
	}
	u24, err := ReadU24(data, 3)
	if err != nil || u24 != 0x445566 {
		t.Errorf("ReadU24 = 0x%06X, %v", u24, err)
	}
	u32, err := ReadU32(data, 6)
	if err != nil || u32 != 0x778899AA {
		t.Errorf("ReadU32 = 0x%08X, %v", u32, err)
	}
	i8, err := ReadI8([]byte{0xFF}, 0)
	if err != nil || i8 != -1 {
		t.Errorf("ReadI8 = %d, %v", i8, err)
	}
	i32, err := ReadI32([]byte{0xFE, 0xFF, 0xFF, 0xFF}, 0)
	if err != nil || i32 != -2 {
		t.Errorf("ReadI32 = %d, %v", i32, err)
	}
}

func TestReadFloat32_RoundTrip(t *testing.T) {
	values := []float32{0, 1, -1, 3.14159, math.MaxFloat32, math.SmallestNonzeroFloat32}
	for _, v := range values {
		m := NewMessage(1, 1)
		m.AddFloat32(v)
		got, err := ReadFloat32(m.Payload(), 0)
		if err != nil {
			t.Fatal(err)
		}
		if got != v {
			t.Errorf("float32 %v read back as %v", v, got)
		}
	}
}

func TestRead_OutOfRange(t *testing.T) {
	data := []byte{1, 2, 3}

	tests := []struct {
		name string
		read func() error
	}{
		{"u8 at len", func() error { _, err := ReadU8(data, 3); return err }},
		{"u16 straddling end", func() error { _, err := ReadU16(data, 2); return err }},
		{"u24 exact fit ok", nil},
		{"u32 too wide", func() error { _, err := ReadU32(data, 0); return err }},
		{"negative offset", func() error { _, err := ReadU8(data, -1); return err }},
		{"huge offset", func() error { _, err := ReadU16(data, math.MaxInt); return err }},
		{"bytes past end", func() error { return ReadBytes(data, 1, make([]byte, 3)) }},
	}

	for _, tt := range tests {
		if tt.read == nil {
			continue
		}
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.read(); !errors.Is(err, ErrOutOfRange) {
				t.Errorf("expected ErrOutOfRange, got %v", err)
			}
		})
	}

	if v, err := ReadU24(data, 0); err != nil || v != 0x030201 {
		t.Errorf("exact-fit ReadU24 = 0x%06X, %v", v, err)
	}
}

func TestPayloadReader_StickyError(t *testing.T) {
	r := NewPayloadReader([]byte{0x01, 0x02, 0x03})

	if v := r.U16(); v != 0x0201 {
		t.Errorf("U16 = 0x%04X", v)
	}
	if v := r.U16(); v != 0 {
		t.Errorf("overrun read should return 0, got 0x%04X", v)
	}
	if v := r.U8(); v != 0 {
		t.Errorf("read after error should return 0, got 0x%02X", v)
	}
	if !errors.Is(r.Err(), ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", r.Err())
	}
	if r.Offset() != 2 {
		t.Errorf("offset advanced on failed read: %d", r.Offset())
	}

	r.Reset([]byte{0x7F})
	if r.Err() != nil || r.U8() != 0x7F {
		t.Error("Reset should clear error and rewind")
	}
}

// ============================================================
// Codec Tests
// ============================================================

func TestEncode_ExampleFrame(t *testing.T) {
	m := NewMessage(0x01, 0x01)
	m.AddBytes([]byte{0xAA, 0xBB})

	buf := make([]byte, MessageMaxSize)
	n, err := Encode(&m, buf)
	if err != nil {
		t.Fatal(err)
	}

	expected := []byte{0x01, 0x01, 0x02, 0xAA, 0xBB, 0x10}
	if !bytes.Equal(buf[:n], expected) {
		t.Errorf("frame mismatch:\n  got  % X\n  want % X", buf[:n], expected)
	}
	if m.CRC != 0x10 {
		t.Errorf("Encode should set CRC, got 0x%02X", m.CRC)
	}

	ctx := NewContext(RoleController, 0)
	got, err := Decode(expected, ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != m {
		t.Errorf("decoded message differs:\n  got  %s\n  want %s", FormatMessage(&got), FormatMessage(&m))
	}
	if !ctx.LastCRCOK() {
		t.Error("LastCRCOK should be true after a good decode")
	}
}

func TestEncode_EmptyMessage(t *testing.T) {
	var m Message
	buf := make([]byte, FrameOverhead)
	n, err := Encode(&m, buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("empty frame should be 4 bytes, got %d", n)
	}

	got, err := Decode(buf[:n], nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.DataLen != 0 {
		t.Errorf("DataLen = %d", got.DataLen)
	}
}

func TestEncode_BufferTooSmall(t *testing.T) {
	m := NewMessage(1, 1)
	m.AddU16(0xABCD)

	buf := []byte{0xEE, 0xEE, 0xEE, 0xEE, 0xEE}
	n, err := Encode(&m, buf)
	if !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("expected ErrBufferTooSmall, got %v", err)
	}
	if n != 0 {
		t.Errorf("n = %d, want 0", n)
	}
	for i, b := range buf {
		if b != 0xEE {
			t.Errorf("byte %d written on failure", i)
		}
	}
}

func TestEncode_PayloadTooLarge(t *testing.T) {
	m := Message{DataLen: MaxPayload + 1}
	if _, err := Encode(&m, make([]byte, 64)); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestDecode_RoundTripAllLengths(t *testing.T) {
	for n := 0; n <= MaxPayload; n++ {
		m := NewMessage(uint8(n), uint8(0x80+n))
		for i := 0; i < n; i++ {
			m.AddU8(uint8(i * 7))
		}

		frame, err := EncodeFrame(&m)
		if err != nil {
			t.Fatalf("len %d: %v", n, err)
		}
		if len(frame) != n+FrameOverhead {
			t.Fatalf("len %d: frame size %d", n, len(frame))
		}

		got, err := Decode(frame, nil)
		if err != nil {
			t.Fatalf("len %d: %v", n, err)
		}
		if got != m {
			t.Errorf("len %d: round trip mismatch", n)
		}
	}
}

func TestDecode_Errors(t *testing.T) {
	good := []byte{0x01, 0x01, 0x02, 0xAA, 0xBB, 0x10}

	tests := []struct {
		name     string
		frame    []byte
		expected error
	}{
		{"empty", nil, ErrShortFrame},
		{"three bytes", good[:3], ErrShortFrame},
		{"length overflow", []byte{0x01, 0x01, MaxPayload + 1, 0x00}, ErrLengthOverflow},
		{"length 0xFF", []byte{0x01, 0x01, 0xFF, 0x00, 0x00}, ErrLengthOverflow},
		{"truncated", good[:5], ErrTruncated},
		{"bad crc", []byte{0x01, 0x01, 0x02, 0xAA, 0xBB, 0x11}, ErrCRCMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := NewContext(RoleController, 0)
			_, err := Decode(tt.frame, ctx)
			if !errors.Is(err, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, err)
			}
			if !errors.Is(err, ErrIntegrity) {
				t.Errorf("%v should match ErrIntegrity", err)
			}
			if ctx.CRCErrorCount() != 1 {
				t.Errorf("CRCErrorCount = %d, want 1", ctx.CRCErrorCount())
			}
			if ctx.LastCRCOK() {
				t.Error("LastCRCOK should be false")
			}
		})
	}
}

func TestDecode_TrailingBytesIgnored(t *testing.T) {
	frame := []byte{0x01, 0x01, 0x02, 0xAA, 0xBB, 0x10, 0xFF, 0xFF, 0xFF}
	m, err := Decode(frame, nil)
	if err != nil {
		t.Fatal(err)
	}
	if m.DataLen != 2 || m.Data[1] != 0xBB {
		t.Errorf("unexpected message: %s", FormatMessage(&m))
	}
}

func TestDecode_EveryBitFlipCountedOnce(t *testing.T) {
	m := NewMessage(0x20, 0x05)
	m.AddBytes([]byte{0xEB, 0x03, 0x01, 0x02, 0x03})
	frame, _ := EncodeFrame(&m)

	ctx := NewContext(RolePeripheral, 0x20)
	attempts := uint32(0)
	for i := range frame {
		for bit := 0; bit < 8; bit++ {
			corrupt := append([]byte(nil), frame...)
			corrupt[i] ^= 1 << bit

			_, err := Decode(corrupt, ctx)
			if err == nil {
				t.Errorf("byte %d bit %d: corrupted frame decoded", i, bit)
				continue
			}
			attempts++
			if ctx.CRCErrorCount() != attempts {
				t.Fatalf("byte %d bit %d: count %d, want %d", i, bit, ctx.CRCErrorCount(), attempts)
			}
		}
	}

	if _, err := Decode(frame, ctx); err != nil {
		t.Fatal(err)
	}
	if !ctx.LastCRCOK() || ctx.CRCErrorCount() != attempts {
		t.Error("good decode should set LastCRCOK without changing the count")
	}

	ctx.ResetCRCStats()
	if ctx.CRCErrorCount() != 0 || !ctx.LastCRCOK() {
		t.Error("ResetCRCStats did not reset")
	}
}
