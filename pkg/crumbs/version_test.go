// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crumbs

import (
	"errors"
	"strings"
	"testing"
)

func TestVersionNumber(t *testing.T) {
	if Version != 1003 {
		t.Errorf("Version = %d, want 1003", Version)
	}
	if FormatVersion(Version) != "0.10.3" {
		t.Errorf("FormatVersion = %q", FormatVersion(Version))
	}
	if FormatVersion(10203) != "1.2.3" {
		t.Errorf("FormatVersion(10203) = %q", FormatVersion(10203))
	}
}

func TestAddVersionReply(t *testing.T) {
	m := NewMessage(0x01, OpcodeVersion)
	if err := AddVersionReply(&m, 1, 4, 2); err != nil {
		t.Fatal(err)
	}
	expected := []byte{0xEB, 0x03, 0x01, 0x04, 0x02}
	if string(m.Payload()) != string(expected) {
		t.Errorf("payload % X, want % X", m.Payload(), expected)
	}

	full := NewMessage(0x01, OpcodeVersion)
	full.AddBytes(make([]byte, MaxPayload-4))
	if err := AddVersionReply(&full, 1, 0, 0); !errors.Is(err, ErrPayloadFull) {
		t.Errorf("expected ErrPayloadFull, got %v", err)
	}
	if full.DataLen != MaxPayload-4 {
		t.Errorf("partial version reply written: DataLen=%d", full.DataLen)
	}
}

func TestParseVersionReply(t *testing.T) {
	info, err := ParseVersionReply([]byte{0xEB, 0x03, 0x01, 0x04, 0x02})
	if err != nil {
		t.Fatal(err)
	}
	if info != (VersionInfo{Library: 1003, Major: 1, Minor: 4, Patch: 2}) {
		t.Errorf("info = %+v", info)
	}
	if !strings.Contains(info.String(), "0.10.3") || !strings.Contains(info.String(), "1.4.2") {
		t.Errorf("String() = %q", info.String())
	}

	if _, err := ParseVersionReply([]byte{0xEB, 0x03, 0x01}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("short reply: expected ErrOutOfRange, got %v", err)
	}
}

func TestCheckLibraryCompat(t *testing.T) {
	if err := CheckLibraryCompat(1000); err != nil {
		t.Errorf("1000 should be compatible: %v", err)
	}
	if err := CheckLibraryCompat(Version); err != nil {
		t.Errorf("own version should be compatible: %v", err)
	}
	if err := CheckLibraryCompat(999); !errors.Is(err, ErrLibraryTooOld) {
		t.Errorf("expected ErrLibraryTooOld, got %v", err)
	}
}

func TestCheckModuleCompat(t *testing.T) {
	tests := []struct {
		name               string
		major, minor       uint8
		expMajor, expMinor uint8
		expected           error
	}{
		{"exact", 1, 2, 1, 2, nil},
		{"newer minor", 1, 5, 1, 2, nil},
		{"older minor", 1, 1, 1, 2, ErrMinorTooOld},
		{"major mismatch", 2, 0, 1, 0, ErrMajorMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckModuleCompat(tt.major, tt.minor, tt.expMajor, tt.expMinor)
			if !errors.Is(err, tt.expected) {
				t.Errorf("got %v, want %v", err, tt.expected)
			}
		})
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatOpcode(t *testing.T) {
	tests := map[uint8]string{
		0x00: "VERSION",
		0x01: "COMMAND",
		0x7F: "COMMAND",
		0x80: "QUERY",
		0xFE: "SET_REPLY",
		0xFF: "RESERVED",
	}
	for op, want := range tests {
		if got := FormatOpcode(op); got != want {
			t.Errorf("FormatOpcode(0x%02X) = %q, want %q", op, got, want)
		}
	}
}

func TestFormatMessage(t *testing.T) {
	m := NewMessage(0x01, 0x01)
	m.AddBytes([]byte{0xAA, 0xBB})
	EncodeFrame(&m)

	got := FormatMessage(&m)
	for _, part := range []string{"type=0x01", "COMMAND", "len=2", "crc=0x10", "data=AA BB"} {
		if !strings.Contains(got, part) {
			t.Errorf("%q missing %q", got, part)
		}
	}

	sr := NewMessage(0, OpcodeSetReply)
	sr.AddU8(0x80)
	if got := FormatMessage(&sr); !strings.Contains(got, "stage=0x80") {
		t.Errorf("SET_REPLY format %q", got)
	}
}

func TestFormatFrame(t *testing.T) {
	if got := FormatFrame([]byte{0x01, 0xAB, 0x00}); got != "01 AB 00" {
		t.Errorf("FormatFrame = %q", got)
	}
	if got := FormatFrame(nil); got != "" {
		t.Errorf("FormatFrame(nil) = %q", got)
	}
}
