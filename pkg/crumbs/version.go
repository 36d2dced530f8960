// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crumbs

import (
	"errors"
	"strconv"
)

// Library version
const (
	VersionMajor = 0
	VersionMinor = 10
	VersionPatch = 3

	// Version is major*10000 + minor*100 + patch
	Version = VersionMajor*10000 + VersionMinor*100 + VersionPatch

	// MinCompatibleVersion is the oldest peripheral library a controller
	// accepts (0.10.0)
	MinCompatibleVersion = 1000
)

// VersionReplySize is the payload size of an opcode 0x00 reply:
// [library version:u16][module major][module minor][module patch]
const VersionReplySize = 5

// Version compatibility errors
var (
	ErrLibraryTooOld = errors.New("crumbs: peripheral library version too old")
	ErrMajorMismatch = errors.New("crumbs: module major version mismatch")
	ErrMinorTooOld   = errors.New("crumbs: module minor version too old")
)

// VersionInfo is the decoded reply to a version query
type VersionInfo struct {
	Library uint16
	Major   uint8
	Minor   uint8
	Patch   uint8
}

// AddVersionReply appends the version reply payload for a module
func AddVersionReply(m *Message, major, minor, patch uint8) error {
	if m.Remaining() < VersionReplySize {
		return ErrPayloadFull
	}
	m.AddU16(Version)
	m.AddU8(major)
	m.AddU8(minor)
	m.AddU8(patch)
	return nil
}

// ParseVersionReply decodes an opcode 0x00 reply payload
func ParseVersionReply(data []byte) (VersionInfo, error) {
	r := PayloadReader{data: data}
	info := VersionInfo{
		Library: r.U16(),
		Major:   r.U8(),
		Minor:   r.U8(),
		Patch:   r.U8(),
	}
	if err := r.Err(); err != nil {
		return VersionInfo{}, err
	}
	return info, nil
}

// CheckLibraryCompat verifies a peripheral's library version is supported
func CheckLibraryCompat(peripheral uint16) error {
	if peripheral < MinCompatibleVersion {
		return ErrLibraryTooOld
	}
	return nil
}

// CheckModuleCompat verifies a peripheral's module protocol version against
// the version the controller was built for. Majors must match and the
// peripheral minor must be at least the expected minor.
func CheckModuleCompat(major, minor, expectMajor, expectMinor uint8) error {
	if major != expectMajor {
		return ErrMajorMismatch
	}
	if minor < expectMinor {
		return ErrMinorTooOld
	}
	return nil
}

// FormatVersion renders a numeric library version as "major.minor.patch"
func FormatVersion(v uint16) string {
	return strconv.Itoa(int(v/10000)) + "." +
		strconv.Itoa(int(v/100%100)) + "." +
		strconv.Itoa(int(v%100))
}

// String returns "lib X.Y.Z module A.B.C"
func (v VersionInfo) String() string {
	return "lib " + FormatVersion(v.Library) + " module " +
		strconv.Itoa(int(v.Major)) + "." + strconv.Itoa(int(v.Minor)) + "." + strconv.Itoa(int(v.Patch))
}
