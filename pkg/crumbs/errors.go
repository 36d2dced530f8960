// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crumbs

import "errors"

// Errors returned by the core are package-level sentinels so that the decode
// and dispatch paths never allocate.

// ErrIntegrity matches every frame integrity failure via errors.Is.
var ErrIntegrity = errors.New("crumbs: frame integrity error")

// integrityError is a sentinel that also matches ErrIntegrity
type integrityError struct {
	msg string
}

func (e *integrityError) Error() string {
	return e.msg
}

func (e *integrityError) Is(target error) bool {
	return target == ErrIntegrity
}

// Integrity errors (recoverable, counted in Context statistics)
var (
	ErrShortFrame     error = &integrityError{"crumbs: frame shorter than minimum size"}
	ErrLengthOverflow error = &integrityError{"crumbs: declared data length exceeds payload capacity"}
	ErrTruncated      error = &integrityError{"crumbs: frame truncated before declared length"}
	ErrCRCMismatch    error = &integrityError{"crumbs: CRC mismatch"}
)

// Capacity errors (configuration or programming mistakes)
var (
	ErrPayloadFull      = errors.New("crumbs: payload capacity exceeded")
	ErrPayloadTooLarge  = errors.New("crumbs: message data length exceeds payload capacity")
	ErrBufferTooSmall   = errors.New("crumbs: output buffer too small for frame")
	ErrHandlerTableFull = errors.New("crumbs: handler table full")
)

// Usage errors
var (
	ErrOutOfRange   = errors.New("crumbs: read past end of payload")
	ErrWrongRole    = errors.New("crumbs: operation not valid for context role")
	ErrNilHandler   = errors.New("crumbs: nil handler")
	ErrInvalidRange = errors.New("crumbs: invalid scan address range")
	ErrNoResponse   = errors.New("crumbs: no response from peripheral")
)
