// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"time"
)

// Serial bridge framing: START | stuffed(body, crc16_hi, crc16_lo) | END.
// START, END and ESC inside the frame are sent as ESC, byte^EscXor.
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// CRC-16-CCITT over the unstuffed body
const (
	crc16Polynomial = 0x1021
	crc16Initial    = 0xFFFF
)

// Body size limits
const (
	requestHeaderSize  = 5 // op, addr, len, timeout_ms (u16 LE)
	responseHeaderSize = 2 // status, len
	maxBodySize        = requestHeaderSize + MaxBridgeData
	maxFrameBuffer     = maxBodySize + 2
)

// CalculateCRC16 computes CRC-16-CCITT for the given data
func CalculateCRC16(data []byte) uint16 {
	crc := uint16(crc16Initial)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crc16Polynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// EncodeSerialFrame wraps body with CRC, stuffing and framing bytes
func EncodeSerialFrame(body []byte) []byte {
	crc := CalculateCRC16(body)

	frame := make([]byte, 0, 2*(len(body)+2)+2)
	frame = append(frame, StartByte)
	frame = stuffBytes(frame, body)
	frame = stuffBytes(frame, []byte{byte(crc >> 8), byte(crc)})
	return append(frame, EndByte)
}

// stuffBytes appends data to dst, escaping special bytes
func stuffBytes(dst, data []byte) []byte {
	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			dst = append(dst, EscByte, b^EscXor)
		} else {
			dst = append(dst, b)
		}
	}
	return dst
}

// FrameDecoder reassembles serial frames from a byte stream
type FrameDecoder struct {
	buf        [maxFrameBuffer]byte
	n          int
	inFrame    bool
	escapeNext bool
}

// Reset drops any partial frame
func (d *FrameDecoder) Reset() {
	d.n = 0
	d.inFrame = false
	d.escapeNext = false
}

// DecodeByte feeds one byte. It returns the frame body once a complete,
// CRC-valid frame has been received. The returned slice is valid until the
// next call.
func (d *FrameDecoder) DecodeByte(b byte) ([]byte, error) {
	switch {
	case b == StartByte:
		d.Reset()
		d.inFrame = true
		return nil, nil

	case !d.inFrame:
		return nil, nil

	case b == EndByte:
		defer d.Reset()
		if d.escapeNext {
			return nil, fmt.Errorf("%w: frame ends inside escape", ErrBridge)
		}
		if d.n < 2 {
			return nil, fmt.Errorf("%w: frame too short (%d bytes)", ErrBridge, d.n)
		}
		body := d.buf[:d.n-2]
		got := uint16(d.buf[d.n-2])<<8 | uint16(d.buf[d.n-1])
		if want := CalculateCRC16(body); got != want {
			return nil, fmt.Errorf("%w: CRC mismatch: expected 0x%04X, got 0x%04X", ErrBridge, want, got)
		}
		return body, nil

	case b == EscByte && !d.escapeNext:
		d.escapeNext = true
		return nil, nil
	}

	if d.escapeNext {
		b ^= EscXor
		d.escapeNext = false
	}

	// Check for buffer overflow before accepting byte
	if d.n >= len(d.buf) {
		d.Reset()
		return nil, fmt.Errorf("%w: frame buffer overflow", ErrBridge)
	}
	d.buf[d.n] = b
	d.n++
	return nil, nil
}

// MarshalRequestBody encodes a request for the serial bridge:
// op | addr | len | timeout_ms:u16 LE | data (writes only)
func MarshalRequestBody(req Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	length := req.MaxLen
	if req.Op == OpWrite {
		length = uint8(len(req.Data))
	}
	// Round up so a sub-millisecond timeout is not sent as 0
	ms := (req.Timeout() + time.Millisecond - 1) / time.Millisecond
	if ms > 0xFFFF {
		ms = 0xFFFF
	}

	body := make([]byte, 0, requestHeaderSize+len(req.Data))
	body = append(body, req.Op, req.Addr, length, byte(ms), byte(ms>>8))
	if req.Op == OpWrite {
		body = append(body, req.Data...)
	}
	return body, nil
}

// UnmarshalRequestBody decodes a serial bridge request body
func UnmarshalRequestBody(body []byte) (Request, error) {
	if len(body) < requestHeaderSize {
		return Request{}, fmt.Errorf("%w: request body too short", ErrBridge)
	}

	req := Request{
		Op:        body[0],
		Addr:      body[1],
		TimeoutUS: (uint32(body[3]) | uint32(body[4])<<8) * 1000,
	}
	length := int(body[2])
	data := body[requestHeaderSize:]

	switch req.Op {
	case OpWrite:
		if len(data) != length {
			return Request{}, fmt.Errorf("%w: write length %d, got %d bytes", ErrBridge, length, len(data))
		}
		req.Data = append([]byte(nil), data...)
	case OpRead:
		req.MaxLen = uint8(length)
	}
	return req, req.Validate()
}

// MarshalResponseBody encodes a response: status | len | data
func MarshalResponseBody(resp Response) []byte {
	body := make([]byte, 0, responseHeaderSize+len(resp.Data))
	body = append(body, resp.Status, uint8(len(resp.Data)))
	return append(body, resp.Data...)
}

// UnmarshalResponseBody decodes a serial bridge response body
func UnmarshalResponseBody(body []byte) (Response, error) {
	if len(body) < responseHeaderSize {
		return Response{}, fmt.Errorf("%w: response body too short", ErrBridge)
	}
	length := int(body[1])
	if length > MaxBridgeData || len(body) != responseHeaderSize+length {
		return Response{}, fmt.Errorf("%w: response length %d, got %d bytes", ErrBridge, length, len(body)-responseHeaderSize)
	}
	resp := Response{Status: body[0]}
	if length > 0 {
		resp.Data = append([]byte(nil), body[responseHeaderSize:]...)
	}
	return resp, nil
}
