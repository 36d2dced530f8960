// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crumbs

// Encode serializes m into out and returns the number of bytes written.
//
// Frame layout: type_id | opcode | data_len | data[data_len] | crc8, where
// the CRC covers every byte before it. On success m.CRC holds the computed
// CRC. On failure nothing is written.
func Encode(m *Message, out []byte) (int, error) {
	if int(m.DataLen) > MaxPayload {
		return 0, ErrPayloadTooLarge
	}

	size := FrameOverhead + int(m.DataLen)
	if len(out) < size {
		return 0, ErrBufferTooSmall
	}

	out[offsetTypeID] = m.TypeID
	out[offsetOpcode] = m.Opcode
	out[offsetDataLen] = m.DataLen
	copy(out[offsetData:], m.Data[:m.DataLen])

	crc := CalculateCRCFast(out[:size-TrailerSize])
	out[size-TrailerSize] = crc
	m.CRC = crc

	return size, nil
}

// EncodeFrame is Encode into a fresh MessageMaxSize buffer, returning the
// frame slice. Host-side convenience; allocates.
func EncodeFrame(m *Message) ([]byte, error) {
	buf := make([]byte, MessageMaxSize)
	n, err := Encode(m, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Decode parses one frame from the start of in. Bytes after the frame are
// ignored since bus reads are fixed-length.
//
// When ctx is non-nil its CRC statistics are updated: any failure increments
// the error count and clears LastCRCOK, success sets LastCRCOK.
func Decode(in []byte, ctx *Context) (Message, error) {
	m, err := decodeFrame(in)
	if ctx != nil {
		ctx.recordDecode(err)
	}
	return m, err
}

// decodeFrame validates and parses in without touching any statistics
func decodeFrame(in []byte) (Message, error) {
	var m Message

	if len(in) < FrameOverhead {
		return m, ErrShortFrame
	}

	dataLen := int(in[offsetDataLen])
	if dataLen > MaxPayload {
		return m, ErrLengthOverflow
	}

	size := FrameOverhead + dataLen
	if len(in) < size {
		return m, ErrTruncated
	}

	crc := CalculateCRCFast(in[:size-TrailerSize])
	if crc != in[size-TrailerSize] {
		return m, ErrCRCMismatch
	}

	m.TypeID = in[offsetTypeID]
	m.Opcode = in[offsetOpcode]
	m.DataLen = uint8(dataLen)
	copy(m.Data[:], in[offsetData:offsetData+dataLen])
	m.CRC = crc

	return m, nil
}
