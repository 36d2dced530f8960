// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crumbs

// Message is one CRUMBS frame in decoded form.
//
// The payload is a fixed array so that a Message can live on the stack or in
// static storage; only Data[:DataLen] is meaningful.
type Message struct {
	TypeID  uint8
	Opcode  uint8
	Data    [MaxPayload]byte
	DataLen uint8
	CRC     uint8 // set by Encode and Decode
}

// NewMessage returns a message with the given header and an empty payload
func NewMessage(typeID, opcode uint8) Message {
	return Message{TypeID: typeID, Opcode: opcode}
}

// Init resets the message to an empty payload with the given header.
// Every reply and every outbound command starts here.
func (m *Message) Init(typeID, opcode uint8) {
	*m = Message{TypeID: typeID, Opcode: opcode}
}

// Payload returns the bytes in use. The slice aliases the message.
func (m *Message) Payload() []byte {
	n := int(m.DataLen)
	if n > MaxPayload {
		n = MaxPayload
	}
	return m.Data[:n]
}

// SetPayload replaces the payload. It fails without modifying the message if
// data does not fit.
func (m *Message) SetPayload(data []byte) error {
	if len(data) > MaxPayload {
		return ErrPayloadFull
	}
	m.DataLen = uint8(copy(m.Data[:], data))
	return nil
}

// Remaining returns how many payload bytes can still be appended
func (m *Message) Remaining() int {
	return MaxPayload - int(m.DataLen)
}

// FrameSize returns the encoded size of the message
func (m *Message) FrameSize() int {
	return FrameOverhead + int(m.DataLen)
}

// IsSetReply reports whether the message stages a reply opcode
func (m *Message) IsSetReply() bool {
	return m.Opcode == OpcodeSetReply
}
