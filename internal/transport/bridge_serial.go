// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// serialReadSlice is the port read timeout used while waiting for a reply
const serialReadSlice = 5 * time.Millisecond

// serialReplyMargin covers bridge turnaround on top of the bus timeout
const serialReplyMargin = 100 * time.Millisecond

// SerialPort is the subset of serial.Port the bridge needs
type SerialPort interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// SerialBridge talks to a USB-serial I2C bridge using stuffed, CRC-16
// protected frames
type SerialBridge struct {
	port SerialPort
	dec  FrameDecoder
	buf  [64]byte
}

// NewSerialBridge wraps an open port
func NewSerialBridge(port SerialPort) *SerialBridge {
	return &SerialBridge{port: port}
}

// OpenSerialBridge opens a serial port and returns a bus on top of it
func OpenSerialBridge(portName string, baudRate int) (*BridgeBus, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	name := fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate)
	return NewBridgeBus(NewSerialBridge(port), name), nil
}

// RoundTrip sends one request frame and waits for the matching reply frame
func (s *SerialBridge) RoundTrip(req Request) (Response, error) {
	body, err := MarshalRequestBody(req)
	if err != nil {
		return Response{}, err
	}

	// Stale bytes from an abandoned exchange must not be read as our reply
	if err := s.port.ResetInputBuffer(); err != nil {
		return Response{}, fmt.Errorf("reset input: %w", err)
	}
	s.dec.Reset()

	if _, err := s.port.Write(EncodeSerialFrame(body)); err != nil {
		return Response{}, fmt.Errorf("serial write: %w", err)
	}
	if err := s.port.SetReadTimeout(serialReadSlice); err != nil {
		return Response{}, fmt.Errorf("set read timeout: %w", err)
	}

	deadline := time.Now().Add(req.Timeout() + serialReplyMargin)
	for time.Now().Before(deadline) {
		n, err := s.port.Read(s.buf[:])
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Response{}, ErrClosed
			}
			return Response{}, fmt.Errorf("serial read: %w", err)
		}

		for _, b := range s.buf[:n] {
			body, err := s.dec.DecodeByte(b)
			if err != nil {
				return Response{}, err
			}
			if body != nil {
				return UnmarshalResponseBody(body)
			}
		}
	}

	return Response{}, ErrTimeout
}

// Close closes the port
func (s *SerialBridge) Close() error {
	return s.port.Close()
}
