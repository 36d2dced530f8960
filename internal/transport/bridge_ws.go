// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
)

// wsReplyMargin covers network and bridge turnaround on top of the bus timeout
const wsReplyMargin = 2 * time.Second

// WSBridge carries CBOR-encoded bridge requests over a WebSocket. A failed
// read or write closes the connection; later round trips return ErrClosed.
type WSBridge struct {
	conn        *websocket.Conn
	replyMargin time.Duration
	closed      bool
}

// NewWSBridge wraps an established connection
func NewWSBridge(conn *websocket.Conn) *WSBridge {
	return &WSBridge{conn: conn, replyMargin: wsReplyMargin}
}

// DialWSBridge connects to a bridge with optional HTTP Basic auth and
// returns a bus on top of it
func DialWSBridge(wsURL, username, password string, skipSSLVerify bool) (*BridgeBus, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return NewBridgeBus(NewWSBridge(conn), "WebSocket: "+wsURL), nil
}

// RoundTrip sends one request message and waits for its reply
func (w *WSBridge) RoundTrip(req Request) (Response, error) {
	if w.closed {
		return Response{}, ErrClosed
	}

	data, err := cbor.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	if err := w.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		w.fail()
		return Response{}, fmt.Errorf("websocket write: %w", err)
	}

	if err := w.conn.SetReadDeadline(time.Now().Add(req.Timeout() + w.replyMargin)); err != nil {
		w.fail()
		return Response{}, err
	}

	for {
		messageType, payload, err := w.conn.ReadMessage()
		if err != nil {
			// gorilla connections are unusable after a read error
			w.fail()
			return Response{}, fmt.Errorf("websocket read: %w", err)
		}
		// Only binary messages carry bridge replies
		if messageType != websocket.BinaryMessage {
			continue
		}

		var resp Response
		if err := cbor.Unmarshal(payload, &resp); err != nil {
			return Response{}, fmt.Errorf("%w: decode response: %v", ErrBridge, err)
		}
		return resp, nil
	}
}

func (w *WSBridge) fail() {
	w.closed = true
	_ = w.conn.Close()
}

// Close sends a close frame and closes the connection
func (w *WSBridge) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return w.conn.Close()
}
