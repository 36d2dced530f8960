// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"crypto/subtle"
	"net/http"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// BridgeServer exposes a bus to WebSocket bridge clients. Transactions from
// all clients are serialized onto the bus.
type BridgeServer struct {
	bus      Bus
	logger   *zap.Logger
	username string
	password string

	mu       sync.Mutex
	upgrader websocket.Upgrader
}

// NewBridgeServer serves bus. A nil logger disables logging.
func NewBridgeServer(bus Bus, logger *zap.Logger) *BridgeServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BridgeServer{
		bus:    bus,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  256,
			WriteBufferSize: 256,
		},
	}
}

// RequireBasicAuth rejects clients without matching credentials
func (s *BridgeServer) RequireBasicAuth(username, password string) {
	s.username = username
	s.password = password
}

func (s *BridgeServer) authorized(r *http.Request) bool {
	if s.username == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	return ok &&
		subtle.ConstantTimeCompare([]byte(user), []byte(s.username)) == 1 &&
		subtle.ConstantTimeCompare([]byte(pass), []byte(s.password)) == 1
}

// ServeHTTP upgrades the connection and answers requests until it closes
func (s *BridgeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="crumbs"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := s.logger.With(zap.String("remote", r.RemoteAddr))
	log.Info("bridge client connected")

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("bridge client read failed", zap.Error(err))
			} else {
				log.Info("bridge client disconnected")
			}
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		resp := s.handle(payload, log)

		out, err := cbor.Marshal(resp)
		if err != nil {
			log.Error("encode response", zap.Error(err))
			return
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, out); err != nil {
			log.Warn("bridge client write failed", zap.Error(err))
			return
		}
	}
}

func (s *BridgeServer) handle(payload []byte, log *zap.Logger) Response {
	var req Request
	if err := cbor.Unmarshal(payload, &req); err != nil {
		log.Debug("malformed bridge request", zap.Error(err))
		return Response{Status: StatusError}
	}

	s.mu.Lock()
	resp := Execute(s.bus, req)
	s.mu.Unlock()

	log.Debug("bridge transaction",
		zap.Uint8("op", req.Op),
		zap.Uint8("addr", req.Addr),
		zap.Uint8("status", resp.Status),
		zap.Int("bytes", len(resp.Data)))
	return resp
}
