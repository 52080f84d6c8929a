// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package janustest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/josephlim94/janus-client-go/protocol"
)

// peer is one client's WebSocket connection.
type peer struct {
	conn  *websocket.Conn
	mutex sync.Mutex
}

func (p *peer) write(msg protocol.Message) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.conn.WriteJSON(msg)
}

// WebSocketServer serves a Gateway over WebSocket, negotiating "janus-protocol" or "janus-admin-protocol".
type WebSocketServer struct {
	*httptest.Server

	gateway  *Gateway
	upgrader websocket.Upgrader

	mutex        sync.Mutex
	subprotocols []string
	conns        []*websocket.Conn
}

// NewWebSocketServer starts serving a Gateway on a random local port.
func NewWebSocketServer(g *Gateway) *WebSocketServer {
	ws := &WebSocketServer{
		gateway: g,
		upgrader: websocket.Upgrader{
			Subprotocols: []string{"janus-protocol", "janus-admin-protocol"},
		},
	}
	ws.Server = httptest.NewServer(http.HandlerFunc(ws.serve))
	return ws
}

// URL of this server with a ws:// scheme.
func (ws *WebSocketServer) URL() string {
	return "ws" + strings.TrimPrefix(ws.Server.URL, "http")
}

// Subprotocols returns the negotiated sub-protocol of every accepted connection.
func (ws *WebSocketServer) Subprotocols() []string {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	return append([]string(nil), ws.subprotocols...)
}

// DropConnections closes every accepted connection without a close frame, like a crashing gateway.
func (ws *WebSocketServer) DropConnections() {
	ws.mutex.Lock()
	conns := ws.conns
	ws.conns = nil
	ws.mutex.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

// Close drops all connections and shuts the server down.
func (ws *WebSocketServer) Close() {
	ws.DropConnections()
	ws.Server.Close()
}

func (ws *WebSocketServer) serve(rw http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		ws.gateway.log().WithError(err).Warn("Upgrading HTTP request to WebSocket errored")
		return
	}
	defer conn.Close()

	ws.mutex.Lock()
	ws.subprotocols = append(ws.subprotocols, conn.Subprotocol())
	ws.conns = append(ws.conns, conn)
	ws.mutex.Unlock()

	p := &peer{conn: conn}
	sink := func(msg protocol.Message) {
		if err := p.write(msg); err != nil {
			ws.gateway.log().WithError(err).Debug("Pushing event errored")
		}
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		} else if msgType != websocket.TextMessage {
			continue
		}

		req, err := protocol.Decode(data)
		if err != nil {
			sink(errorReply(protocol.Message{}, ErrorInvalidJSON, "JSON error: "+err.Error()))
			continue
		}

		ex := ws.gateway.handle(req, sink)
		for _, msg := range ex.replies {
			sink(msg)
		}
		ws.gateway.deliver(ex)
	}
}
