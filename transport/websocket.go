// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/josephlim94/janus-client-go/protocol"
)

// WebSocket sub-protocols offered by a Janus gateway.
const (
	SubprotocolJanus = "janus-protocol"
	SubprotocolAdmin = "janus-admin-protocol"
)

// webSocketBinding is a single duplex connection. One reader goroutine feeds every frame into the Transport; writes are
// serialized, as gorilla's Conn supports only one concurrent writer.
type webSocketBinding struct {
	url         string
	subprotocol string
	dialer      *websocket.Dialer
	receive     func(protocol.Message)

	// mutex guards conn and serializes writes.
	mutex sync.Mutex
	conn  *websocket.Conn

	receiving  atomic.Bool
	readerDone chan struct{}
}

func newWebSocketBinding(url string, opts Options, receive func(protocol.Message)) *webSocketBinding {
	ws := &webSocketBinding{
		url:         url,
		subprotocol: opts.Subprotocol,
		dialer:      opts.Dialer,
		receive:     receive,
	}

	if ws.subprotocol == "" {
		ws.subprotocol = SubprotocolJanus
	}
	if ws.dialer == nil {
		ws.dialer = websocket.DefaultDialer
	}

	return ws
}

func (ws *webSocketBinding) log() *log.Entry {
	return log.WithFields(log.Fields{
		"websocket":   ws.url,
		"subprotocol": ws.subprotocol,
	})
}

func (ws *webSocketBinding) connect(ctx context.Context) error {
	dialer := *ws.dialer
	dialer.Subprotocols = []string{ws.subprotocol}

	conn, _, err := dialer.DialContext(ctx, ws.url, nil)
	if err != nil {
		return fmt.Errorf("%w: dialing %s: %w", protocol.ErrTransport, ws.url, err)
	}

	if negotiated := conn.Subprotocol(); negotiated != ws.subprotocol {
		ws.log().WithField("negotiated", negotiated).Warn("Gateway did not negotiate the requested sub-protocol")
	}

	started := make(chan struct{})
	done := make(chan struct{})

	ws.mutex.Lock()
	ws.conn = conn
	ws.readerDone = done
	ws.mutex.Unlock()

	go ws.readLoop(conn, started, done)

	select {
	case <-started:
		return nil

	case <-ctx.Done():
		ws.mutex.Lock()
		ws.conn, ws.readerDone = nil, nil
		ws.mutex.Unlock()

		_ = conn.Close()
		<-done
		return fmt.Errorf("%w: waiting for the reader: %w", protocol.ErrTimeout, ctx.Err())
	}
}

// readLoop reads frames until the connection fails or is closed.
func (ws *webSocketBinding) readLoop(conn *websocket.Conn, started, done chan struct{}) {
	defer close(done)
	defer ws.receiving.Store(false)
	defer func() {
		if r := recover(); r != nil {
			ws.log().WithField("panic", r).Error("WebSocket reader panicked")
		}
	}()

	ws.receiving.Store(true)
	close(started)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, net.ErrClosed) {
				ws.log().WithError(err).Info("WebSocket reader stopped")
			} else {
				ws.log().WithError(err).Error("Reading from WebSocket errored")
			}
			return
		}

		if msgType != websocket.TextMessage {
			ws.log().WithField("type", msgType).Debug("Skipping non-text WebSocket frame")
			continue
		}

		msgs, err := protocol.DecodeFrames(data)
		if err != nil {
			ws.log().WithError(err).Error("Received an undecodable WebSocket frame")
			return
		}

		for _, msg := range msgs {
			ws.receive(msg)
		}
	}
}

func (ws *webSocketBinding) disconnect() error {
	ws.mutex.Lock()
	conn, done := ws.conn, ws.readerDone
	ws.conn, ws.readerDone = nil, nil

	if conn == nil {
		ws.mutex.Unlock()
		return nil
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second)); err != nil {
		ws.log().WithError(err).Debug("Sending close frame errored")
	}
	ws.mutex.Unlock()

	err := conn.Close()
	<-done

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: closing websocket: %w", protocol.ErrTransport, err)
	}
	return nil
}

func (ws *webSocketBinding) send(ctx context.Context, msg protocol.Message) error {
	if !ws.receiving.Load() {
		return ErrNotReceiving
	}

	data, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", msg.Janus(), err)
	}

	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	if ws.conn == nil {
		return ErrNotReceiving
	}

	deadline, _ := ctx.Deadline()
	if err := ws.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrTransport, err)
	}

	if err := ws.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: writing %s request: %w", protocol.ErrTransport, msg.Janus(), err)
	}
	return nil
}

func (ws *webSocketBinding) sessionCreated(uint64) {}

func (ws *webSocketBinding) sessionDestroyed(uint64) error {
	return nil
}

func (ws *webSocketBinding) alive() bool {
	return ws.receiving.Load()
}
