// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package transport owns the connection to a Janus gateway, stamps outgoing requests and dispatches incoming messages
// either to a waiting transaction or down to a session.
//
// Two bindings exist, selected by the base URL's scheme: a WebSocket binding for ws:// and wss:// and an HTTP
// long-poll binding for http:// and https://.
package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/imroc/req/v3"
	log "github.com/sirupsen/logrus"

	"github.com/josephlim94/janus-client-go/protocol"
	"github.com/josephlim94/janus-client-go/transaction"
)

// Receiver is the dispatch target for messages addressed to a session, usually a *session.Session.
type Receiver interface {
	OnReceive(msg protocol.Message)
}

// binding is the concrete wire below a Transport.
type binding interface {
	// connect establishes the network resource and starts background receiving, if any.
	connect(ctx context.Context) error

	// disconnect stops every background loop, waits for their termination and releases the network resource.
	disconnect() error

	// send transmits one already stamped message.
	send(ctx context.Context, msg protocol.Message) error

	// sessionCreated and sessionDestroyed are hooks for per-session resources.
	sessionCreated(sessionID uint64)
	sessionDestroyed(sessionID uint64) error

	// alive reports if the binding is still able to receive.
	alive() bool
}

// Options configure a Transport.
type Options struct {
	// APISecret is stamped as "apisecret" on every request, if set.
	APISecret string

	// Token is stamped as "token" on every request, if set.
	Token string

	// Subprotocol is negotiated by the WebSocket binding. Defaults to SubprotocolJanus.
	Subprotocol string

	// Dialer is used by the WebSocket binding. Defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// HTTPClient is used by the HTTP binding. A new client is created if nil.
	HTTPClient *req.Client

	// MaxEvents is the long poll's "maxev" parameter of the HTTP binding. Values below two request single events.
	MaxEvents int
}

// Kind of a Transport's binding.
type Kind int

const (
	// WebSocket is a single duplex connection with one reader goroutine.
	WebSocket Kind = iota

	// HTTP sends requests as POSTs and receives events through one long poll per session.
	HTTP
)

func (k Kind) String() string {
	switch k {
	case WebSocket:
		return "websocket"
	case HTTP:
		return "http"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// KindOf resolves the binding for a base URL by its scheme.
func KindOf(baseURL string) (Kind, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedScheme, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
		return WebSocket, nil
	case "http", "https":
		return HTTP, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

// Transport is one connection to a Janus gateway, shared by any number of sessions.
type Transport struct {
	baseURL string
	kind    Kind
	opts    Options
	binding binding

	transactions *transaction.Registry

	connMutex sync.Mutex
	connected atomic.Bool

	// sessionsMutex guards sessions and creating. Sessions awaiting their create reply count towards the refcount.
	sessionsMutex sync.RWMutex
	sessions      map[uint64]Receiver
	creating      int
}

// New creates a disconnected Transport for a base URL, e.g., "ws://localhost:8188/" or "http://localhost:8088/janus".
func New(baseURL string, opts Options) (*Transport, error) {
	kind, err := KindOf(baseURL)
	if err != nil {
		return nil, err
	}

	t := &Transport{
		baseURL:      strings.TrimRight(baseURL, "/"),
		kind:         kind,
		opts:         opts,
		transactions: transaction.NewRegistry(),
		sessions:     make(map[uint64]Receiver),
	}

	switch kind {
	case WebSocket:
		t.binding = newWebSocketBinding(t.baseURL, opts, t.Receive)
	case HTTP:
		t.binding = newHTTPBinding(t.baseURL, opts, t.Receive)
	}

	return t, nil
}

func (t *Transport) log() *log.Entry {
	return log.WithFields(log.Fields{
		"transport": t.baseURL,
		"kind":      t.kind,
	})
}

// BaseURL of the gateway, without a trailing slash.
func (t *Transport) BaseURL() string {
	return t.baseURL
}

// Kind of this Transport's binding.
func (t *Transport) Kind() Kind {
	return t.kind
}

// Connected reports if Connect succeeded and no Disconnect happened since.
func (t *Transport) Connected() bool {
	return t.connected.Load()
}

// Connect establishes the connection. Calling Connect on a connected Transport is a no-op, unless the binding died in
// the meantime; then, the connection is established again.
func (t *Transport) Connect(ctx context.Context) error {
	t.connMutex.Lock()
	defer t.connMutex.Unlock()

	if t.connected.Load() {
		if t.binding.alive() {
			return nil
		}

		t.log().Info("Binding is not alive anymore, reconnecting")
		if err := t.binding.disconnect(); err != nil {
			t.log().WithError(err).Debug("Cleaning up the dead binding errored")
		}
		t.connected.Store(false)
	}

	if err := t.binding.connect(ctx); err != nil {
		return err
	}

	t.connected.Store(true)
	t.log().Info("Connected")
	return nil
}

// Disconnect tears down the connection. Calling Disconnect on a disconnected Transport is a no-op.
func (t *Transport) Disconnect() error {
	t.connMutex.Lock()
	defer t.connMutex.Unlock()

	if !t.connected.Load() {
		return nil
	}

	t.connected.Store(false)
	err := t.binding.disconnect()

	t.log().WithError(err).Info("Disconnected")
	return err
}

// Send stamps a Request with a fresh correlation token, the credentials and the optional identifiers and transmits it.
//
// A zero sessionID or handleID is omitted. The returned Transaction is not waited for; the caller must Get its reply
// and finally Close it.
func (t *Transport) Send(ctx context.Context, request protocol.Request, sessionID, handleID uint64) (*transaction.Transaction, error) {
	msg, err := request.Message()
	if err != nil {
		return nil, err
	}

	if !t.connected.Load() {
		return nil, ErrNotConnected
	}

	tx := t.transactions.Create()
	msg[protocol.FieldTransaction] = tx.ID()

	if t.opts.APISecret != "" {
		msg[protocol.FieldAPISecret] = t.opts.APISecret
	}
	if t.opts.Token != "" {
		msg[protocol.FieldToken] = t.opts.Token
	}

	if sessionID != 0 {
		msg[protocol.FieldSessionID] = sessionID
	}
	if handleID != 0 {
		msg[protocol.FieldHandleID] = handleID
	}

	t.log().WithFields(log.Fields{
		"janus":       msg.Janus(),
		"transaction": tx.ID(),
		"session":     sessionID,
		"handle":      handleID,
	}).Debug("Sending request")

	if err := t.binding.send(ctx, msg); err != nil {
		_ = tx.Close()
		return nil, err
	}

	return tx, nil
}

// Receive dispatches one incoming message. Bindings call this from their background loops; it is safe for concurrent
// use.
//
// A live correlation token takes precedence. Otherwise, the message is handed to the session named by its
// "session_id". Everything else is dropped.
func (t *Transport) Receive(msg protocol.Message) {
	logger := t.log().WithField("janus", msg.Janus())

	if t.transactions.Deliver(msg) {
		logger.WithField("transaction", msg.Transaction()).Debug("Received message for a transaction")
		return
	}

	sessionID, ok := msg.SessionID()
	if !ok {
		logger.WithField("message", msg).Info("Dropping message without transaction and session")
		return
	}

	t.sessionsMutex.RLock()
	receiver, ok := t.sessions[sessionID]
	t.sessionsMutex.RUnlock()

	if !ok {
		logger.WithField("session", sessionID).Info("Dropping message for an unknown session")
		return
	}

	logger.WithField("session", sessionID).Debug("Forwarding message to session")
	receiver.OnReceive(msg)
}

// Transactions returns the number of live transactions.
func (t *Transport) Transactions() int {
	return t.transactions.Len()
}
