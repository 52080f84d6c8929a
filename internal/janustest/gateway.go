// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package janustest provides an in-process fake Janus gateway, reachable by WebSocket or HTTP long poll.
//
// The fake assigns session identifiers starting at 1 and handle identifiers starting at 10. It answers the core
// requests, simulates a few plugins and the admin API, and records every request it receives.
package janustest

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/josephlim94/janus-client-go/protocol"
)

// MissingPlugin is rejected on attach with error 460.
const MissingPlugin = "janus.plugin.missing"

// Janus error codes used by this fake.
const (
	ErrorUnauthorized  = 403
	ErrorInvalidJSON   = 454
	ErrorUnknownReq    = 453
	ErrorNoSuchSession = 458
	ErrorNoSuchHandle  = 459
	ErrorPluginMissing = 460
)

type fakeSession struct {
	id      uint64
	handles map[uint64]string

	// sink delivers an asynchronous event, either on a WebSocket or into a long poll queue.
	sink func(msg protocol.Message)
}

// Gateway is the shared state of a fake Janus gateway.
type Gateway struct {
	// APISecret, if set, must be sent as "apisecret" with every non-admin request.
	APISecret string

	// AdminSecret, if set, must be sent as "admin_secret" with every admin request except ping.
	AdminSecret string

	// HoldMessages makes "message" requests unanswered; tests reply by Push.
	HoldMessages bool

	mutex       sync.Mutex
	nextSession uint64
	nextHandle  uint64
	sessions    map[uint64]*fakeSession
	requests    []protocol.Message
	tokens      map[string][]string
}

// NewGateway creates an empty fake Gateway.
func NewGateway() *Gateway {
	return &Gateway{
		nextSession: 1,
		nextHandle:  10,
		sessions:    make(map[uint64]*fakeSession),
		tokens:      make(map[string][]string),
	}
}

func (g *Gateway) log() *log.Entry {
	return log.WithField("janustest", fmt.Sprintf("%p", g))
}

// Requests returns every received request in arrival order.
func (g *Gateway) Requests() []protocol.Message {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	reqs := make([]protocol.Message, len(g.requests))
	copy(reqs, g.requests)
	return reqs
}

// RequestsOf returns every received request of one kind.
func (g *Gateway) RequestsOf(kind string) (reqs []protocol.Message) {
	for _, r := range g.Requests() {
		if r.Janus() == kind {
			reqs = append(reqs, r)
		}
	}
	return
}

// Sessions returns the number of live sessions.
func (g *Gateway) Sessions() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	return len(g.sessions)
}

func (g *Gateway) hasSession(sessionID uint64) bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	_, ok := g.sessions[sessionID]
	return ok
}

// Handles returns the number of attached handles of a session.
func (g *Gateway) Handles(sessionID uint64) int {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if s, ok := g.sessions[sessionID]; ok {
		return len(s.handles)
	}
	return 0
}

// Push delivers an asynchronous message to a session's connection or long poll. The message should carry the
// session's "session_id", as long polls are looked up by it. False is returned for unknown sessions.
func (g *Gateway) Push(sessionID uint64, msg protocol.Message) bool {
	g.mutex.Lock()
	s, ok := g.sessions[sessionID]
	g.mutex.Unlock()

	if !ok {
		return false
	}

	s.sink(msg)
	return true
}

// Expire drops a session like the gateway's session timeout would and notifies its client.
func (g *Gateway) Expire(sessionID uint64) bool {
	g.mutex.Lock()
	s, ok := g.sessions[sessionID]
	delete(g.sessions, sessionID)
	g.mutex.Unlock()

	if !ok {
		return false
	}

	s.sink(protocol.Message{
		protocol.FieldJanus:     protocol.KindTimeout,
		protocol.FieldSessionID: sessionID,
	})
	return true
}

// exchange is the outcome of one request: synchronous replies and asynchronous events for the session.
type exchange struct {
	replies   []protocol.Message
	sessionID uint64
	events    []protocol.Message
}

func reply(req protocol.Message, kind string, fields protocol.Message) protocol.Message {
	msg := protocol.Message{protocol.FieldJanus: kind}
	if tx := req.Transaction(); tx != "" {
		msg[protocol.FieldTransaction] = tx
	}
	if sid, ok := req.SessionID(); ok {
		msg[protocol.FieldSessionID] = sid
	}
	for k, v := range fields {
		msg[k] = v
	}
	return msg
}

func errorReply(req protocol.Message, code int, reason string) protocol.Message {
	return reply(req, protocol.KindError, protocol.Message{
		protocol.FieldError: map[string]interface{}{
			"code":   code,
			"reason": reason,
		},
	})
}

// handle processes one request. Session and handle identifiers are taken from the request's body; the HTTP server
// adds them from the path beforehand.
func (g *Gateway) handle(req protocol.Message, sink func(protocol.Message)) exchange {
	g.mutex.Lock()
	g.requests = append(g.requests, req)
	g.mutex.Unlock()

	g.log().WithField("request", req).Debug("Fake gateway received request")

	kind := req.Janus()
	if kind == "" {
		return exchange{replies: []protocol.Message{errorReply(req, ErrorInvalidJSON, "Missing mandatory element (janus)")}}
	}

	if isAdminRequest(kind) {
		return g.handleAdmin(req)
	}

	switch kind {
	case protocol.KindPing:
		return exchange{replies: []protocol.Message{reply(req, protocol.KindPong, nil)}}
	case protocol.KindInfo:
		return exchange{replies: []protocol.Message{reply(req, protocol.KindServerInfo, serverInfo())}}
	}

	if g.APISecret != "" && req.GetString(protocol.FieldAPISecret) != g.APISecret {
		return exchange{replies: []protocol.Message{
			errorReply(req, ErrorUnauthorized, "Unauthorized request (wrong or missing secret/token)")}}
	}

	if kind == protocol.KindCreate {
		return g.create(req, sink)
	}

	sessionID, _ := req.SessionID()

	g.mutex.Lock()
	s, ok := g.sessions[sessionID]
	g.mutex.Unlock()

	if !ok {
		return exchange{replies: []protocol.Message{
			errorReply(req, ErrorNoSuchSession, fmt.Sprintf("No such session %d", sessionID))}}
	}

	switch kind {
	case protocol.KindKeepalive:
		return exchange{replies: []protocol.Message{reply(req, protocol.KindAck, nil)}}

	case protocol.KindDestroy:
		g.mutex.Lock()
		delete(g.sessions, sessionID)
		g.mutex.Unlock()
		return exchange{replies: []protocol.Message{reply(req, protocol.KindSuccess, nil)}}

	case protocol.KindAttach:
		return g.attach(req, s)
	}

	handleID, _ := req.Uint64(protocol.FieldHandleID)

	g.mutex.Lock()
	plugin, ok := s.handles[handleID]
	g.mutex.Unlock()

	if !ok {
		return exchange{replies: []protocol.Message{
			errorReply(req, ErrorNoSuchHandle, fmt.Sprintf("No such handle %d in session %d", handleID, sessionID))}}
	}

	switch kind {
	case protocol.KindMessage:
		if g.HoldMessages {
			return exchange{}
		}
		return g.message(req, sessionID, handleID, plugin)

	case protocol.KindTrickle:
		return exchange{replies: []protocol.Message{reply(req, protocol.KindAck, nil)}}

	case protocol.KindHangup:
		return exchange{
			replies:   []protocol.Message{reply(req, protocol.KindSuccess, nil)},
			sessionID: sessionID,
			events: []protocol.Message{{
				protocol.FieldJanus:     protocol.KindHangup,
				protocol.FieldSessionID: sessionID,
				protocol.FieldSender:    handleID,
				"reason":                "Explicit hangup",
			}},
		}

	case protocol.KindDetach:
		g.mutex.Lock()
		delete(s.handles, handleID)
		g.mutex.Unlock()

		return exchange{
			replies:   []protocol.Message{reply(req, protocol.KindSuccess, nil)},
			sessionID: sessionID,
			events: []protocol.Message{{
				protocol.FieldJanus:     protocol.KindDetached,
				protocol.FieldSessionID: sessionID,
				protocol.FieldSender:    handleID,
			}},
		}

	default:
		return exchange{replies: []protocol.Message{
			errorReply(req, ErrorUnknownReq, fmt.Sprintf("Unknown request '%s'", kind))}}
	}
}

func (g *Gateway) create(req protocol.Message, sink func(protocol.Message)) exchange {
	g.mutex.Lock()
	id := g.nextSession
	g.nextSession++
	g.sessions[id] = &fakeSession{
		id:      id,
		handles: make(map[uint64]string),
		sink:    sink,
	}
	g.mutex.Unlock()

	return exchange{replies: []protocol.Message{reply(req, protocol.KindSuccess, protocol.Message{
		protocol.FieldData: map[string]interface{}{"id": id},
	})}}
}

func (g *Gateway) attach(req protocol.Message, s *fakeSession) exchange {
	plugin := req.GetString(protocol.FieldPlugin)
	if plugin == "" || plugin == MissingPlugin {
		return exchange{replies: []protocol.Message{
			errorReply(req, ErrorPluginMissing, fmt.Sprintf("No such plugin '%s'", plugin))}}
	}

	g.mutex.Lock()
	id := g.nextHandle
	g.nextHandle++
	s.handles[id] = plugin
	g.mutex.Unlock()

	return exchange{replies: []protocol.Message{reply(req, protocol.KindSuccess, protocol.Message{
		protocol.FieldData: map[string]interface{}{"id": id},
	})}}
}

// message acknowledges a plugin message and answers with one plugin event under the same transaction.
func (g *Gateway) message(req protocol.Message, sessionID, handleID uint64, plugin string) exchange {
	body, _ := req.Map(protocol.FieldBody)
	jsep, _ := req.Map(protocol.FieldJSEP)

	data, answer := pluginEvent(plugin, body, jsep)

	event := protocol.Message{
		protocol.FieldJanus:       protocol.KindEvent,
		protocol.FieldSessionID:   sessionID,
		protocol.FieldSender:      handleID,
		protocol.FieldTransaction: req.Transaction(),
		protocol.FieldPluginData: map[string]interface{}{
			protocol.FieldPlugin: plugin,
			protocol.FieldData:   map[string]interface{}(data),
		},
	}
	if answer != nil {
		event[protocol.FieldJSEP] = map[string]interface{}(answer)
	}

	return exchange{
		replies:   []protocol.Message{reply(req, protocol.KindAck, nil)},
		sessionID: sessionID,
		events:    []protocol.Message{event},
	}
}

// deliver sends the exchange's events after its replies were written.
func (g *Gateway) deliver(ex exchange) {
	for _, ev := range ex.events {
		if !g.Push(ex.sessionID, ev) {
			g.log().WithField("session", ex.sessionID).Debug("Dropping event for a gone session")
		}
	}
}

func serverInfo() protocol.Message {
	return protocol.Message{
		"name":            "Janus WebRTC Server",
		"version":         1400,
		"version_string":  "1.4.0",
		"session-timeout": 60,
		"plugins": map[string]interface{}{
			"janus.plugin.echotest":  map[string]interface{}{"name": "JANUS EchoTest plugin"},
			"janus.plugin.videocall": map[string]interface{}{"name": "JANUS VideoCall plugin"},
		},
	}
}
