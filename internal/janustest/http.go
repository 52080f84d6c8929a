// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package janustest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/josephlim94/janus-client-go/protocol"
)

// HTTPServer serves a Gateway by Janus' REST interface on /janus and the admin API on /admin.
type HTTPServer struct {
	*httptest.Server

	gateway *Gateway

	// PollTimeout is the time a long poll waits for an event before it returns a keepalive.
	PollTimeout time.Duration

	mutex  sync.Mutex
	queues map[uint64]chan protocol.Message
	polls  []*http.Request
}

// NewHTTPServer starts serving a Gateway on a random local port.
func NewHTTPServer(g *Gateway) *HTTPServer {
	hs := &HTTPServer{
		gateway:     g,
		PollTimeout: 250 * time.Millisecond,
		queues:      make(map[uint64]chan protocol.Message),
	}

	router := mux.NewRouter()
	router.HandleFunc("/janus", hs.post).Methods(http.MethodPost)
	router.HandleFunc("/janus/info", hs.info).Methods(http.MethodGet)
	router.HandleFunc("/janus/{session:[0-9]+}", hs.post).Methods(http.MethodPost)
	router.HandleFunc("/janus/{session:[0-9]+}", hs.longPoll).Methods(http.MethodGet)
	router.HandleFunc("/janus/{session:[0-9]+}/{handle:[0-9]+}", hs.post).Methods(http.MethodPost)
	router.HandleFunc("/admin", hs.post).Methods(http.MethodPost)
	router.HandleFunc("/admin/info", hs.info).Methods(http.MethodGet)
	router.HandleFunc("/admin/{session:[0-9]+}", hs.post).Methods(http.MethodPost)
	router.HandleFunc("/admin/{session:[0-9]+}/{handle:[0-9]+}", hs.post).Methods(http.MethodPost)

	hs.Server = httptest.NewServer(router)
	return hs
}

// JanusURL is the base URL of the REST interface.
func (hs *HTTPServer) JanusURL() string {
	return hs.Server.URL + "/janus"
}

// AdminURL is the base URL of the admin API.
func (hs *HTTPServer) AdminURL() string {
	return hs.Server.URL + "/admin"
}

// Polls returns every long poll request received so far.
func (hs *HTTPServer) Polls() []*http.Request {
	hs.mutex.Lock()
	defer hs.mutex.Unlock()

	return append([]*http.Request(nil), hs.polls...)
}

func (hs *HTTPServer) queue(sessionID uint64) chan protocol.Message {
	hs.mutex.Lock()
	defer hs.mutex.Unlock()

	q, ok := hs.queues[sessionID]
	if !ok {
		q = make(chan protocol.Message, 128)
		hs.queues[sessionID] = q
	}
	return q
}

func writeJSON(rw http.ResponseWriter, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}

func pathID(r *http.Request, name string) uint64 {
	id, _ := strconv.ParseUint(mux.Vars(r)[name], 10, 64)
	return id
}

func (hs *HTTPServer) post(rw http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}

	req, err := protocol.Decode(data)
	if err != nil {
		writeJSON(rw, errorReply(protocol.Message{}, ErrorInvalidJSON, "JSON error: "+err.Error()))
		return
	}

	// The path names the session and handle.
	if sessionID := pathID(r, "session"); sessionID != 0 {
		req[protocol.FieldSessionID] = sessionID
	}
	if handleID := pathID(r, "handle"); handleID != 0 {
		req[protocol.FieldHandleID] = handleID
	}

	hs.respond(rw, hs.gateway.handle(req, hs.enqueue))
}

// enqueue is the sink of sessions created over HTTP. Events must carry their "session_id".
func (hs *HTTPServer) enqueue(msg protocol.Message) {
	sessionID, _ := msg.SessionID()
	hs.queue(sessionID) <- msg
}

func (hs *HTTPServer) respond(rw http.ResponseWriter, ex exchange) {
	switch len(ex.replies) {
	case 0:
		writeJSON(rw, protocol.Message{protocol.FieldJanus: protocol.KindAck})
	case 1:
		writeJSON(rw, ex.replies[0])
	default:
		writeJSON(rw, ex.replies)
	}

	hs.gateway.deliver(ex)
}

func (hs *HTTPServer) info(rw http.ResponseWriter, _ *http.Request) {
	writeJSON(rw, reply(protocol.Message{}, protocol.KindServerInfo, serverInfo()))
}

func (hs *HTTPServer) longPoll(rw http.ResponseWriter, r *http.Request) {
	hs.mutex.Lock()
	hs.polls = append(hs.polls, r)
	hs.mutex.Unlock()

	sessionID := pathID(r, "session")

	query := r.URL.Query()
	if hs.gateway.APISecret != "" && query.Get(protocol.FieldAPISecret) != hs.gateway.APISecret {
		writeJSON(rw, errorReply(protocol.Message{}, ErrorUnauthorized, "Unauthorized request (wrong or missing secret/token)"))
		return
	}

	q := hs.queue(sessionID)

	// Events queued before a session's end, e.g., a timeout, are still delivered.
	if len(q) == 0 && !hs.gateway.hasSession(sessionID) {
		writeJSON(rw, errorReply(protocol.Message{}, ErrorNoSuchSession, "No such session "+strconv.FormatUint(sessionID, 10)))
		return
	}

	maxEvents, _ := strconv.Atoi(query.Get("maxev"))
	if maxEvents < 1 {
		maxEvents = 1
	}

	var events []protocol.Message

	timer := time.NewTimer(hs.PollTimeout)
	defer timer.Stop()

	select {
	case msg := <-q:
		events = append(events, msg)

	case <-timer.C:
		writeJSON(rw, protocol.Message{protocol.FieldJanus: protocol.KindKeepalive})
		return

	case <-r.Context().Done():
		return
	}

drain:
	for len(events) < maxEvents {
		select {
		case msg := <-q:
			events = append(events, msg)
		default:
			break drain
		}
	}

	if maxEvents > 1 {
		writeJSON(rw, events)
	} else {
		writeJSON(rw, events[0])
	}
}
