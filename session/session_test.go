// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/josephlim94/janus-client-go/internal/janustest"
	"github.com/josephlim94/janus-client-go/jsep"
	"github.com/josephlim94/janus-client-go/protocol"
	"github.com/josephlim94/janus-client-go/transport"
)

// recordingPlugin collects its Handle's events.
type recordingPlugin struct {
	msgs chan protocol.Message
}

func newRecordingPlugin() *recordingPlugin {
	return &recordingPlugin{msgs: make(chan protocol.Message, 64)}
}

func (p *recordingPlugin) OnReceive(msg protocol.Message) {
	p.msgs <- msg
}

func (p *recordingPlugin) next(t *testing.T) protocol.Message {
	t.Helper()

	select {
	case msg := <-p.msgs:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("plugin received no message")
		return nil
	}
}

func (p *recordingPlugin) expectNothing(t *testing.T, wait time.Duration) {
	t.Helper()

	select {
	case msg := <-p.msgs:
		t.Fatalf("unexpected message %v", msg)
	case <-time.After(wait):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	for i := 0; i < 100; i++ {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newWebSocketTransport(t *testing.T, gateway *janustest.Gateway) (*transport.Transport, func()) {
	srv := janustest.NewWebSocketServer(gateway)

	tr, err := transport.New(srv.URL(), transport.Options{})
	if err != nil {
		srv.Close()
		t.Fatal(err)
	}
	return tr, srv.Close
}

func TestEndToEnd(t *testing.T) {
	log.SetLevel(log.DebugLevel)

	gateway := janustest.NewGateway()
	gateway.HoldMessages = true

	tr, closeSrv := newWebSocketTransport(t, gateway)
	defer closeSrv()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := tr.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	s := New(tr, Options{})
	if err := s.Create(ctx); err != nil {
		t.Fatal(err)
	} else if s.ID() != 1 {
		t.Fatalf("unexpected session id %d", s.ID())
	}

	plugin := newRecordingPlugin()
	h := NewHandle("x.plugin.test", plugin)
	if err := h.Attach(ctx, s); err != nil {
		t.Fatal(err)
	} else if h.ID() != 10 || h.State() != Attached || h.Session() != s {
		t.Fatalf("unexpected handle %d in state %v", h.ID(), h.State())
	}

	tx, err := h.Send(ctx, protocol.NewRequest(protocol.KindMessage).With(protocol.FieldBody, map[string]interface{}{"x": 1}))
	if err != nil {
		t.Fatal(err)
	}
	if n := tr.Transactions(); n != 1 {
		t.Fatalf("expected exactly one live transaction, got %d", n)
	}

	sent := gateway.RequestsOf(protocol.KindMessage)
	if len(sent) != 1 {
		t.Fatalf("expected one message request, got %d", len(sent))
	} else if sid, _ := sent[0].SessionID(); sid != 1 {
		t.Fatalf("message sent with session %d", sid)
	} else if hid, _ := sent[0].Uint64(protocol.FieldHandleID); hid != 10 {
		t.Fatalf("message sent with handle %d", hid)
	}

	gateway.Push(1, protocol.Message{
		protocol.FieldJanus:       protocol.KindEvent,
		protocol.FieldSender:      10,
		protocol.FieldSessionID:   1,
		protocol.FieldTransaction: tx.ID(),
	})

	reply, err := tx.Get(ctx, protocol.All)
	if err != nil {
		t.Fatal(err)
	} else if sender, _ := reply.Sender(); reply.Janus() != protocol.KindEvent || sender != 10 {
		t.Fatalf("unexpected reply %v", reply)
	}
	if err := tx.Close(); err != nil {
		t.Fatal(err)
	}

	// The reply belonged to the transaction, not to the plugin.
	plugin.expectNothing(t, 50*time.Millisecond)

	if err := h.Destroy(ctx); err != nil {
		t.Fatal(err)
	} else if h.State() != Destroyed || len(s.Handles()) != 0 {
		t.Fatalf("handle not destroyed: %v, %d handles left", h.State(), len(s.Handles()))
	}

	if err := s.Destroy(ctx); err != nil {
		t.Fatal(err)
	}
	if tr.Connected() {
		t.Fatal("transport did not disconnect after its last session")
	}
	if gateway.Sessions() != 0 {
		t.Fatalf("gateway still knows %d sessions", gateway.Sessions())
	}
	if s.Created() || s.ID() != 0 {
		t.Fatalf("session still created with id %d", s.ID())
	}
}

func TestEndToEndHTTP(t *testing.T) {
	gateway := janustest.NewGateway()
	srv := janustest.NewHTTPServer(gateway)
	defer srv.Close()

	tr, err := transport.New(srv.JanusURL(), transport.Options{})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := New(tr, Options{})

	plugin := newRecordingPlugin()
	h := NewHandle("janus.plugin.echotest", plugin)

	// Attaching creates the session and connects the transport.
	if err := h.Attach(ctx, s); err != nil {
		t.Fatal(err)
	}
	if !tr.Connected() || !s.Created() {
		t.Fatal("session was not created lazily")
	}

	offer := jsep.Offer("v=0\r\n")
	reply, err := h.Request(ctx, map[string]interface{}{"audio": true}, &offer, protocol.Kind(protocol.KindEvent))
	if err != nil {
		t.Fatal(err)
	}

	if data, ok := reply.PluginData(); !ok || data.GetString("result") != "ok" {
		t.Fatalf("unexpected plugin data in %v", reply)
	}
	if answer, ok := jsep.FromMessage(reply); !ok || answer.Type != jsep.TypeAnswer || answer.SDP != janustest.AnswerSDP {
		t.Fatalf("unexpected answer in %v", reply)
	}

	if err := h.Trickle(ctx, jsep.Candidate{Candidate: "candidate:1 1 udp 1 192.0.2.1 5000 typ host", SDPMid: new(string)}); err != nil {
		t.Fatal(err)
	}
	if err := h.TrickleCompleted(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(gateway.RequestsOf(protocol.KindTrickle)); n != 2 {
		t.Fatalf("expected two trickle requests, got %d", n)
	}

	// The hangup event arrives by long poll and is routed by its sender.
	if err := h.Hangup(ctx); err != nil {
		t.Fatal(err)
	}
	if msg := plugin.next(t); msg.Janus() != protocol.KindHangup {
		t.Fatalf("unexpected event %v", msg)
	}

	if err := h.Destroy(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Destroy(ctx); err != nil {
		t.Fatal(err)
	}
	if tr.Connected() {
		t.Fatal("transport did not disconnect after its last session")
	}
}

func TestHandleLifecycleGuards(t *testing.T) {
	gateway := janustest.NewGateway()
	tr, closeSrv := newWebSocketTransport(t, gateway)
	defer closeSrv()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := New(tr, Options{})
	defer s.Destroy(ctx)

	h := NewHandle("x.plugin.test", nil)
	if h.State() != Unattached {
		t.Fatalf("new handle in state %v", h.State())
	}

	if _, err := h.Send(ctx, protocol.NewRequest(protocol.KindMessage)); !errors.Is(err, ErrNotAttached) {
		t.Fatalf("send before attach: expected ErrNotAttached, got %v", err)
	} else if !errors.Is(err, protocol.ErrState) {
		t.Fatal("ErrNotAttached must be a state error")
	}

	if err := h.Attach(ctx, s); err != nil {
		t.Fatal(err)
	}
	if err := h.Attach(ctx, s); !errors.Is(err, ErrAlreadyAttached) {
		t.Fatalf("second attach: expected ErrAlreadyAttached, got %v", err)
	}

	if err := h.Destroy(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Send(ctx, protocol.NewRequest(protocol.KindMessage)); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("send after destroy: expected ErrDestroyed, got %v", err)
	}
	if err := h.Attach(ctx, s); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("attach after destroy: expected ErrDestroyed, got %v", err)
	}
	if err := h.Destroy(ctx); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("second destroy: expected ErrDestroyed, got %v", err)
	}
}

func TestAttachFailed(t *testing.T) {
	gateway := janustest.NewGateway()
	tr, closeSrv := newWebSocketTransport(t, gateway)
	defer closeSrv()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := New(tr, Options{})
	defer s.Destroy(ctx)

	h := NewHandle(janustest.MissingPlugin, nil)
	err := h.Attach(ctx, s)
	if !errors.Is(err, ErrAttachFailed) {
		t.Fatalf("expected ErrAttachFailed, got %v", err)
	}

	var srvErr *protocol.ServerError
	if !errors.As(err, &srvErr) || srvErr.Code != janustest.ErrorPluginMissing {
		t.Fatalf("expected the gateway's error payload, got %v", err)
	}

	if h.State() != Unattached || h.ID() != 0 || len(s.Handles()) != 0 {
		t.Fatalf("failed attach left traces: %v, %d", h.State(), h.ID())
	}
}

func TestCreateFailed(t *testing.T) {
	gateway := janustest.NewGateway()
	gateway.APISecret = "janusrocks"

	tr, closeSrv := newWebSocketTransport(t, gateway)
	defer closeSrv()

	s := New(tr, Options{})
	err := s.Create(context.Background())

	var srvErr *protocol.ServerError
	if !errors.Is(err, ErrCreateFailed) || !errors.As(err, &srvErr) || srvErr.Code != janustest.ErrorUnauthorized {
		t.Fatalf("expected ErrCreateFailed with 403, got %v", err)
	}
	if s.Created() {
		t.Fatal("failed session claims to be created")
	}

	_ = tr.Disconnect()
}

func TestSessionRouting(t *testing.T) {
	gateway := janustest.NewGateway()
	tr, closeSrv := newWebSocketTransport(t, gateway)
	defer closeSrv()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := New(tr, Options{})
	defer s.Destroy(ctx)

	plugin := newRecordingPlugin()
	h := NewHandle("x.plugin.test", plugin)
	if err := h.Attach(ctx, s); err != nil {
		t.Fatal(err)
	}

	// Unknown senders and session events are dropped.
	gateway.Push(s.ID(), protocol.Message{
		protocol.FieldJanus:     protocol.KindWebRTCUp,
		protocol.FieldSessionID: s.ID(),
		protocol.FieldSender:    99,
	})
	gateway.Push(s.ID(), protocol.Message{
		protocol.FieldJanus:     protocol.KindEvent,
		protocol.FieldSessionID: s.ID(),
	})

	gateway.Push(s.ID(), protocol.Message{
		protocol.FieldJanus:     protocol.KindWebRTCUp,
		protocol.FieldSessionID: s.ID(),
		protocol.FieldSender:    h.ID(),
	})

	if msg := plugin.next(t); msg.Janus() != protocol.KindWebRTCUp {
		t.Fatalf("unexpected message %v", msg)
	}
	plugin.expectNothing(t, 50*time.Millisecond)

	// The plugin's event, answering a message, arrives on the transaction.
	reply, err := h.Request(ctx, map[string]interface{}{"request": "ping"}, nil, protocol.Kind(protocol.KindEvent))
	if err != nil {
		t.Fatal(err)
	} else if data, _ := reply.PluginData(); data.GetString("result") != "ok" {
		t.Fatalf("unexpected reply %v", reply)
	}
	plugin.expectNothing(t, 50*time.Millisecond)
}

func TestLazyCreateOnce(t *testing.T) {
	gateway := janustest.NewGateway()
	tr, closeSrv := newWebSocketTransport(t, gateway)
	defer closeSrv()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := New(tr, Options{})

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			tx, err := s.Send(ctx, protocol.NewRequest(protocol.KindKeepalive))
			if err != nil {
				errs <- err
				return
			}
			defer tx.Close()

			if _, err := tx.Get(ctx, protocol.Kind(protocol.KindAck)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatal(err)
	}

	if n := len(gateway.RequestsOf(protocol.KindCreate)); n != 1 {
		t.Fatalf("expected one create request, got %d", n)
	}

	if err := s.Destroy(ctx); err != nil {
		t.Fatal(err)
	}
	// Destroying twice is a no-op.
	if err := s.Destroy(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(gateway.RequestsOf(protocol.KindDestroy)); n != 1 {
		t.Fatalf("expected one destroy request, got %d", n)
	}
}

func TestSendDuringDestroy(t *testing.T) {
	gateway := janustest.NewGateway()
	tr, closeSrv := newWebSocketTransport(t, gateway)
	defer closeSrv()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s := New(tr, Options{})

	var wg sync.WaitGroup
	errs := make(chan error, 64)

	wg.Add(2)
	go func() {
		defer wg.Done()

		for i := 0; i < 20; i++ {
			tx, err := s.Send(ctx, protocol.NewRequest(protocol.KindKeepalive))
			if err != nil {
				// The Transport may disconnect between create and send.
				if !errors.Is(err, protocol.ErrState) && !errors.Is(err, protocol.ErrTransport) {
					errs <- err
				}
				continue
			}
			_ = tx.Close()
		}
	}()
	go func() {
		defer wg.Done()

		for i := 0; i < 20; i++ {
			if err := s.Destroy(ctx); err != nil {
				errs <- err
			}
		}
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatal(err)
	}

	for _, req := range gateway.RequestsOf(protocol.KindKeepalive) {
		if sid, ok := req.SessionID(); !ok || sid == 0 {
			t.Fatalf("request without session identifier: %v", req)
		}
	}

	if err := s.Destroy(ctx); err != nil {
		t.Fatal(err)
	}
	if s.ID() != 0 || s.Created() {
		t.Fatal("session still created")
	}
}

func TestKeepalive(t *testing.T) {
	gateway := janustest.NewGateway()
	tr, closeSrv := newWebSocketTransport(t, gateway)
	defer closeSrv()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := New(tr, Options{KeepaliveInterval: 20 * time.Millisecond})
	if err := s.Create(ctx); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "keepalives", func() bool { return len(gateway.RequestsOf(protocol.KindKeepalive)) >= 3 })

	if err := s.Destroy(ctx); err != nil {
		t.Fatal(err)
	}

	// No keepalive is sent after Destroy returned.
	sent := len(gateway.RequestsOf(protocol.KindKeepalive))
	time.Sleep(100 * time.Millisecond)
	if n := len(gateway.RequestsOf(protocol.KindKeepalive)); n != sent {
		t.Fatalf("keepalive continued: %d after %d", n, sent)
	}
	if tr.Transactions() != 0 {
		t.Fatalf("keepalive leaked %d transactions", tr.Transactions())
	}
}

func TestDestroyWithAttachedHandles(t *testing.T) {
	gateway := janustest.NewGateway()
	tr, closeSrv := newWebSocketTransport(t, gateway)
	defer closeSrv()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := New(tr, Options{})

	h1 := NewHandle("x.plugin.one", nil)
	h2 := NewHandle("x.plugin.two", nil)
	for _, h := range []*Handle{h1, h2} {
		if err := h.Attach(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	if handles := s.Handles(); len(handles) != 2 || handles[0] != h1 || handles[1] != h2 {
		t.Fatalf("unexpected handles %v", handles)
	}

	if err := s.Destroy(ctx); err != nil {
		t.Fatal(err)
	}

	for _, h := range []*Handle{h1, h2} {
		if h.State() != Destroyed {
			t.Fatalf("handle %s in state %v", h.Name(), h.State())
		}
		if _, err := h.Send(ctx, protocol.NewRequest(protocol.KindMessage)); !errors.Is(err, ErrDestroyed) {
			t.Fatalf("expected ErrDestroyed, got %v", err)
		}
	}
}

func TestSessionTimeout(t *testing.T) {
	gateway := janustest.NewGateway()
	tr, closeSrv := newWebSocketTransport(t, gateway)
	defer closeSrv()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := New(tr, Options{})
	if err := s.Create(ctx); err != nil {
		t.Fatal(err)
	}

	gateway.Expire(s.ID())
	waitFor(t, "the session to expire", s.Expired)

	if err := s.Destroy(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(gateway.RequestsOf(protocol.KindDestroy)); n != 0 {
		t.Fatalf("destroy sent for an expired session: %d", n)
	}
	if tr.Connected() {
		t.Fatal("transport did not disconnect")
	}
}
