// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/josephlim94/janus-client-go/internal/janustest"
	"github.com/josephlim94/janus-client-go/protocol"
)

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

func TestWebSocketSubprotocol(t *testing.T) {
	log.SetLevel(log.DebugLevel)

	srv := janustest.NewWebSocketServer(janustest.NewGateway())
	defer srv.Close()

	for _, opts := range []Options{{}, {Subprotocol: SubprotocolAdmin}} {
		tr, err := New(srv.URL(), opts)
		if err != nil {
			t.Fatal(err)
		}
		if err := tr.Connect(context.Background()); err != nil {
			t.Fatal(err)
		}
		if err := tr.Disconnect(); err != nil {
			t.Fatal(err)
		}
	}

	if protocols := srv.Subprotocols(); len(protocols) != 2 {
		t.Fatalf("expected two connections, got %v", protocols)
	} else if protocols[0] != SubprotocolJanus || protocols[1] != SubprotocolAdmin {
		t.Fatalf("unexpected sub-protocols %v", protocols)
	}
}

func TestWebSocketRoundTrip(t *testing.T) {
	gateway := janustest.NewGateway()
	srv := janustest.NewWebSocketServer(gateway)
	defer srv.Close()

	tr, err := New(srv.URL(), Options{})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := tr.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	if info, err := tr.Info(ctx); err != nil {
		t.Fatal(err)
	} else if info.Janus() != protocol.KindServerInfo || info.GetString("name") != "Janus WebRTC Server" {
		t.Fatalf("unexpected info %v", info)
	}

	tx, err := tr.Send(ctx, protocol.NewRequest(protocol.KindPing), 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if pong, err := tx.Get(ctx, protocol.Kind(protocol.KindPong)); err != nil {
		t.Fatal(err)
	} else if pong.Transaction() != tx.ID() {
		t.Fatalf("pong for another transaction: %v", pong)
	}
	_ = tx.Close()

	rec := newRecorder()
	sessionID, err := tr.CreateSession(ctx, rec)
	if err != nil {
		t.Fatal(err)
	} else if sessionID != 1 {
		t.Fatalf("unexpected session id %d", sessionID)
	}

	gateway.Push(sessionID, protocol.Message{
		protocol.FieldJanus:     protocol.KindWebRTCUp,
		protocol.FieldSessionID: sessionID,
		protocol.FieldSender:    10,
	})
	if msg := rec.next(t); msg.Janus() != protocol.KindWebRTCUp {
		t.Fatalf("unexpected push %v", msg)
	}

	if err := tr.DestroySession(sessionID); err != nil {
		t.Fatal(err)
	}
	if tr.Connected() {
		t.Fatal("transport did not disconnect after its last session")
	}

	if _, err := tr.Send(ctx, protocol.NewRequest(protocol.KindPing), 0, 0); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestWebSocketReaderLoss(t *testing.T) {
	srv := janustest.NewWebSocketServer(janustest.NewGateway())
	defer srv.Close()

	tr, err := New(srv.URL(), Options{})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := tr.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	srv.DropConnections()
	waitFor(t, "the reader to stop", func() bool { return !tr.binding.alive() })

	if _, err := tr.Send(ctx, protocol.NewRequest(protocol.KindPing), 0, 0); !errors.Is(err, ErrNotReceiving) {
		t.Fatalf("expected ErrNotReceiving, got %v", err)
	}
	if tr.Transactions() != 0 {
		t.Fatalf("failed send leaked a transaction")
	}

	// Connect replaces the dead connection.
	if err := tr.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	tx, err := tr.Send(ctx, protocol.NewRequest(protocol.KindPing), 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Close()

	if _, err := tx.Get(ctx, protocol.Kind(protocol.KindPong)); err != nil {
		t.Fatal(err)
	}

	if err := tr.Disconnect(); err != nil {
		t.Fatal(err)
	}
}

func TestWebSocketDialFailure(t *testing.T) {
	srv := janustest.NewWebSocketServer(janustest.NewGateway())
	url := srv.URL()
	srv.Close()

	tr, err := New(url, Options{})
	if err != nil {
		t.Fatal(err)
	}

	if err := tr.Connect(context.Background()); !errors.Is(err, protocol.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	} else if tr.Connected() {
		t.Fatal("transport claims to be connected")
	}
}

func TestHTTPRoundTrip(t *testing.T) {
	log.SetLevel(log.DebugLevel)

	gateway := janustest.NewGateway()
	gateway.APISecret = "janusrocks"
	srv := janustest.NewHTTPServer(gateway)
	srv.PollTimeout = 50 * time.Millisecond
	defer srv.Close()

	tr, err := New(srv.JanusURL(), Options{APISecret: "janusrocks", Token: "t0k3n"})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Info works without a connection.
	if info, err := tr.Info(ctx); err != nil {
		t.Fatal(err)
	} else if info.Janus() != protocol.KindServerInfo {
		t.Fatalf("unexpected info %v", info)
	}

	if err := tr.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	rec := newRecorder()
	sessionID, err := tr.CreateSession(ctx, rec)
	if err != nil {
		t.Fatal(err)
	}

	// Keepalives of idle long polls are not forwarded.
	waitFor(t, "some long polls", func() bool { return len(srv.Polls()) >= 2 })
	rec.expectNothing(t, 100*time.Millisecond)

	poll := srv.Polls()[0]
	if q := poll.URL.Query(); q.Get("apisecret") != "janusrocks" || q.Get("token") != "t0k3n" {
		t.Fatalf("long poll without credentials: %v", poll.URL)
	}

	gateway.Push(sessionID, protocol.Message{
		protocol.FieldJanus:     protocol.KindMedia,
		protocol.FieldSessionID: sessionID,
		protocol.FieldSender:    10,
		"type":                  "audio",
		"receiving":             true,
	})
	if msg := rec.next(t); msg.Janus() != protocol.KindMedia {
		t.Fatalf("unexpected push %v", msg)
	}

	// A request scoped to the session is POSTed to its path and answered in the response body.
	tx, err := tr.Send(ctx, protocol.NewRequest(protocol.KindKeepalive), sessionID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if ack, err := tx.Get(ctx, protocol.Kind(protocol.KindAck)); err != nil {
		t.Fatal(err)
	} else if ack.Transaction() != tx.ID() {
		t.Fatalf("unexpected ack %v", ack)
	}
	_ = tx.Close()

	if err := tr.DestroySession(sessionID); err != nil {
		t.Fatal(err)
	}
	if tr.Connected() {
		t.Fatal("transport did not disconnect after its last session")
	}

	polls := len(srv.Polls())
	time.Sleep(150 * time.Millisecond)
	if len(srv.Polls()) != polls {
		t.Fatal("long poll continued after the session was destroyed")
	}
}

func TestHTTPMaxEvents(t *testing.T) {
	gateway := janustest.NewGateway()
	srv := janustest.NewHTTPServer(gateway)
	defer srv.Close()

	tr, err := New(srv.JanusURL(), Options{MaxEvents: 5})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := tr.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	rec := newRecorder()
	sessionID, err := tr.CreateSession(ctx, rec)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		gateway.Push(sessionID, protocol.Message{
			protocol.FieldJanus:     protocol.KindSlowLink,
			protocol.FieldSessionID: sessionID,
			protocol.FieldSender:    10,
			"nacks":                 i,
		})
	}
	for i := 0; i < 3; i++ {
		if msg := rec.next(t); msg.Janus() != protocol.KindSlowLink {
			t.Fatalf("unexpected push %v", msg)
		}
	}

	if q := srv.Polls()[0].URL.Query(); q.Get("maxev") != "5" {
		t.Fatalf("long poll without maxev: %v", srv.Polls()[0].URL)
	}

	if err := tr.Close(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestHTTPCreateUnauthorized(t *testing.T) {
	gateway := janustest.NewGateway()
	gateway.APISecret = "janusrocks"
	srv := janustest.NewHTTPServer(gateway)
	defer srv.Close()

	tr, err := New(srv.JanusURL(), Options{APISecret: "wrong"})
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer tr.Disconnect()

	_, err = tr.CreateSession(context.Background(), newRecorder())

	var srvErr *protocol.ServerError
	if !errors.As(err, &srvErr) || srvErr.Code != janustest.ErrorUnauthorized {
		t.Fatalf("expected an unauthorized ServerError, got %v", err)
	}
}
