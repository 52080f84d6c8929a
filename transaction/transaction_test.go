// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transaction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/josephlim94/janus-client-go/protocol"
)

func TestTransactionOrdering(t *testing.T) {
	reg := NewRegistry()
	tx := reg.Create()
	defer tx.Close()

	m1 := protocol.Message{"janus": "ack", "n": 1}
	m2 := protocol.Message{"janus": "ack", "n": 2}
	m3 := protocol.Message{"janus": "event", "n": 3}

	for _, msg := range []protocol.Message{m1, m2, m3} {
		tx.Put(msg)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if msg, err := tx.Get(ctx, protocol.Subset{"janus": "event"}); err != nil {
		t.Fatal(err)
	} else if msg["n"] != 3 {
		t.Fatalf("expected the third message, got %v", msg)
	}

	// Skipped messages are still available afterwards.
	if msg, err := tx.Get(ctx, protocol.Subset{}); err != nil {
		t.Fatal(err)
	} else if msg["n"] != 1 {
		t.Fatalf("expected the first message, got %v", msg)
	}

	if msgs := tx.Messages(); len(msgs) != 3 {
		t.Fatalf("expected three messages, got %d", len(msgs))
	}
}

func TestTransactionWaits(t *testing.T) {
	reg := NewRegistry()
	tx := reg.Create()
	defer tx.Close()

	var wg sync.WaitGroup
	wg.Add(1)

	var got protocol.Message
	var gotErr error
	go func() {
		defer wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		got, gotErr = tx.Get(ctx, protocol.Subset{"janus": "success"})
	}()

	time.Sleep(10 * time.Millisecond)
	tx.Put(protocol.Message{"janus": "ack"})
	time.Sleep(10 * time.Millisecond)
	tx.Put(protocol.Message{"janus": "success"})

	wg.Wait()
	if gotErr != nil {
		t.Fatal(gotErr)
	} else if got.Janus() != "success" {
		t.Fatalf("unexpected message %v", got)
	}
}

func TestTransactionTimeout(t *testing.T) {
	reg := NewRegistry()
	tx := reg.Create()

	tx.Put(protocol.Message{"janus": "ack"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := tx.Get(ctx, protocol.Subset{"janus": "success"}); !errors.Is(err, protocol.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	} else if dur := time.Since(start); dur > time.Second {
		t.Fatalf("timeout took %v", dur)
	}

	// The Transaction must still be open and usable.
	if _, ok := reg.Lookup(tx.ID()); !ok {
		t.Fatal("transaction was deregistered by a timeout")
	}
	tx.Put(protocol.Message{"janus": "success"})

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if _, err := tx.Get(ctx2, protocol.Subset{"janus": "success"}); err != nil {
		t.Fatal(err)
	}

	if err := tx.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestTransactionClose(t *testing.T) {
	reg := NewRegistry()
	tx := reg.Create()

	done := make(chan error)
	go func() {
		_, err := tx.Get(context.Background(), protocol.Subset{"janus": "never"})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	if err := tx.Close(); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pending Get was not released")
	}

	if err := tx.Close(); !errors.Is(err, ErrClosed) {
		t.Fatalf("second Close: expected ErrClosed, got %v", err)
	} else if !errors.Is(err, protocol.ErrState) {
		t.Fatalf("ErrClosed must be a state error")
	}

	if reg.Len() != 0 {
		t.Fatalf("registry still holds %d transactions", reg.Len())
	}
}

func TestRegistryDeliver(t *testing.T) {
	reg := NewRegistry()

	tx1 := reg.Create()
	tx2 := reg.Create()
	defer tx2.Close()

	if tx1.ID() == tx2.ID() {
		t.Fatalf("duplicate token %s", tx1.ID())
	} else if len(tx1.ID()) != 32 {
		t.Fatalf("unexpected token format %q", tx1.ID())
	}

	if !reg.Deliver(protocol.Message{"janus": "ack", "transaction": tx1.ID()}) {
		t.Fatal("delivery to a live transaction failed")
	}
	if reg.Deliver(protocol.Message{"janus": "ack", "transaction": "unknown"}) {
		t.Fatal("delivery to an unknown transaction succeeded")
	}
	if reg.Deliver(protocol.Message{"janus": "event"}) {
		t.Fatal("delivery without a transaction succeeded")
	}

	if n := len(tx1.Messages()); n != 1 {
		t.Fatalf("expected one message, got %d", n)
	} else if n := len(tx2.Messages()); n != 0 {
		t.Fatalf("expected no message, got %d", n)
	}

	_ = tx1.Close()
	if reg.Deliver(protocol.Message{"janus": "ack", "transaction": tx1.ID()}) {
		t.Fatal("delivery to a closed transaction succeeded")
	}
	if reg.Len() != 1 {
		t.Fatalf("expected one live transaction, got %d", reg.Len())
	}
}
