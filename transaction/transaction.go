// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package transaction correlates requests with the messages the gateway sends back under the same token.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/josephlim94/janus-client-go/protocol"
)

// ErrClosed is returned when operating on an already closed Transaction.
var ErrClosed = fmt.Errorf("%w: transaction is closed", protocol.ErrState)

// Transaction collects every message received under one correlation token.
//
// All messages are kept in their arrival order. Thus, a Get with a loose Matcher may still inspect a message which was
// already skipped by a previous Get with a stricter one. A Transaction must be closed by its creator; otherwise its
// token stays registered forever.
type Transaction struct {
	id       string
	registry *Registry

	mutex    sync.Mutex
	messages []protocol.Message
	arrival  chan struct{}
	closed   bool
}

func newTransaction(id string, registry *Registry) *Transaction {
	return &Transaction{
		id:       id,
		registry: registry,
		arrival:  make(chan struct{}),
	}
}

// ID is the correlation token, which is sent as the "transaction" field.
func (tx *Transaction) ID() string {
	return tx.id
}

// Put appends an incoming message. This never blocks and never drops.
func (tx *Transaction) Put(msg protocol.Message) {
	tx.mutex.Lock()
	defer tx.mutex.Unlock()

	tx.messages = append(tx.messages, msg)

	// Wake up every waiting Get.
	close(tx.arrival)
	tx.arrival = make(chan struct{})
}

// Get returns the earliest received message satisfying the Matcher, waiting for further messages if necessary.
//
// A nil Matcher matches every message. The search always starts at the first message ever received. If the context
// expires first, an error wrapping protocol.ErrTimeout is returned and the Transaction stays open.
func (tx *Transaction) Get(ctx context.Context, matcher protocol.Matcher) (protocol.Message, error) {
	next := 0

	for {
		tx.mutex.Lock()
		for ; next < len(tx.messages); next++ {
			if msg := tx.messages[next]; matcher == nil || matcher.Match(msg) {
				tx.mutex.Unlock()
				return msg, nil
			}
		}
		arrival, closed := tx.arrival, tx.closed
		tx.mutex.Unlock()

		if closed {
			return nil, ErrClosed
		}

		select {
		case <-arrival:

		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: transaction %s: %w", protocol.ErrTimeout, tx.id, ctx.Err())
			}
			return nil, fmt.Errorf("transaction %s: %w", tx.id, ctx.Err())
		}
	}
}

// Messages returns a copy of all messages received so far, in their arrival order.
func (tx *Transaction) Messages() []protocol.Message {
	tx.mutex.Lock()
	defer tx.mutex.Unlock()

	msgs := make([]protocol.Message, len(tx.messages))
	copy(msgs, tx.messages)
	return msgs
}

// Close deregisters this Transaction's token and releases its messages.
//
// Close must be called exactly once; a second call returns ErrClosed. Pending Gets return ErrClosed.
func (tx *Transaction) Close() error {
	tx.mutex.Lock()
	if tx.closed {
		tx.mutex.Unlock()
		return ErrClosed
	}

	tx.closed = true
	tx.messages = nil
	close(tx.arrival)
	tx.arrival = make(chan struct{})
	tx.mutex.Unlock()

	tx.registry.remove(tx.id)
	return nil
}
