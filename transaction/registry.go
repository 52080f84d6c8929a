// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transaction

import (
	"encoding/hex"
	"sync"

	"github.com/google/uuid"

	"github.com/josephlim94/janus-client-go/protocol"
)

// Registry tracks all live Transactions by their correlation token.
type Registry struct {
	mutex        sync.RWMutex
	transactions map[string]*Transaction
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		transactions: make(map[string]*Transaction),
	}
}

// newToken is a random 128 bit value in hex, like "5f0a...".
func newToken() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// Create registers a new Transaction under an unused random token.
func (r *Registry) Create() *Transaction {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for {
		id := newToken()
		if _, exists := r.transactions[id]; exists {
			continue
		}

		tx := newTransaction(id, r)
		r.transactions[id] = tx
		return tx
	}
}

// Lookup a live Transaction.
func (r *Registry) Lookup(id string) (tx *Transaction, ok bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	tx, ok = r.transactions[id]
	return
}

// Deliver puts msg into the Transaction named by its "transaction" field. False is returned if there is no such live
// Transaction.
func (r *Registry) Deliver(msg protocol.Message) bool {
	id := msg.Transaction()
	if id == "" {
		return false
	}

	if tx, ok := r.Lookup(id); !ok {
		return false
	} else {
		tx.Put(msg)
		return true
	}
}

// Len returns the number of live Transactions.
func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.transactions)
}

func (r *Registry) remove(id string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	delete(r.transactions, id)
}
