// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/josephlim94/janus-client-go/protocol"
	"github.com/josephlim94/janus-client-go/transaction"
)

var (
	// ErrAlreadyAttached is returned when attaching an attached Handle.
	ErrAlreadyAttached = fmt.Errorf("%w: handle is already attached", protocol.ErrState)

	// ErrNotAttached is returned when using a Handle before Attach.
	ErrNotAttached = fmt.Errorf("%w: handle is not attached", protocol.ErrState)

	// ErrDestroyed is returned when using a destroyed Handle. Handles cannot be attached again.
	ErrDestroyed = fmt.Errorf("%w: handle is destroyed", protocol.ErrState)
)

// Plugin receives the events of a Handle's plugin.
//
// OnReceive is called from the Transport's receiving goroutine and must not block.
type Plugin interface {
	OnReceive(msg protocol.Message)
}

// State of a Handle. The only transitions are Unattached to Attached and Attached to Destroyed.
type State int

const (
	Unattached State = iota
	Attached
	Destroyed
)

func (s State) String() string {
	switch s {
	case Unattached:
		return "unattached"
	case Attached:
		return "attached"
	case Destroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Handle is one plugin attached within a Session. Concrete plugins embed a Handle and implement Plugin.
type Handle struct {
	name   string
	plugin Plugin

	mutex     sync.RWMutex
	state     State
	attaching bool
	id        uint64
	session   *Session
}

// NewHandle creates an unattached Handle for a plugin, e.g., "janus.plugin.echotest". The Plugin receives the
// Handle's events and may be nil.
func NewHandle(name string, plugin Plugin) *Handle {
	return &Handle{
		name:   name,
		plugin: plugin,
	}
}

func (h *Handle) log() *log.Entry {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return log.WithFields(log.Fields{
		"plugin": h.name,
		"handle": h.id,
	})
}

// Name of the plugin.
func (h *Handle) Name() string {
	return h.name
}

// ID is the gateway assigned identifier, or zero if not attached.
func (h *Handle) ID() uint64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return h.id
}

func (h *Handle) State() State {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return h.state
}

// Session this Handle is attached to, or nil.
func (h *Handle) Session() *Session {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return h.session
}

// stateErr is the error for using a Handle which is not attached.
func (h *Handle) stateErr() error {
	if h.state == Destroyed {
		return ErrDestroyed
	}
	return ErrNotAttached
}

// Attach this Handle's plugin within a Session, creating the Session if necessary.
func (h *Handle) Attach(ctx context.Context, s *Session) error {
	h.mutex.Lock()
	switch {
	case h.state == Attached || h.attaching:
		h.mutex.Unlock()
		return ErrAlreadyAttached
	case h.state == Destroyed:
		h.mutex.Unlock()
		return ErrDestroyed
	}
	h.attaching = true
	h.mutex.Unlock()

	id, err := s.AttachPlugin(ctx, h)

	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.attaching = false
	if err != nil {
		return err
	}

	h.id = id
	h.session = s
	h.state = Attached
	return nil
}

// Send a Request to this Handle's plugin. The caller must Close the returned Transaction.
func (h *Handle) Send(ctx context.Context, request protocol.Request) (*transaction.Transaction, error) {
	h.mutex.RLock()
	if h.state != Attached {
		defer h.mutex.RUnlock()
		return nil, h.stateErr()
	}
	s, id := h.session, h.id
	h.mutex.RUnlock()

	return s.send(ctx, request, id)
}

// Destroy detaches the plugin on the gateway and deregisters this Handle from its Session.
//
// The gateway's reply is awaited but its content is ignored. If none arrives in time, the Handle is still destroyed
// locally and the timeout is returned.
func (h *Handle) Destroy(ctx context.Context) error {
	tx, err := h.Send(ctx, protocol.NewRequest(protocol.KindDetach))
	if err != nil {
		return err
	}
	defer tx.Close()

	reply, err := tx.Get(ctx, protocol.Kind(protocol.KindSuccess, protocol.KindError))
	if err == nil {
		if srvErr := protocol.ErrorFromMessage(reply); srvErr != nil {
			h.log().WithError(srvErr).Warn("Gateway refused to detach handle")
		}
	}

	h.mutex.Lock()
	s := h.session
	h.state = Destroyed
	h.mutex.Unlock()

	s.DetachPlugin(h)

	h.log().Info("Handle destroyed")

	h.mutex.Lock()
	h.id = 0
	h.mutex.Unlock()

	return err
}

// invalidate marks the Handle destroyed without any request, as its Session is gone.
func (h *Handle) invalidate() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.state = Destroyed
	h.id = 0
}

func (h *Handle) onReceive(msg protocol.Message) {
	if h.plugin == nil {
		h.log().WithField("janus", msg.Janus()).Debug("Handle without plugin dropped a message")
		return
	}

	h.plugin.OnReceive(msg)
}
