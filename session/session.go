// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package session implements Janus sessions and the plugin handles living within them.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/josephlim94/janus-client-go/protocol"
	"github.com/josephlim94/janus-client-go/transaction"
	"github.com/josephlim94/janus-client-go/transport"
)

const (
	// DefaultKeepaliveInterval is well below Janus' default session timeout of 60 seconds.
	DefaultKeepaliveInterval = 30 * time.Second

	// DefaultDestroyTimeout bounds the wait for the gateway's reply to a destroy request.
	DefaultDestroyTimeout = 15 * time.Second
)

var (
	// ErrCreateFailed wraps the gateway's *protocol.ServerError when a session could not be created.
	ErrCreateFailed = errors.New("session creation failed")

	// ErrAttachFailed wraps the gateway's *protocol.ServerError when a plugin could not be attached.
	ErrAttachFailed = errors.New("plugin attach failed")
)

// Options for a Session. Zero values are replaced by their defaults.
type Options struct {
	KeepaliveInterval time.Duration
	DestroyTimeout    time.Duration
}

// Session is one Janus session on a shared Transport.
//
// A Session is created lazily by its first request or explicitly by Create. While created, it sends keepalives.
type Session struct {
	transport *transport.Transport
	opts      Options

	// lifecycle serializes Create and Destroy.
	lifecycle sync.Mutex

	mutex   sync.RWMutex
	id      uint64
	created bool
	expired bool
	handles map[uint64]*Handle

	keepaliveStop context.CancelFunc
	keepaliveDone chan struct{}
}

// New creates a Session bound to a Transport. Nothing is sent until the Session is created.
func New(t *transport.Transport, opts Options) *Session {
	if opts.KeepaliveInterval <= 0 {
		opts.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if opts.DestroyTimeout <= 0 {
		opts.DestroyTimeout = DefaultDestroyTimeout
	}

	return &Session{
		transport: t,
		opts:      opts,
		handles:   make(map[uint64]*Handle),
	}
}

func (s *Session) log() *log.Entry {
	return log.WithFields(log.Fields{
		"session":   s.ID(),
		"transport": s.transport.BaseURL(),
	})
}

// ID is the gateway assigned identifier, or zero if not created.
func (s *Session) ID() uint64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.id
}

// Created reports if this Session exists on the gateway, as far as known.
func (s *Session) Created() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.created
}

// Expired reports if the gateway announced this Session's timeout.
func (s *Session) Expired() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.expired
}

// Transport of this Session.
func (s *Session) Transport() *transport.Transport {
	return s.transport
}

// Create this Session on the gateway, connecting the Transport if necessary. Creating a created Session is a no-op.
func (s *Session) Create(ctx context.Context) error {
	_, err := s.create(ctx)
	return err
}

// create returns the identifier as read under the lifecycle lock, so it cannot be reset by a concurrent Destroy.
func (s *Session) create(ctx context.Context) (uint64, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mutex.RLock()
	id, created := s.id, s.created
	s.mutex.RUnlock()

	if created {
		return id, nil
	}

	if err := s.transport.Connect(ctx); err != nil {
		return 0, err
	}

	id, err := s.transport.CreateSession(ctx, s)
	if err != nil {
		var srvErr *protocol.ServerError
		if errors.As(err, &srvErr) {
			return 0, fmt.Errorf("%w: %w", ErrCreateFailed, err)
		}
		return 0, err
	}

	keepaliveCtx, keepaliveStop := context.WithCancel(context.Background())
	keepaliveDone := make(chan struct{})

	s.mutex.Lock()
	s.id = id
	s.created = true
	s.expired = false
	s.keepaliveStop = keepaliveStop
	s.keepaliveDone = keepaliveDone
	s.mutex.Unlock()

	go s.keepalive(keepaliveCtx, id, keepaliveDone)

	s.log().Info("Session created")
	return id, nil
}

// Destroy this Session on the gateway and deregister it from its Transport. Destroying a not created Session is a
// no-op.
//
// The destroy request is best effort: its failure is logged but does not stop the local teardown. Handles which are
// still attached are dropped with a warning and cannot be used anymore. If this was the Transport's last Session, the
// Transport disconnects.
func (s *Session) Destroy(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if !s.Created() {
		return nil
	}

	s.mutex.Lock()
	id, expired := s.id, s.expired
	remaining := s.handles
	s.handles = make(map[uint64]*Handle)
	s.mutex.Unlock()

	if len(remaining) > 0 {
		ids := make([]uint64, 0, len(remaining))
		for handleID, h := range remaining {
			ids = append(ids, handleID)
			h.invalidate()
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		s.log().WithField("handles", ids).Warn("Destroying session with attached handles")
	}

	if expired {
		s.log().Debug("Session already expired on the gateway, not sending destroy")
	} else {
		s.sendDestroy(ctx, id)
	}

	s.mutex.Lock()
	keepaliveStop, keepaliveDone := s.keepaliveStop, s.keepaliveDone
	s.mutex.Unlock()

	keepaliveStop()
	<-keepaliveDone

	err := s.transport.DestroySession(id)

	s.mutex.Lock()
	s.id = 0
	s.created = false
	s.keepaliveStop, s.keepaliveDone = nil, nil
	s.mutex.Unlock()

	log.WithField("session", id).Info("Session destroyed")
	return err
}

// sendDestroy asks the gateway to destroy the session, logging every failure.
func (s *Session) sendDestroy(ctx context.Context, id uint64) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.DestroyTimeout)
	defer cancel()

	tx, err := s.transport.Send(ctx, protocol.NewRequest(protocol.KindDestroy), id, 0)
	if err != nil {
		s.log().WithError(err).Warn("Sending destroy request failed")
		return
	}
	defer tx.Close()

	reply, err := tx.Get(ctx, protocol.Kind(protocol.KindSuccess, protocol.KindError))
	if err != nil {
		s.log().WithError(err).Warn("No reply to destroy request")
	} else if err := protocol.ErrorFromMessage(reply); err != nil {
		s.log().WithError(err).Warn("Gateway refused to destroy session")
	}
}

// Send a Request within this Session, creating the Session first if necessary. The caller must Close the returned
// Transaction.
func (s *Session) Send(ctx context.Context, request protocol.Request) (*transaction.Transaction, error) {
	return s.send(ctx, request, 0)
}

func (s *Session) send(ctx context.Context, request protocol.Request, handleID uint64) (*transaction.Transaction, error) {
	id, err := s.create(ctx)
	if err != nil {
		return nil, err
	} else if id == 0 {
		return nil, fmt.Errorf("%w: session has no identifier", protocol.ErrState)
	}

	return s.transport.Send(ctx, request, id, handleID)
}

// OnReceive dispatches a message of this Session to the Handle named by its "sender".
func (s *Session) OnReceive(msg protocol.Message) {
	sender, ok := msg.Sender()
	if !ok {
		s.onSessionEvent(msg)
		return
	}

	s.mutex.RLock()
	h, ok := s.handles[sender]
	s.mutex.RUnlock()

	if !ok {
		s.log().WithFields(log.Fields{
			"sender": sender,
			"janus":  msg.Janus(),
		}).Info("Dropping message for an unknown handle")
		return
	}

	h.onReceive(msg)
}

// onSessionEvent handles messages addressed to the session itself.
func (s *Session) onSessionEvent(msg protocol.Message) {
	switch msg.Janus() {
	case protocol.KindTimeout:
		s.mutex.Lock()
		s.expired = true
		s.mutex.Unlock()

		s.log().Warn("Session expired on the gateway")

	default:
		s.log().WithField("message", msg).Info("Received session event")
	}
}

var attachReply = protocol.AnyOf(
	protocol.Subset{
		protocol.FieldJanus: protocol.KindSuccess,
		protocol.FieldData:  map[string]interface{}{"id": nil},
	},
	protocol.Kind(protocol.KindError))

// AttachPlugin attaches a Handle's plugin within this Session and registers the Handle for its events. The gateway's
// error reply is returned as ErrAttachFailed, wrapping the *protocol.ServerError.
//
// Usually, Handle.Attach is called instead.
func (s *Session) AttachPlugin(ctx context.Context, h *Handle) (uint64, error) {
	tx, err := s.Send(ctx, protocol.NewRequest(protocol.KindAttach).With(protocol.FieldPlugin, h.Name()))
	if err != nil {
		return 0, err
	}
	defer tx.Close()

	reply, err := tx.Get(ctx, attachReply)
	if err != nil {
		return 0, err
	}
	if err := protocol.ErrorFromMessage(reply); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrAttachFailed, h.Name(), err)
	}

	data, _ := reply.Data()
	handleID, ok := data.Uint64("id")
	if !ok || handleID == 0 {
		return 0, fmt.Errorf("%w: invalid handle id in %v", protocol.ErrTransport, reply)
	}

	s.mutex.Lock()
	s.handles[handleID] = h
	s.mutex.Unlock()

	s.log().WithFields(log.Fields{
		"handle": handleID,
		"plugin": h.Name(),
	}).Info("Plugin attached")
	return handleID, nil
}

// DetachPlugin deregisters a Handle locally. Nothing is sent; Handle.Destroy does this.
func (s *Session) DetachPlugin(h *Handle) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for id, registered := range s.handles {
		if registered == h {
			delete(s.handles, id)
		}
	}
}

// Handles returns all attached Handles, ordered by their identifiers.
func (s *Session) Handles() []*Handle {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ids := make([]uint64, 0, len(s.handles))
	for id := range s.handles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	handles := make([]*Handle, len(ids))
	for i, id := range ids {
		handles[i] = s.handles[id]
	}
	return handles
}
