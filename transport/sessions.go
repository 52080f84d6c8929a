// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/josephlim94/janus-client-go/protocol"
)

// createReply is either a successful session creation or an error reply.
var createReply = protocol.AnyOf(
	protocol.Subset{
		protocol.FieldJanus: protocol.KindSuccess,
		protocol.FieldData:  map[string]interface{}{"id": nil},
	},
	protocol.Kind(protocol.KindError))

// CreateSession asks the gateway for a new session and registers the Receiver for its messages.
//
// While the reply is outstanding, the session already counts as alive: destroying another session meanwhile does not
// disconnect the Transport. A gateway's error reply is returned as a *protocol.ServerError.
func (t *Transport) CreateSession(ctx context.Context, receiver Receiver) (uint64, error) {
	t.sessionsMutex.Lock()
	t.creating++
	t.sessionsMutex.Unlock()

	sessionID, err := t.createSession(ctx)

	t.sessionsMutex.Lock()
	t.creating--
	if err == nil {
		t.sessions[sessionID] = receiver
	}
	t.sessionsMutex.Unlock()

	if err != nil {
		return 0, err
	}

	t.binding.sessionCreated(sessionID)

	t.log().WithField("session", sessionID).Info("Created session")
	return sessionID, nil
}

func (t *Transport) createSession(ctx context.Context) (uint64, error) {
	tx, err := t.Send(ctx, protocol.NewRequest(protocol.KindCreate), 0, 0)
	if err != nil {
		return 0, err
	}
	defer tx.Close()

	reply, err := tx.Get(ctx, createReply)
	if err != nil {
		return 0, err
	}
	if err := protocol.ErrorFromMessage(reply); err != nil {
		return 0, err
	}

	data, _ := reply.Data()
	sessionID, ok := data.Uint64("id")
	if !ok || sessionID == 0 {
		return 0, fmt.Errorf("%w: invalid session id in %v", protocol.ErrTransport, reply)
	}
	return sessionID, nil
}

// DestroySession deregisters a session, which must already be destroyed on the gateway.
//
// The Transport counts its sessions. When the last one is gone, the Transport disconnects itself.
func (t *Transport) DestroySession(sessionID uint64) error {
	t.sessionsMutex.Lock()
	if _, ok := t.sessions[sessionID]; !ok {
		t.sessionsMutex.Unlock()

		t.log().WithField("session", sessionID).Warn("Destroying an unknown session")
		return nil
	}

	delete(t.sessions, sessionID)
	remaining := len(t.sessions) + t.creating
	t.sessionsMutex.Unlock()

	var errs error
	if err := t.binding.sessionDestroyed(sessionID); err != nil {
		errs = multierror.Append(errs, err)
	}

	t.log().WithFields(log.Fields{
		"session":   sessionID,
		"remaining": remaining,
	}).Info("Destroyed session")

	if remaining == 0 {
		if err := t.Disconnect(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	return errs
}

// Sessions returns the identifiers of all registered sessions.
func (t *Transport) Sessions() []uint64 {
	t.sessionsMutex.RLock()
	defer t.sessionsMutex.RUnlock()

	ids := make([]uint64, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	return ids
}

// destroyer is implemented by Receivers being able to tear themselves down, e.g., a *session.Session.
type destroyer interface {
	Destroy(ctx context.Context) error
}

// Close destroys every remaining session and disconnects afterwards.
//
// Receivers implementing a Destroy(context.Context) error method are asked to destroy themselves. Otherwise, their
// session is only deregistered locally. All errors are collected.
func (t *Transport) Close(ctx context.Context) error {
	t.sessionsMutex.RLock()
	receivers := make(map[uint64]Receiver, len(t.sessions))
	for id, receiver := range t.sessions {
		receivers[id] = receiver
	}
	t.sessionsMutex.RUnlock()

	var errs error
	for id, receiver := range receivers {
		if d, ok := receiver.(destroyer); ok {
			if err := d.Destroy(ctx); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("session %d: %w", id, err))
			}
		} else if err := t.DestroySession(id); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("session %d: %w", id, err))
		}
	}

	if err := t.Disconnect(); err != nil {
		errs = multierror.Append(errs, err)
	}

	return errs
}
