// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"

	"github.com/josephlim94/janus-client-go/jsep"
	"github.com/josephlim94/janus-client-go/protocol"
	"github.com/josephlim94/janus-client-go/transaction"
)

// Message sends a plugin "message" with a body and an optional JSEP. The caller must Close the returned Transaction.
func (h *Handle) Message(ctx context.Context, body map[string]interface{}, j *jsep.JSEP) (*transaction.Transaction, error) {
	if body == nil {
		body = map[string]interface{}{}
	}

	request := protocol.NewRequest(protocol.KindMessage).With(protocol.FieldBody, body)
	if j != nil {
		request = request.With(protocol.FieldJSEP, j.Fields())
	}

	return h.Send(ctx, request)
}

// Request sends a plugin "message" and waits for the first reply satisfying the Matcher or for an error reply, which
// is returned as *protocol.ServerError.
//
// Plugins answering asynchronously first acknowledge the message; a Matcher like protocol.Kind(protocol.KindEvent)
// skips this.
func (h *Handle) Request(ctx context.Context, body map[string]interface{}, j *jsep.JSEP, matcher protocol.Matcher) (protocol.Message, error) {
	tx, err := h.Message(ctx, body, j)
	if err != nil {
		return nil, err
	}
	defer tx.Close()

	return awaitReply(ctx, tx, matcher)
}

// Trickle relays one local ICE candidate.
func (h *Handle) Trickle(ctx context.Context, candidate jsep.Candidate) error {
	request := protocol.NewRequest(protocol.KindTrickle).With(protocol.FieldCandidate, candidate.Fields())
	return h.call(ctx, request, protocol.Kind(protocol.KindAck, protocol.KindSuccess))
}

// TrickleCandidates relays several local ICE candidates at once.
func (h *Handle) TrickleCandidates(ctx context.Context, candidates []jsep.Candidate) error {
	list := make([]interface{}, len(candidates))
	for i, c := range candidates {
		list[i] = c.Fields()
	}

	request := protocol.NewRequest(protocol.KindTrickle).With(protocol.FieldCandidates, list)
	return h.call(ctx, request, protocol.Kind(protocol.KindAck, protocol.KindSuccess))
}

// TrickleCompleted announces the end of local ICE gathering.
func (h *Handle) TrickleCompleted(ctx context.Context) error {
	request := protocol.NewRequest(protocol.KindTrickle).With(protocol.FieldCandidate, jsep.Completed())
	return h.call(ctx, request, protocol.Kind(protocol.KindAck, protocol.KindSuccess))
}

// Hangup closes the PeerConnection of this Handle, keeping the Handle attached.
func (h *Handle) Hangup(ctx context.Context) error {
	return h.call(ctx, protocol.NewRequest(protocol.KindHangup), protocol.Kind(protocol.KindSuccess, protocol.KindAck))
}

// call sends a Request, awaits a reply and closes the Transaction.
func (h *Handle) call(ctx context.Context, request protocol.Request, matcher protocol.Matcher) error {
	tx, err := h.Send(ctx, request)
	if err != nil {
		return err
	}
	defer tx.Close()

	_, err = awaitReply(ctx, tx, matcher)
	return err
}

func awaitReply(ctx context.Context, tx *transaction.Transaction, matcher protocol.Matcher) (protocol.Message, error) {
	reply, err := tx.Get(ctx, protocol.AnyOf(matcher, protocol.Kind(protocol.KindError)))
	if err != nil {
		return nil, err
	}
	if err := protocol.ErrorFromMessage(reply); err != nil {
		return reply, err
	}
	return reply, nil
}
