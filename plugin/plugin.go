// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package plugin contains the shared base of the concrete Janus plugins in its subpackages.
package plugin

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/josephlim94/janus-client-go/jsep"
	"github.com/josephlim94/janus-client-go/protocol"
	"github.com/josephlim94/janus-client-go/session"
)

// EventsBuffer is the capacity of a Base's events channel. Further events are dropped until it is drained.
const EventsBuffer = 32

// Error is reported by a plugin inside its payload, e.g., {"videocall": "event", "error_code": 478, "error": "..."}.
type Error struct {
	Plugin string
	Code   uint64
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("plugin %s error %d: %s", e.Plugin, e.Code, e.Reason)
}

// Event is a plugin's reply or asynchronous event.
type Event struct {
	// Data is the plugin's payload, plugindata.data.
	Data protocol.Message

	// JSEP is attached by the plugin, e.g., an answer or an incoming call's offer.
	JSEP *jsep.JSEP

	Message protocol.Message
}

// EventFromMessage extracts a plugin event. A payload carrying an "error_code" is returned as *Error.
func EventFromMessage(msg protocol.Message) (Event, error) {
	data, ok := msg.PluginData()
	if !ok {
		return Event{}, fmt.Errorf("%w: no plugin data in %v", protocol.ErrTransport, msg)
	}

	ev := Event{Data: data, Message: msg}
	if j, ok := jsep.FromMessage(msg); ok {
		ev.JSEP = &j
	}

	if code, ok := data.Uint64("error_code"); ok {
		pd, _ := msg.Map(protocol.FieldPluginData)
		return ev, &Error{
			Plugin: pd.GetString(protocol.FieldPlugin),
			Code:   code,
			Reason: data.GetString("error"),
		}
	}
	return ev, nil
}

// Base is a Handle delivering its asynchronous messages on a channel.
type Base struct {
	*session.Handle

	events chan protocol.Message

	// OnJSEP, if set, is called with the JSEP of every asynchronous event, e.g., an incoming call's offer. It must be
	// set before Attach and must not block.
	OnJSEP func(j jsep.JSEP)
}

// New creates an unattached Base for the named plugin.
func New(name string) *Base {
	b := &Base{events: make(chan protocol.Message, EventsBuffer)}
	b.Handle = session.NewHandle(name, b)
	return b
}

// Events returns the Handle's asynchronous messages, e.g., plugin events, "webrtcup", "media" or "hangup".
func (b *Base) Events() <-chan protocol.Message {
	return b.events
}

// OnReceive implements session.Plugin.
func (b *Base) OnReceive(msg protocol.Message) {
	if b.OnJSEP != nil {
		if j, ok := jsep.FromMessage(msg); ok {
			b.OnJSEP(j)
		}
	}

	select {
	case b.events <- msg:
	default:
		log.WithFields(log.Fields{
			"plugin": b.Name(),
			"janus":  msg.Janus(),
		}).Warn("Events channel is full, dropping message")
	}
}

// Do sends a plugin message and waits for the plugin's event answering it.
func (b *Base) Do(ctx context.Context, body map[string]interface{}, j *jsep.JSEP) (Event, error) {
	reply, err := b.Request(ctx, body, j, protocol.Kind(protocol.KindEvent))
	if err != nil {
		return Event{}, err
	}
	return EventFromMessage(reply)
}
