// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package videocall drives the Janus VideoCall plugin: peers register a username and call each other by it.
//
// Incoming calls arrive asynchronously as an "incomingcall" event with an offer on the Events channel and OnJSEP.
package videocall

import (
	"context"
	"fmt"

	"github.com/josephlim94/janus-client-go/jsep"
	"github.com/josephlim94/janus-client-go/plugin"
	"github.com/josephlim94/janus-client-go/protocol"
)

const Name = "janus.plugin.videocall"

type Plugin struct {
	*plugin.Base
}

func New() *Plugin {
	return &Plugin{Base: plugin.New(Name)}
}

// Result returns the "result" object of a videocall event.
func Result(ev plugin.Event) (protocol.Message, bool) {
	return ev.Data.Map("result")
}

func (p *Plugin) request(ctx context.Context, body map[string]interface{}, j *jsep.JSEP) (protocol.Message, error) {
	ev, err := p.Do(ctx, body, j)
	if err != nil {
		return nil, err
	}

	result, ok := Result(ev)
	if !ok {
		return nil, fmt.Errorf("%w: videocall %s without result", protocol.ErrTransport, body["request"])
	}
	return result, nil
}

// List the registered usernames.
func (p *Plugin) List(ctx context.Context) ([]string, error) {
	result, err := p.request(ctx, map[string]interface{}{"request": "list"}, nil)
	if err != nil {
		return nil, err
	}

	items, _ := result["list"].([]interface{})
	users := make([]string, 0, len(items))
	for _, item := range items {
		if user, ok := item.(string); ok {
			users = append(users, user)
		}
	}
	return users, nil
}

// Register this Handle under a username.
func (p *Plugin) Register(ctx context.Context, username string) error {
	_, err := p.request(ctx, map[string]interface{}{
		"request":  "register",
		"username": username,
	}, nil)
	return err
}

// Call a registered username with an offer. The callee's answer arrives later as an "accepted" event.
func (p *Plugin) Call(ctx context.Context, username string, offer jsep.JSEP) error {
	_, err := p.request(ctx, map[string]interface{}{
		"request":  "call",
		"username": username,
	}, &offer)
	return err
}

// Accept an incoming call with an answer.
func (p *Plugin) Accept(ctx context.Context, answer jsep.JSEP) error {
	_, err := p.request(ctx, map[string]interface{}{"request": "accept"}, &answer)
	return err
}

// SetMedia toggles sending audio and video within a call.
func (p *Plugin) SetMedia(ctx context.Context, audio, video bool) error {
	_, err := p.request(ctx, map[string]interface{}{
		"request": "set",
		"audio":   audio,
		"video":   video,
	}, nil)
	return err
}

// HangupCall ends the current call. Unlike Handle.Hangup, this is a request to the plugin and also ends the peer's
// side of the call.
func (p *Plugin) HangupCall(ctx context.Context) error {
	_, err := p.request(ctx, map[string]interface{}{"request": "hangup"}, nil)
	return err
}
