// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package echotest drives the Janus EchoTest plugin, which sends back the media it receives.
package echotest

import (
	"context"
	"fmt"

	"github.com/josephlim94/janus-client-go/jsep"
	"github.com/josephlim94/janus-client-go/plugin"
	"github.com/josephlim94/janus-client-go/protocol"
)

const Name = "janus.plugin.echotest"

// Settings of the echoed media. Nil fields are left unchanged.
type Settings struct {
	Audio   *bool
	Video   *bool
	Bitrate uint
}

func (s Settings) body() map[string]interface{} {
	body := map[string]interface{}{}
	if s.Audio != nil {
		body["audio"] = *s.Audio
	}
	if s.Video != nil {
		body["video"] = *s.Video
	}
	if s.Bitrate > 0 {
		body["bitrate"] = s.Bitrate
	}
	return body
}

type Plugin struct {
	*plugin.Base
}

func New() *Plugin {
	return &Plugin{Base: plugin.New(Name)}
}

// Start the echo with an offer, returning the plugin's answer.
func (p *Plugin) Start(ctx context.Context, settings Settings, offer jsep.JSEP) (jsep.JSEP, error) {
	ev, err := p.Configure(ctx, settings, &offer)
	if err != nil {
		return jsep.JSEP{}, err
	}
	if ev.JSEP == nil || ev.JSEP.Type != jsep.TypeAnswer {
		return jsep.JSEP{}, fmt.Errorf("%w: no answer in %v", protocol.ErrTransport, ev.Message)
	}
	return *ev.JSEP, nil
}

// Configure changes the Settings of a running echo. An offer renegotiates the PeerConnection.
func (p *Plugin) Configure(ctx context.Context, settings Settings, offer *jsep.JSEP) (plugin.Event, error) {
	ev, err := p.Do(ctx, settings.body(), offer)
	if err != nil {
		return ev, err
	}
	if result := ev.Data.GetString("result"); result != "ok" {
		return ev, fmt.Errorf("%w: unexpected echotest result %q", protocol.ErrTransport, result)
	}
	return ev, nil
}
