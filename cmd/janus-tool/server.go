// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pion/webrtc/v4"
	log "github.com/sirupsen/logrus"

	"github.com/josephlim94/janus-client-go/jsep"
	"github.com/josephlim94/janus-client-go/plugin/echotest"
	"github.com/josephlim94/janus-client-go/protocol"
	"github.com/josephlim94/janus-client-go/session"
	"github.com/josephlim94/janus-client-go/transport"
)

var output io.Writer = os.Stdout

func newTransport(conf serverConf) (*transport.Transport, error) {
	if conf.URL == "" {
		return nil, fmt.Errorf("server.url is not configured")
	}
	return transport.New(conf.URL, conf.transportOptions())
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(output, string(data))
	return err
}

// ping the Janus API and print the round trip time.
func ping(ctx context.Context, conf serverConf) error {
	t, err := newTransport(conf)
	if err != nil {
		return err
	}

	if err := t.Connect(ctx); err != nil {
		return err
	}
	defer t.Disconnect()

	start := time.Now()

	tx, err := t.Send(ctx, protocol.NewRequest(protocol.KindPing), 0, 0)
	if err != nil {
		return err
	}
	defer tx.Close()

	reply, err := tx.Get(ctx, protocol.Kind(protocol.KindPong, protocol.KindError))
	if err != nil {
		return err
	}
	if err := protocol.ErrorFromMessage(reply); err != nil {
		return err
	}

	_, err = fmt.Fprintf(output, "pong from %s in %v\n", t.BaseURL(), time.Since(start))
	return err
}

// info prints the gateway's server info.
func info(ctx context.Context, conf serverConf) error {
	t, err := newTransport(conf)
	if err != nil {
		return err
	}

	if err := t.Connect(ctx); err != nil {
		return err
	}
	defer t.Disconnect()

	serverInfo, err := t.Info(ctx)
	if err != nil {
		return err
	}
	return printJSON(serverInfo)
}

// echo negotiates a data channel with the EchoTest plugin.
func echo(ctx context.Context, conf serverConf) (err error) {
	t, err := newTransport(conf)
	if err != nil {
		return
	}

	s := session.New(t, conf.sessionOptions())
	defer func() {
		if destroyErr := s.Destroy(context.Background()); destroyErr != nil {
			err = multierror.Append(err, destroyErr)
		}
	}()

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return
	}
	defer pc.Close()

	if _, err = pc.CreateDataChannel("echo", nil); err != nil {
		return
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return
	}

	p := echotest.New()
	if err = p.Attach(ctx, s); err != nil {
		return
	}

	log.WithFields(log.Fields{
		"session": s.ID(),
		"handle":  p.ID(),
	}).Info("Attached EchoTest plugin")

	answer, err := p.Start(ctx, echotest.Settings{}, jsep.FromSessionDescription(offer))
	if err != nil {
		return
	}

	if err = p.Destroy(ctx); err != nil {
		return
	}

	_, err = fmt.Fprintf(output, "session %d received an answer of %d bytes\n", s.ID(), len(answer.SDP))
	return
}
