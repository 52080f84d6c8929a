// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"context"

	"github.com/josephlim94/janus-client-go/protocol"
)

// infoBinding is implemented by bindings able to fetch the server info without the request/reply machinery.
type infoBinding interface {
	info(ctx context.Context) (protocol.Message, error)
}

// Info fetches the gateway's server_info.
//
// The HTTP binding performs a GET on {base}/info, which works even before Connect. The WebSocket binding sends an info
// request and waits for its reply.
func (t *Transport) Info(ctx context.Context) (protocol.Message, error) {
	if ib, ok := t.binding.(infoBinding); ok {
		return ib.info(ctx)
	}

	tx, err := t.Send(ctx, protocol.NewRequest(protocol.KindInfo), 0, 0)
	if err != nil {
		return nil, err
	}
	defer tx.Close()

	reply, err := tx.Get(ctx, protocol.Kind(protocol.KindServerInfo, protocol.KindError))
	if err != nil {
		return nil, err
	}
	return reply, protocol.ErrorFromMessage(reply)
}
