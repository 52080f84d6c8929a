// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"fmt"

	"github.com/josephlim94/janus-client-go/protocol"
)

var (
	// ErrUnsupportedScheme is returned for base URLs neither starting with ws(s):// nor with http(s)://.
	ErrUnsupportedScheme = fmt.Errorf("%w: unsupported URL scheme", protocol.ErrState)

	// ErrNotConnected is returned when sending on a Transport before Connect.
	ErrNotConnected = fmt.Errorf("%w: transport is not connected", protocol.ErrState)

	// ErrNotReceiving is returned by the WebSocket binding when its reader has stopped or not yet started.
	ErrNotReceiving = fmt.Errorf("%w: websocket is not receiving", protocol.ErrState)
)
