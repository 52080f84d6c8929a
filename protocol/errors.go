// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package protocol

import (
	"errors"
	"fmt"
)

// Error categories. Concrete errors of this library wrap exactly one of them.
var (
	// ErrTimeout indicates that no satisfying message arrived in time. The caller may retry or abandon.
	ErrTimeout = errors.New("timed out")

	// ErrState indicates a violated lifecycle precondition, a programmer error.
	ErrState = errors.New("invalid state")

	// ErrTransport indicates an underlying WebSocket or HTTP failure.
	ErrTransport = errors.New("transport failure")
)

// ServerError is the gateway's error payload, carried verbatim.
type ServerError struct {
	Code   uint64
	Reason string

	// Reply is the whole error message.
	Reply Message
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("gateway error %d: %s", e.Code, e.Reason)
}

// ErrorFromMessage returns a *ServerError iff msg is an "error" reply.
func ErrorFromMessage(msg Message) error {
	if msg.Janus() != KindError {
		return nil
	}

	srvErr := &ServerError{Reply: msg}
	if errMap, ok := msg.Map(FieldError); ok {
		srvErr.Code, _ = errMap.Uint64("code")
		srvErr.Reason = errMap.GetString("reason")
	}
	return srvErr
}
