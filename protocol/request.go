// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package protocol

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// reservedFields are set by the transport and session layers only.
var reservedFields = []string{
	FieldJanus,
	FieldTransaction,
	FieldSessionID,
	FieldHandleID,
	FieldAPISecret,
}

// Request is an outgoing message before it is stamped by the transport.
//
// The correlation token, the API secret and the session and handle identifiers have no slot on this type. If such a
// key is put into Fields nevertheless, it is dropped with a warning when the Request is turned into a Message. The
// "token" field stays usable, as admin requests name tokens by it; a Transport configured with a token overrides it.
type Request struct {
	// Janus is the mandatory request kind, e.g., KindMessage.
	Janus string

	// Fields are additional top-level fields, e.g., "body" or "jsep".
	Fields map[string]interface{}
}

// NewRequest creates a Request of the given kind.
func NewRequest(kind string) Request {
	return Request{Janus: kind}
}

// With returns a copy of this Request with one additional field.
func (r Request) With(key string, value interface{}) Request {
	fields := make(map[string]interface{}, len(r.Fields)+1)
	for k, v := range r.Fields {
		fields[k] = v
	}
	fields[key] = value

	return Request{Janus: r.Janus, Fields: fields}
}

// Message validates this Request and converts it into a fresh Message, without any reserved field.
func (r Request) Message() (Message, error) {
	if r.Janus == "" {
		return nil, fmt.Errorf("%w: request without a %q field", ErrState, FieldJanus)
	}

	msg := make(Message, len(r.Fields)+1)
	for k, v := range r.Fields {
		msg[k] = v
	}

	for _, field := range reservedFields {
		if v, exists := msg[field]; exists {
			log.WithFields(log.Fields{
				"field": field,
				"value": v,
				"janus": r.Janus,
			}).Warn("Request sets a reserved field, overriding it")
			delete(msg, field)
		}
	}

	msg[FieldJanus] = r.Janus
	return msg, nil
}
