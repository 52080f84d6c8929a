// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package jsep carries WebRTC session descriptions and ICE candidates through the Janus signaling envelope.
//
// The payloads are passed through untouched; SDP is never parsed here. Conversions from and to pion's WebRTC types
// exist for callers driving a peer connection.
package jsep

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/josephlim94/janus-client-go/protocol"
)

// Session description types used by Janus.
const (
	TypeOffer  = "offer"
	TypeAnswer = "answer"
)

// JSEP is a session description as sent in a message's "jsep" field.
type JSEP struct {
	Type string
	SDP  string

	// Trickle announces if candidates will be trickled later. Nil omits the field.
	Trickle *bool
}

// Offer creates an offer JSEP.
func Offer(sdp string) JSEP {
	return JSEP{Type: TypeOffer, SDP: sdp}
}

// Answer creates an answer JSEP.
func Answer(sdp string) JSEP {
	return JSEP{Type: TypeAnswer, SDP: sdp}
}

// FromSessionDescription converts pion's SessionDescription.
func FromSessionDescription(sd webrtc.SessionDescription) JSEP {
	return JSEP{Type: sd.Type.String(), SDP: sd.SDP}
}

// SessionDescription converts into pion's SessionDescription, e.g., for SetRemoteDescription.
func (j JSEP) SessionDescription() (webrtc.SessionDescription, error) {
	sdpType := webrtc.NewSDPType(j.Type)
	if sdpType == webrtc.SDPTypeUnknown {
		return webrtc.SessionDescription{}, fmt.Errorf("unknown session description type %q", j.Type)
	}
	return webrtc.SessionDescription{Type: sdpType, SDP: j.SDP}, nil
}

// Fields renders the "jsep" object.
func (j JSEP) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"type": j.Type,
		"sdp":  j.SDP,
	}
	if j.Trickle != nil {
		fields["trickle"] = *j.Trickle
	}
	return fields
}

// FromMessage extracts the "jsep" field of a message, if there is one.
func FromMessage(msg protocol.Message) (j JSEP, ok bool) {
	fields, ok := msg.Map(protocol.FieldJSEP)
	if !ok {
		return
	}

	j.Type = fields.GetString("type")
	j.SDP = fields.GetString("sdp")
	if trickle, isBool := fields["trickle"].(bool); isBool {
		j.Trickle = &trickle
	}

	ok = j.Type != ""
	return
}
