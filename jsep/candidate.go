// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package jsep

import (
	"github.com/pion/webrtc/v4"

	"github.com/josephlim94/janus-client-go/protocol"
)

// Candidate is one trickled ICE candidate. Janus requires either SDPMid or SDPMLineIndex.
type Candidate struct {
	Candidate     string
	SDPMid        *string
	SDPMLineIndex *uint16
}

// FromICECandidateInit converts pion's ICECandidateInit, as returned by ICECandidate.ToJSON.
func FromICECandidateInit(c webrtc.ICECandidateInit) Candidate {
	return Candidate{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
}

// ICECandidateInit converts into pion's ICECandidateInit, e.g., for AddICECandidate.
func (c Candidate) ICECandidateInit() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
}

// Fields renders the candidate object of a trickle request.
func (c Candidate) Fields() map[string]interface{} {
	fields := map[string]interface{}{"candidate": c.Candidate}
	if c.SDPMid != nil {
		fields["sdpMid"] = *c.SDPMid
	}
	if c.SDPMLineIndex != nil {
		fields["sdpMLineIndex"] = *c.SDPMLineIndex
	}
	return fields
}

// Completed is the candidate object ending a trickle.
func Completed() map[string]interface{} {
	return map[string]interface{}{"completed": true}
}

// CandidateFromMessage extracts the candidate of a "trickle" event sent by the gateway. If the gateway finished
// gathering, completed is true.
func CandidateFromMessage(msg protocol.Message) (c Candidate, completed, ok bool) {
	fields, ok := msg.Map(protocol.FieldCandidate)
	if !ok {
		return
	}

	if done, _ := fields["completed"].(bool); done {
		completed = true
		return
	}

	c.Candidate = fields.GetString("candidate")
	if mid, isString := fields["sdpMid"].(string); isString {
		c.SDPMid = &mid
	}
	if index, isNumber := fields.Uint64("sdpMLineIndex"); isNumber && index <= 0xffff {
		i := uint16(index)
		c.SDPMLineIndex = &i
	}

	ok = c.Candidate != ""
	return
}
