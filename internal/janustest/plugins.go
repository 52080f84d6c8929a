// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package janustest

import (
	"strings"

	"github.com/josephlim94/janus-client-go/protocol"
)

// AnswerSDP is the session description of every simulated answer.
const AnswerSDP = "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=janustest\r\nt=0 0\r\n"

// pluginEvent simulates a plugin's reaction to a message. It returns the plugin's payload and, for an offer, an answer.
func pluginEvent(plugin string, body, jsep protocol.Message) (data, answer protocol.Message) {
	if jsep.GetString("type") == "offer" {
		answer = protocol.Message{"type": "answer", "sdp": AnswerSDP}
	}

	switch plugin {
	case "janus.plugin.videocall":
		data = videoCallEvent(body)

	case "janus.plugin.echotest":
		data = protocol.Message{"echotest": "event", "result": "ok"}

	default:
		// Other plugins echo their body.
		short := plugin[strings.LastIndex(plugin, ".")+1:]
		data = protocol.Message{short: "event", "result": "ok", "echo": map[string]interface{}(body)}
	}

	return
}

func videoCallEvent(body protocol.Message) protocol.Message {
	result := func(fields map[string]interface{}) protocol.Message {
		return protocol.Message{"videocall": "event", "result": fields}
	}
	failure := func(code int, reason string) protocol.Message {
		return protocol.Message{"videocall": "event", "error_code": code, "error": reason}
	}

	switch body.GetString("request") {
	case "list":
		return result(map[string]interface{}{"list": []interface{}{"alice", "bob"}})

	case "register":
		username := body.GetString("username")
		if username == "" {
			return failure(476, "Missing element (username)")
		}
		return result(map[string]interface{}{"event": "registered", "username": username})

	case "call":
		username := body.GetString("username")
		if username != "alice" && username != "bob" {
			return failure(478, "Username '"+username+"' doesn't exist")
		}
		return result(map[string]interface{}{"event": "calling"})

	case "accept":
		return result(map[string]interface{}{"event": "accepted"})

	case "set":
		return result(map[string]interface{}{"event": "set"})

	case "hangup":
		return result(map[string]interface{}{"event": "hangup", "username": "alice", "reason": "We did the hangup"})

	default:
		return failure(470, "Unknown request")
	}
}
