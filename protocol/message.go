// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Field names of the Janus envelope.
const (
	FieldJanus       = "janus"
	FieldTransaction = "transaction"
	FieldSessionID   = "session_id"
	FieldHandleID    = "handle_id"
	FieldSender      = "sender"
	FieldAPISecret   = "apisecret"
	FieldToken       = "token"
	FieldAdminSecret = "admin_secret"
	FieldData        = "data"
	FieldError       = "error"
	FieldPlugin      = "plugin"
	FieldPluginData  = "plugindata"
	FieldBody        = "body"
	FieldJSEP        = "jsep"
	FieldCandidate   = "candidate"
	FieldCandidates  = "candidates"
)

// Request kinds, i.e., values of the "janus" field sent by a client.
const (
	KindCreate    = "create"
	KindAttach    = "attach"
	KindMessage   = "message"
	KindTrickle   = "trickle"
	KindDetach    = "detach"
	KindDestroy   = "destroy"
	KindKeepalive = "keepalive"
	KindPing      = "ping"
	KindInfo      = "info"
	KindHangup    = "hangup"
)

// Reply and event kinds, i.e., values of the "janus" field sent by the gateway.
const (
	KindSuccess    = "success"
	KindError      = "error"
	KindAck        = "ack"
	KindEvent      = "event"
	KindPong       = "pong"
	KindServerInfo = "server_info"
	KindWebRTCUp   = "webrtcup"
	KindMedia      = "media"
	KindSlowLink   = "slowlink"
	KindDetached   = "detached"
	KindTimeout    = "timeout"
)

// Message is a single JSON object exchanged with the gateway.
//
// Nested objects are plain map[string]interface{} values; numbers are json.Number after Decode.
type Message map[string]interface{}

// Decode a single JSON object.
func Decode(data []byte) (msg Message, err error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err = dec.Decode(&msg); err != nil {
		return nil, fmt.Errorf("decoding message: %w", err)
	} else if msg == nil {
		return nil, fmt.Errorf("decoding message: not a JSON object")
	}
	return
}

// DecodeFrames decodes either a single JSON object or an array of objects, as returned by a long poll with maxev > 1.
func DecodeFrames(data []byte) ([]Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		msg, err := Decode(trimmed)
		if err != nil {
			return nil, err
		}
		return []Message{msg}, nil
	}

	var msgs []Message
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&msgs); err != nil {
		return nil, fmt.Errorf("decoding message array: %w", err)
	}
	return msgs, nil
}

// Encode this Message as JSON.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Copy returns a shallow copy of this Message.
func (m Message) Copy() Message {
	c := make(Message, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Janus returns the message's kind, the "janus" field.
func (m Message) Janus() string {
	return m.GetString(FieldJanus)
}

// Transaction returns the correlation token or an empty string.
func (m Message) Transaction() string {
	return m.GetString(FieldTransaction)
}

// SessionID returns the "session_id" field, if present.
func (m Message) SessionID() (uint64, bool) {
	return m.Uint64(FieldSessionID)
}

// Sender returns the handle identifier of the "sender" field, if present.
func (m Message) Sender() (uint64, bool) {
	return m.Uint64(FieldSender)
}

// GetString returns the string value for key or an empty string.
func (m Message) GetString(key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// Uint64 returns the unsigned integer value for key. Both json.Number and Go numeric types are accepted.
func (m Message) Uint64(key string) (uint64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	return ToUint64(v)
}

// Map returns the nested object for key.
func (m Message) Map(key string) (Message, bool) {
	return AsMap(m[key])
}

// Data returns the nested "data" object.
func (m Message) Data() (Message, bool) {
	return m.Map(FieldData)
}

// PluginData returns the plugin's payload of an event, plugindata.data.
func (m Message) PluginData() (Message, bool) {
	pd, ok := m.Map(FieldPluginData)
	if !ok {
		return nil, false
	}
	return pd.Map(FieldData)
}

// AsMap converts a nested JSON object into a Message.
func AsMap(v interface{}) (Message, bool) {
	switch v := v.(type) {
	case Message:
		return v, v != nil
	case map[string]interface{}:
		return v, v != nil
	case Subset:
		return Message(v), v != nil
	default:
		return nil, false
	}
}

// ToUint64 converts a decoded JSON number or a Go integer to an uint64.
func ToUint64(v interface{}) (uint64, bool) {
	switch n := v.(type) {
	case json.Number:
		if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return u, true
		}
		if f, err := n.Float64(); err == nil && f >= 0 && f == math.Trunc(f) && f < math.MaxUint64 {
			return uint64(f), true
		}
		return 0, false
	case float64:
		if n >= 0 && n == math.Trunc(n) && n < math.MaxUint64 {
			return uint64(n), true
		}
		return 0, false
	case int:
		return uint64(n), n >= 0
	case int64:
		return uint64(n), n >= 0
	case int32:
		return uint64(n), n >= 0
	case uint:
		return uint64(n), true
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	default:
		return 0, false
	}
}
