// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package janustest

import (
	"fmt"
	"sort"

	"github.com/josephlim94/janus-client-go/protocol"
)

// settingFields maps each set_* admin request to its request field and the reply field echoing the new value.
var settingFields = map[string][2]string{
	"set_session_timeout":    {"timeout", "timeout"},
	"set_log_level":          {"level", "level"},
	"set_log_timestamps":     {"timestamps", "log_timestamps"},
	"set_log_colors":         {"colors", "log_colors"},
	"set_locking_debug":      {"debug", "locking_debug"},
	"set_refcount_debug":     {"debug", "refcount_debug"},
	"set_libnice_debug":      {"debug", "libnice_debug"},
	"set_min_nack_queue":     {"min_nack_queue", "min_nack_queue"},
	"set_no_media_timer":     {"no_media_timer", "no_media_timer"},
	"set_slowlink_threshold": {"slowlink_threshold", "slowlink_threshold"},
}

var adminRequests = map[string]bool{
	"loops_info":     true,
	"get_status":     true,
	"list_tokens":    true,
	"add_token":      true,
	"remove_token":   true,
	"allow_token":    true,
	"disallow_token": true,
	"list_sessions":  true,
	"list_handles":   true,
	"handle_info":    true,
}

func isAdminRequest(kind string) bool {
	_, isSetting := settingFields[kind]
	return isSetting || adminRequests[kind]
}

func stringList(v interface{}) (list []string) {
	items, _ := v.([]interface{})
	for _, item := range items {
		if s, ok := item.(string); ok {
			list = append(list, s)
		}
	}
	return
}

func toInterfaces(list []string) []interface{} {
	items := make([]interface{}, len(list))
	for i, s := range list {
		items[i] = s
	}
	return items
}

func (g *Gateway) handleAdmin(req protocol.Message) exchange {
	single := func(msg protocol.Message) exchange {
		return exchange{replies: []protocol.Message{msg}}
	}

	if g.AdminSecret != "" && req.GetString(protocol.FieldAdminSecret) != g.AdminSecret {
		return single(errorReply(req, ErrorUnauthorized, "Unauthorized request (wrong or missing secret/token)"))
	}

	kind := req.Janus()

	if fields, ok := settingFields[kind]; ok {
		value, exists := req[fields[0]]
		if !exists {
			return single(errorReply(req, ErrorInvalidJSON, fmt.Sprintf("Missing mandatory element (%s)", fields[0])))
		}
		return single(reply(req, protocol.KindSuccess, protocol.Message{fields[1]: value}))
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	switch kind {
	case "loops_info":
		return single(reply(req, protocol.KindSuccess, protocol.Message{"loops": []interface{}{}}))

	case "get_status":
		return single(reply(req, protocol.KindSuccess, protocol.Message{"status": map[string]interface{}{
			"token_auth":      len(g.tokens) > 0,
			"session_timeout": 60,
			"log_level":       4,
			"locking_debug":   false,
		}}))

	case "list_tokens":
		names := make([]string, 0, len(g.tokens))
		for token := range g.tokens {
			names = append(names, token)
		}
		sort.Strings(names)

		tokens := make([]interface{}, 0, len(names))
		for _, token := range names {
			tokens = append(tokens, map[string]interface{}{
				"token":           token,
				"allowed_plugins": toInterfaces(g.tokens[token]),
			})
		}
		return single(reply(req, protocol.KindSuccess, protocol.Message{
			protocol.FieldData: map[string]interface{}{"tokens": tokens}}))

	case "add_token", "allow_token", "disallow_token":
		token := req.GetString(protocol.FieldToken)
		if token == "" {
			return single(errorReply(req, ErrorInvalidJSON, "Missing mandatory element (token)"))
		}

		plugins := stringList(req["plugins"])
		current, exists := g.tokens[token]
		if kind != "add_token" && !exists {
			return single(errorReply(req, ErrorUnauthorized, "Token "+token+" not found"))
		}

		switch kind {
		case "add_token", "allow_token":
			current = mergePlugins(current, plugins)
		case "disallow_token":
			current = removePlugins(current, plugins)
		}
		g.tokens[token] = current

		return single(reply(req, protocol.KindSuccess, protocol.Message{
			protocol.FieldData: map[string]interface{}{"plugins": toInterfaces(current)}}))

	case "remove_token":
		token := req.GetString(protocol.FieldToken)
		if _, exists := g.tokens[token]; !exists {
			return single(errorReply(req, ErrorUnauthorized, "Token "+token+" not found"))
		}
		delete(g.tokens, token)
		return single(reply(req, protocol.KindSuccess, nil))

	case "list_sessions":
		ids := make([]interface{}, 0, len(g.sessions))
		for _, id := range sortedKeys(g.sessions) {
			ids = append(ids, id)
		}
		return single(reply(req, protocol.KindSuccess, protocol.Message{"sessions": ids}))

	case "list_handles", "handle_info":
		sessionID, _ := req.SessionID()
		s, ok := g.sessions[sessionID]
		if !ok {
			return single(errorReply(req, ErrorNoSuchSession, fmt.Sprintf("No such session %d", sessionID)))
		}

		if kind == "list_handles" {
			ids := make([]interface{}, 0, len(s.handles))
			for _, id := range sortedKeys(s.handles) {
				ids = append(ids, id)
			}
			return single(reply(req, protocol.KindSuccess, protocol.Message{"handles": ids}))
		}

		handleID, _ := req.Uint64(protocol.FieldHandleID)
		plugin, ok := s.handles[handleID]
		if !ok {
			return single(errorReply(req, ErrorNoSuchHandle, fmt.Sprintf("No such handle %d in session %d", handleID, sessionID)))
		}
		return single(reply(req, protocol.KindSuccess, protocol.Message{
			protocol.FieldHandleID: handleID,
			"info": map[string]interface{}{
				"session_id": sessionID,
				"handle_id":  handleID,
				"plugin":     plugin,
			},
		}))

	default:
		return single(errorReply(req, ErrorUnknownReq, fmt.Sprintf("Unknown request '%s'", kind)))
	}
}

func sortedKeys[V any](m map[uint64]V) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func mergePlugins(current, add []string) []string {
	for _, plugin := range add {
		found := false
		for _, c := range current {
			if c == plugin {
				found = true
				break
			}
		}
		if !found {
			current = append(current, plugin)
		}
	}
	return current
}

func removePlugins(current, remove []string) []string {
	kept := make([]string, 0, len(current))
	for _, c := range current {
		drop := false
		for _, r := range remove {
			if c == r {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, c)
		}
	}
	return kept
}
