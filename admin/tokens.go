// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package admin

import (
	"context"
	"fmt"

	"github.com/josephlim94/janus-client-go/protocol"
)

// Token is a stored authentication token and the plugins it may use.
type Token struct {
	Token          string
	AllowedPlugins []string
}

func stringList(v interface{}) []string {
	items, _ := v.([]interface{})

	list := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			list = append(list, s)
		}
	}
	return list
}

func pluginList(plugins []string) []interface{} {
	list := make([]interface{}, len(plugins))
	for i, p := range plugins {
		list[i] = p
	}
	return list
}

// ListTokens returns all stored tokens. This requires token based authentication on the gateway.
func (c *Client) ListTokens(ctx context.Context) ([]Token, error) {
	reply, err := c.success(ctx, protocol.NewRequest("list_tokens"))
	if err != nil {
		return nil, err
	}

	data, ok := reply.Data()
	if !ok {
		return nil, fmt.Errorf("%w: list_tokens without data in %v", protocol.ErrTransport, reply)
	}

	items, _ := data["tokens"].([]interface{})
	tokens := make([]Token, 0, len(items))
	for _, item := range items {
		entry, ok := protocol.AsMap(item)
		if !ok {
			continue
		}
		tokens = append(tokens, Token{
			Token:          entry.GetString("token"),
			AllowedPlugins: stringList(entry["allowed_plugins"]),
		})
	}
	return tokens, nil
}

// tokenRequest sends a token request and returns the token's plugins of the reply, if any.
func (c *Client) tokenRequest(ctx context.Context, kind, token string, plugins []string) ([]string, error) {
	request := protocol.NewRequest(kind).With(protocol.FieldToken, token)
	if len(plugins) > 0 {
		request = request.With("plugins", pluginList(plugins))
	}

	reply, err := c.success(ctx, request)
	if err != nil {
		return nil, err
	}

	data, _ := reply.Data()
	return stringList(data["plugins"]), nil
}

// AddToken stores a new token, allowed to use the given plugins or, if none are given, every plugin.
func (c *Client) AddToken(ctx context.Context, token string, plugins ...string) ([]string, error) {
	return c.tokenRequest(ctx, "add_token", token, plugins)
}

// AllowToken grants a token access to further plugins.
func (c *Client) AllowToken(ctx context.Context, token string, plugins ...string) ([]string, error) {
	return c.tokenRequest(ctx, "allow_token", token, plugins)
}

// DisallowToken revokes a token's access to plugins.
func (c *Client) DisallowToken(ctx context.Context, token string, plugins ...string) ([]string, error) {
	return c.tokenRequest(ctx, "disallow_token", token, plugins)
}

// RemoveToken deletes a token.
func (c *Client) RemoveToken(ctx context.Context, token string) error {
	_, err := c.tokenRequest(ctx, "remove_token", token, nil)
	return err
}
