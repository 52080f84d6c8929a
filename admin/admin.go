// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package admin is a client for the Janus Admin/Monitor API.
//
// The Admin API is reached either by WebSocket, negotiating the "janus-admin-protocol", or by HTTP POSTs on the
// admin base path, e.g., http://localhost:7088/admin. Every request except ping and info carries the admin secret.
package admin

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/josephlim94/janus-client-go/protocol"
	"github.com/josephlim94/janus-client-go/transport"
)

// DefaultTimeout bounds each request without a deadline.
const DefaultTimeout = 15 * time.Second

var successReply = protocol.Subset{protocol.FieldJanus: protocol.KindSuccess}

// Client for the Admin/Monitor API of one gateway.
type Client struct {
	transport *transport.Transport
	secret    string

	// Timeout is applied to requests whose context has no deadline. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// New creates a Client for the admin base URL.
//
// The Options' Token is cleared, as admin requests use the "token" field to name their subject. An empty Subprotocol
// defaults to transport.SubprotocolAdmin.
func New(baseURL, secret string, opts transport.Options) (*Client, error) {
	opts.Token = ""
	if opts.Subprotocol == "" {
		opts.Subprotocol = transport.SubprotocolAdmin
	}

	t, err := transport.New(baseURL, opts)
	if err != nil {
		return nil, err
	}

	return &Client{
		transport: t,
		secret:    secret,
		Timeout:   DefaultTimeout,
	}, nil
}

func (c *Client) log() *log.Entry {
	return log.WithField("admin", c.transport.BaseURL())
}

// Transport below this Client.
func (c *Client) Transport() *transport.Transport {
	return c.transport
}

// Connect to the Admin API.
func (c *Client) Connect(ctx context.Context) error {
	return c.transport.Connect(ctx)
}

// Disconnect from the Admin API.
func (c *Client) Disconnect() error {
	return c.transport.Disconnect()
}

// Request sends an arbitrary admin request and waits for a reply matching expected or for an error reply, which is
// returned as *protocol.ServerError. The admin secret is added, except for ping and info. Non-zero identifiers address
// a session or a handle.
func (c *Client) Request(ctx context.Context, request protocol.Request, sessionID, handleID uint64, expected protocol.Matcher) (protocol.Message, error) {
	if c.secret != "" && request.Janus != protocol.KindPing && request.Janus != protocol.KindInfo {
		request = request.With(protocol.FieldAdminSecret, c.secret)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	tx, err := c.transport.Send(ctx, request, sessionID, handleID)
	if err != nil {
		return nil, err
	}
	defer tx.Close()

	reply, err := tx.Get(ctx, protocol.AnyOf(expected, protocol.ErrorShape))
	if err != nil {
		return nil, err
	}
	if err := protocol.ErrorFromMessage(reply); err != nil {
		c.log().WithError(err).WithField("janus", request.Janus).Debug("Admin request failed")
		return reply, err
	}
	return reply, nil
}

func (c *Client) success(ctx context.Context, request protocol.Request) (protocol.Message, error) {
	return c.Request(ctx, request, 0, 0, successReply)
}

// Ping the gateway. No admin secret is required.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Request(ctx, protocol.NewRequest(protocol.KindPing), 0, 0, protocol.Kind(protocol.KindPong))
	return err
}

// Info fetches the gateway's server_info.
func (c *Client) Info(ctx context.Context) (protocol.Message, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	return c.transport.Info(ctx)
}

// LoopsInfo returns the state of the gateway's event loops.
func (c *Client) LoopsInfo(ctx context.Context) ([]interface{}, error) {
	reply, err := c.success(ctx, protocol.NewRequest("loops_info"))
	if err != nil {
		return nil, err
	}

	loops, _ := reply["loops"].([]interface{})
	return loops, nil
}

// GetStatus returns the gateway's runtime settings.
func (c *Client) GetStatus(ctx context.Context) (protocol.Message, error) {
	reply, err := c.success(ctx, protocol.NewRequest("get_status"))
	if err != nil {
		return nil, err
	}

	status, ok := reply.Map("status")
	if !ok {
		return nil, fmt.Errorf("%w: get_status without status in %v", protocol.ErrTransport, reply)
	}
	return status, nil
}

// ListSessions returns the identifiers of all sessions.
func (c *Client) ListSessions(ctx context.Context) ([]uint64, error) {
	reply, err := c.success(ctx, protocol.NewRequest("list_sessions"))
	if err != nil {
		return nil, err
	}
	return identifiers(reply, "sessions")
}

// ListHandles returns the identifiers of a session's handles.
func (c *Client) ListHandles(ctx context.Context, sessionID uint64) ([]uint64, error) {
	reply, err := c.Request(ctx, protocol.NewRequest("list_handles"), sessionID, 0, successReply)
	if err != nil {
		return nil, err
	}
	return identifiers(reply, "handles")
}

// HandleInfo returns the gateway's internal information on a handle.
func (c *Client) HandleInfo(ctx context.Context, sessionID, handleID uint64) (protocol.Message, error) {
	reply, err := c.Request(ctx, protocol.NewRequest("handle_info"), sessionID, handleID, successReply)
	if err != nil {
		return nil, err
	}

	info, ok := reply.Map("info")
	if !ok {
		return nil, fmt.Errorf("%w: handle_info without info in %v", protocol.ErrTransport, reply)
	}
	return info, nil
}

func identifiers(reply protocol.Message, key string) ([]uint64, error) {
	items, ok := reply[key].([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: no %s in %v", protocol.ErrTransport, key, reply)
	}

	ids := make([]uint64, 0, len(items))
	for _, item := range items {
		id, ok := protocol.ToUint64(item)
		if !ok {
			return nil, fmt.Errorf("%w: invalid identifier %v in %s", protocol.ErrTransport, item, key)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
