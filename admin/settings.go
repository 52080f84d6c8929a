// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package admin

import (
	"context"

	"github.com/josephlim94/janus-client-go/protocol"
)

func (c *Client) set(ctx context.Context, kind, field string, value interface{}) error {
	_, err := c.success(ctx, protocol.NewRequest(kind).With(field, value))
	return err
}

// SetSessionTimeout changes the session timeout in seconds; zero disables it.
func (c *Client) SetSessionTimeout(ctx context.Context, seconds uint) error {
	return c.set(ctx, "set_session_timeout", "timeout", seconds)
}

// SetLogLevel changes the log level, between 0 (none) and 7 (huge).
func (c *Client) SetLogLevel(ctx context.Context, level int) error {
	return c.set(ctx, "set_log_level", "level", level)
}

func (c *Client) SetLogTimestamps(ctx context.Context, enabled bool) error {
	return c.set(ctx, "set_log_timestamps", "timestamps", enabled)
}

func (c *Client) SetLogColors(ctx context.Context, enabled bool) error {
	return c.set(ctx, "set_log_colors", "colors", enabled)
}

func (c *Client) SetLockingDebug(ctx context.Context, enabled bool) error {
	return c.set(ctx, "set_locking_debug", "debug", enabled)
}

func (c *Client) SetRefcountDebug(ctx context.Context, enabled bool) error {
	return c.set(ctx, "set_refcount_debug", "debug", enabled)
}

func (c *Client) SetLibniceDebug(ctx context.Context, enabled bool) error {
	return c.set(ctx, "set_libnice_debug", "debug", enabled)
}

// SetMinNackQueue changes the minimum NACK queue size in milliseconds.
func (c *Client) SetMinNackQueue(ctx context.Context, millis uint) error {
	return c.set(ctx, "set_min_nack_queue", "min_nack_queue", millis)
}

// SetNoMediaTimer changes the seconds without media before a PeerConnection is reported down.
func (c *Client) SetNoMediaTimer(ctx context.Context, seconds uint) error {
	return c.set(ctx, "set_no_media_timer", "no_media_timer", seconds)
}

// SetSlowlinkThreshold changes the number of lost packets per second triggering a slowlink event.
func (c *Client) SetSlowlinkThreshold(ctx context.Context, packets uint) error {
	return c.set(ctx, "set_slowlink_threshold", "slowlink_threshold", packets)
}
