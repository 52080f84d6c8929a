// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/josephlim94/janus-client-go/admin"
	"github.com/josephlim94/janus-client-go/transport"
)

// withAdmin connects an admin.Client for the duration of f.
func withAdmin(ctx context.Context, conf adminConf, f func(c *admin.Client) error) error {
	if conf.URL == "" {
		return fmt.Errorf("admin.url is not configured")
	}

	c, err := admin.New(conf.URL, conf.Secret, transport.Options{})
	if err != nil {
		return err
	}

	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Disconnect()

	return f(c)
}

func listSessions(ctx context.Context, conf adminConf) error {
	return withAdmin(ctx, conf, func(c *admin.Client) error {
		sessions, err := c.ListSessions(ctx)
		if err != nil {
			return err
		}

		for _, sessionID := range sessions {
			handles, err := c.ListHandles(ctx, sessionID)
			if err != nil {
				return err
			}

			if _, err := fmt.Fprintf(output, "%d\n", sessionID); err != nil {
				return err
			}
			for _, handleID := range handles {
				handleInfo, err := c.HandleInfo(ctx, sessionID, handleID)
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintf(output, "  %d %s\n", handleID, handleInfo.GetString("plugin")); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func listTokens(ctx context.Context, conf adminConf) error {
	return withAdmin(ctx, conf, func(c *admin.Client) error {
		tokens, err := c.ListTokens(ctx)
		if err != nil {
			return err
		}

		for _, token := range tokens {
			if _, err := fmt.Fprintf(output, "%s\t%s\n", token.Token, strings.Join(token.AllowedPlugins, ",")); err != nil {
				return err
			}
		}
		return nil
	})
}

func addToken(ctx context.Context, conf adminConf, token string, plugins []string) error {
	return withAdmin(ctx, conf, func(c *admin.Client) error {
		allowed, err := c.AddToken(ctx, token, plugins...)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintf(output, "%s\t%s\n", token, strings.Join(allowed, ","))
		return err
	})
}

func removeToken(ctx context.Context, conf adminConf, token string) error {
	return withAdmin(ctx, conf, func(c *admin.Client) error {
		return c.RemoveToken(ctx, token)
	})
}
