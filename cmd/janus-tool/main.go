// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

// commandTimeout bounds every command.
const commandTimeout = 30 * time.Second

var errUsage = errors.New("invalid usage")

// printUsage of janus-tool and exit with an error code afterwards.
func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, "Usage of %s configuration.toml ping|info|echo|sessions|tokens|add-token|remove-token:\n\n", os.Args[0])

	_, _ = fmt.Fprintf(os.Stderr, "%s configuration.toml ping\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Pings the gateway's Janus API.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s configuration.toml info\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Prints the gateway's server info.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s configuration.toml echo\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Creates a session, negotiates a data channel with the EchoTest plugin and\n")
	_, _ = fmt.Fprintf(os.Stderr, "  destroys everything again.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s configuration.toml sessions\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Lists all sessions and their handles by the Admin API.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s configuration.toml tokens\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Lists all stored tokens by the Admin API.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s configuration.toml add-token token [plugin...]\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Stores a new token, allowed to use the given or all plugins.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s configuration.toml remove-token token\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Removes a stored token.\n\n")

	os.Exit(1)
}

// run a single command, bounded by commandTimeout. Malformed arguments result in errUsage.
func run(conf tomlConfig, command string, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch command {
	case "ping":
		return ping(ctx, conf.Server)

	case "info":
		return info(ctx, conf.Server)

	case "echo":
		return echo(ctx, conf.Server)

	case "sessions":
		return listSessions(ctx, conf.Admin)

	case "tokens":
		return listTokens(ctx, conf.Admin)

	case "add-token":
		if len(args) < 1 {
			return errUsage
		}
		return addToken(ctx, conf.Admin, args[0], args[1:])

	case "remove-token":
		if len(args) != 1 {
			return errUsage
		}
		return removeToken(ctx, conf.Admin, args[0])

	default:
		return errUsage
	}
}

func main() {
	if len(os.Args) < 3 {
		printUsage()
	}

	conf, err := parseConfig(os.Args[1])
	if err != nil {
		log.WithError(err).Fatal("Failed to parse config")
	}

	if err := run(conf, os.Args[2], os.Args[3:]); errors.Is(err, errUsage) {
		printUsage()
	} else if err != nil {
		log.WithError(err).WithField("command", os.Args[2]).Fatal("Command failed")
	}
}
