// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/josephlim94/janus-client-go/session"
	"github.com/josephlim94/janus-client-go/transport"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Server  serverConf
	Admin   adminConf
	Logging logConf
}

// serverConf describes the Server-configuration block, the gateway's Janus API.
type serverConf struct {
	URL       string
	APISecret string `toml:"api-secret"`
	Token     string
	Keepalive uint
	MaxEvents int `toml:"max-events"`
}

// adminConf describes the Admin-configuration block, the gateway's Admin/Monitor API.
type adminConf struct {
	URL    string
	Secret string
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

func (conf serverConf) transportOptions() transport.Options {
	return transport.Options{
		APISecret: conf.APISecret,
		Token:     conf.Token,
		MaxEvents: conf.MaxEvents,
	}
}

func (conf serverConf) sessionOptions() session.Options {
	return session.Options{KeepaliveInterval: time.Duration(conf.Keepalive) * time.Second}
}

// validate checks the URLs' schemes.
func (conf tomlConfig) validate() (err error) {
	if conf.Server.URL == "" && conf.Admin.URL == "" {
		err = multierror.Append(err, fmt.Errorf("neither server.url nor admin.url is set"))
	}

	if conf.Server.URL != "" {
		if _, kindErr := transport.KindOf(conf.Server.URL); kindErr != nil {
			err = multierror.Append(err, fmt.Errorf("server.url: %w", kindErr))
		}
	}
	if conf.Admin.URL != "" {
		if _, kindErr := transport.KindOf(conf.Admin.URL); kindErr != nil {
			err = multierror.Append(err, fmt.Errorf("admin.url: %w", kindErr))
		}
	}

	return
}

// setupLogging configures logrus based on the Logging-configuration block.
func setupLogging(conf logConf) {
	if conf.Level != "" {
		if lvl, err := log.ParseLevel(conf.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.Warn("Unknown logging format")
	}
}

// parseConfig reads the TOML configuration, configures the logging and validates the rest.
func parseConfig(filename string) (conf tomlConfig, err error) {
	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		return
	}

	setupLogging(conf.Logging)

	err = conf.validate()
	return
}
