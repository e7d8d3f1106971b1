// Copyright 2024-2025 The GovernsAI Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/Governs-AI/governsai-console-sub002/cmd"
	"github.com/Governs-AI/governsai-console-sub002/common"
	"github.com/Governs-AI/governsai-console-sub002/core"
	"github.com/Governs-AI/governsai-console-sub002/storage"
	"github.com/apex/log"
	apexJSON "github.com/apex/log/handlers/json"
	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
)

type cliArgs struct {
	JSONLog     bool
	LogLevel    string `validate:"required,oneof=debug info warn error"`
	ConfigFile  string `validate:"omitempty,file"`
	StoreDSN    string `validate:"required"`
	TokenSecret string `validate:"required"`
	Hostname    string
}

var cmdArgs cliArgs

var logTags log.Fields

var logLevels = map[string]log.Level{
	"debug": log.DebugLevel,
	"info":  log.InfoLevel,
	"warn":  log.WarnLevel,
	"error": log.ErrorLevel,
}

// @title governsai-console-sub002
// @version v0.1.0
// @description Multi-tenant websocket relay streaming governance decision events

// @host localhost:3000
// @BasePath /
// @query.collection.format multi
func main() {
	hostname, err := os.Hostname()
	if err != nil {
		log.WithError(err).Fatal("Unable to read hostname")
	}
	cmdArgs.Hostname = hostname
	logTags = log.Fields{
		"module":    "main",
		"component": "main",
		"instance":  hostname,
	}

	common.InstallDefaultConfigValues()

	app := &cli.App{
		Version:     "v0.1.0",
		Usage:       "application entrypoint",
		Description: "Multi-tenant websocket relay streaming governance decision events",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json-log",
				Usage:       "Whether to log in JSON format",
				Aliases:     []string{"j"},
				EnvVars:     []string{"LOG_AS_JSON"},
				Destination: &cmdArgs.JSONLog,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "Logging level: [debug info warn error]",
				Aliases:     []string{"l"},
				EnvVars:     []string{"LOG_LEVEL"},
				Value:       "warn",
				Destination: &cmdArgs.LogLevel,
			},
			&cli.StringFlag{
				Name:        "config-file",
				Usage:       "Application config file. Use DEFAULT if not specified.",
				Aliases:     []string{"c"},
				EnvVars:     []string{"CONFIG_FILE"},
				Destination: &cmdArgs.ConfigFile,
			},
			&cli.StringFlag{
				Name:        "store-dsn",
				Usage:       "Postgres connection string for the record store",
				Aliases:     []string{"d"},
				EnvVars:     []string{"RECORD_STORE_DSN"},
				Destination: &cmdArgs.StoreDSN,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "session-token-secret",
				Usage:       "HMAC secret for verifying console session tokens",
				Aliases:     []string{"s"},
				EnvVars:     []string{"SESSION_TOKEN_SECRET"},
				Destination: &cmdArgs.TokenSecret,
				Required:    true,
			},
		},
		Commands: []*cli.Command{
			{
				Name:        "relay",
				Usage:       "Run the decision stream relay server",
				Description: "Serves the websocket relay and its admin REST API",
				Action:      startRelayServer,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).WithFields(logTags).Fatal("Program shutdown")
	}
}

// loadConfiguration validate the CMD args, apply logging settings, and read
// the merged system config out of viper
func loadConfiguration() (*common.SystemConfig, error) {
	checker := validator.New()
	if err := checker.Struct(&cmdArgs); err != nil {
		log.WithError(err).WithFields(logTags).Error("Invalid CMD args")
		return nil, err
	}

	if cmdArgs.JSONLog {
		log.SetHandler(apexJSON.New(os.Stderr))
	}
	if level, ok := logLevels[cmdArgs.LogLevel]; ok {
		log.SetLevel(level)
	} else {
		log.SetLevel(log.ErrorLevel)
	}

	if len(cmdArgs.ConfigFile) > 0 {
		viper.SetConfigFile(cmdArgs.ConfigFile)
		if err := viper.ReadInConfig(); err != nil {
			log.WithError(err).WithFields(logTags).Errorf(
				"Unable to read config file %s", cmdArgs.ConfigFile,
			)
			return nil, err
		}
	}
	var config common.SystemConfig
	if err := viper.Unmarshal(&config); err != nil {
		log.WithError(err).WithFields(logTags).Errorf(
			"Unable to parse config file %s", cmdArgs.ConfigFile,
		)
		return nil, err
	}
	if pretty, err := json.MarshalIndent(&config, "", "  "); err == nil {
		log.Debugf("Running with config\n%s", pretty)
	}
	if err := checker.Struct(&config); err != nil {
		log.WithError(err).WithFields(logTags).Error("Invalid config file content")
		return nil, err
	}
	return &config, nil
}

// connectNATS define the NATS client. Connection loss past the reconnect
// budget cancels the runtime context to bring the whole process down.
func connectNATS(
	config common.NATSConfig, ctxtCancel context.CancelFunc,
) (core.NatsClient, error) {
	natsParam := core.NATSConnectParams{
		ServerURI:           config.ServerURI,
		ConnectTimeout:      time.Second * time.Duration(config.ConnectTimeout),
		MaxReconnectAttempt: config.Reconnect.MaxAttempts,
		ReconnectWait:       time.Second * time.Duration(config.Reconnect.WaitInterval),
		OnDisconnectCallback: func(_ *nats.Conn, e error) {
			log.WithError(e).WithFields(logTags).Errorf(
				"NATS client disconnected from server %s", config.ServerURI,
			)
		},
		OnReconnectCallback: func(_ *nats.Conn) {
			log.WithFields(logTags).Warnf(
				"NATS client reconnected with server %s", config.ServerURI,
			)
		},
		OnCloseCallback: func(_ *nats.Conn) {
			log.WithFields(logTags).Error("NATS client closed connection")
			ctxtCancel()
		},
	}
	return core.GetNATSClient(natsParam)
}

// watchForShutdownSignal cancel the runtime context on SIGINT. SIGKILL,
// SIGQUIT and SIGTERM are left uncaught.
func watchForShutdownSignal(wg *sync.WaitGroup, ctxtCancel context.CancelFunc) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		interrupts := make(chan os.Signal, 1)
		signal.Notify(interrupts, os.Interrupt)
		<-interrupts
		ctxtCancel()
	}()
}

// ============================================================================
// Relay subcommand

// startRelayServer run the relay server
func startRelayServer(c *cli.Context) error {
	config, err := loadConfiguration()
	if err != nil {
		return err
	}
	if config.Relay == nil {
		return fmt.Errorf("relay server can't start without its configurations")
	}

	wg := &sync.WaitGroup{}
	runTimeContext, rtCancel := context.WithCancel(context.Background())
	defer wg.Wait()
	defer rtCancel()

	natsClient, err := connectNATS(config.NATS, rtCancel)
	if err != nil {
		log.WithError(err).WithFields(logTags).Errorf(
			"Failed to define NATS client with %s", config.NATS.ServerURI,
		)
		return nil
	}

	watchForShutdownSignal(wg, rtCancel)

	storeParam := storage.SQLConnectParams{
		DSN:             cmdArgs.StoreDSN,
		MaxOpenConns:    16,
		MaxIdleConns:    4,
		ConnMaxLifetime: time.Minute * 30,
	}

	return cmd.RunRelayServer(
		runTimeContext,
		config.Relay,
		storeParam,
		cmdArgs.TokenSecret,
		cmdArgs.Hostname,
		&natsClient,
		wg,
	)
}
