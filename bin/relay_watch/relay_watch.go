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
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/Governs-AI/governsai-console-sub002/client"
	"github.com/Governs-AI/governsai-console-sub002/common"
	"github.com/apex/log"
	apexJSON "github.com/apex/log/handlers/json"
	"github.com/urfave/cli/v2"
)

type cmdArgs struct {
	TargetURL    string
	APIKey       string
	SessionToken string
	TenantID     string
	Channels     cli.StringSlice
	JSONLog      bool
	LogLevel     string `validate:"required,oneof=debug info warn error"`
}

var args cmdArgs

// relay_watch tails relay channels from the command line and auto-ACKs
// everything it prints
func main() {
	app := &cli.App{
		Usage: "Tail decision events from a relay node",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "target-url",
				Usage:       "Relay websocket endpoint",
				Aliases:     []string{"u"},
				EnvVars:     []string{"RELAY_TARGET_URL"},
				Value:       "ws://127.0.0.1:3000/v1/stream",
				DefaultText: "ws://127.0.0.1:3000/v1/stream",
				Destination: &args.TargetURL,
				Required:    false,
			},
			&cli.StringFlag{
				Name:        "api-key",
				Usage:       "API key credential",
				Aliases:     []string{"k"},
				EnvVars:     []string{"RELAY_API_KEY"},
				Destination: &args.APIKey,
				Required:    false,
			},
			&cli.StringFlag{
				Name:        "session-token",
				Usage:       "Console session token credential",
				Aliases:     []string{"t"},
				EnvVars:     []string{"RELAY_SESSION_TOKEN"},
				Destination: &args.SessionToken,
				Required:    false,
			},
			&cli.StringFlag{
				Name:        "tenant",
				Usage:       "Expected tenant ID of the credential",
				EnvVars:     []string{"RELAY_TENANT"},
				Destination: &args.TenantID,
				Required:    false,
			},
			&cli.StringSliceFlag{
				Name:        "channel",
				Usage:       "Channel to subscribe to, repeatable",
				Aliases:     []string{"C"},
				EnvVars:     []string{"RELAY_CHANNELS"},
				Destination: &args.Channels,
				Required:    true,
			},
			// LOGGING
			&cli.BoolFlag{
				Name:        "json-log",
				Usage:       "Whether to log in JSON format",
				Aliases:     []string{"j"},
				EnvVars:     []string{"LOG_AS_JSON"},
				Value:       false,
				DefaultText: "false",
				Destination: &args.JSONLog,
				Required:    false,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "Logging level: [debug info warn error]",
				Aliases:     []string{"l"},
				EnvVars:     []string{"LOG_LEVEL"},
				Value:       "warn",
				DefaultText: "warn",
				Destination: &args.LogLevel,
				Required:    false,
			},
		},
		Action: watchRelay,
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("Program shutdown")
	}
}

func setupLogging() {
	if args.JSONLog {
		log.SetHandler(apexJSON.New(os.Stderr))
	}
	switch args.LogLevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.ErrorLevel)
	}
}

func watchRelay(c *cli.Context) error {
	setupLogging()

	runTimeContext, rtCancel := context.WithCancel(context.Background())
	defer rtCancel()
	wg := &sync.WaitGroup{}
	defer wg.Wait()

	var relayClient client.RelayClient
	onEvent := func(ctxt context.Context, event common.Event) {
		fmt.Printf("[%s] %s %s\n", event.Timestamp.Format(time.RFC3339), event.String(), event.Data)
		if err := relayClient.ACK(ctxt, event.Channel, event.Cursor); err != nil {
			log.WithError(err).Errorf("Unable to ACK %s", event.String())
		}
	}
	onError := func(_ context.Context, code common.ErrorCode, detail string) {
		fmt.Fprintf(os.Stderr, "ERROR %s: %s\n", code, detail)
	}

	relayClient, err := client.GetRelayClient(
		runTimeContext,
		client.RelayClientConfig{
			TargetURL:            args.TargetURL,
			APIKey:               args.APIKey,
			SessionToken:         args.SessionToken,
			TenantID:             args.TenantID,
			Channels:             args.Channels.Value(),
			InitialBackoff:       time.Second,
			MaxBackoff:           time.Second * 30,
			MaxReconnectAttempts: 10,
			PingInterval:         time.Second * 15,
		},
		onEvent,
		onError,
		"relay-watch",
	)
	if err != nil {
		return err
	}
	if err := relayClient.Start(wg); err != nil {
		return err
	}

	cc := make(chan os.Signal, 1)
	signal.Notify(cc, os.Interrupt)
	select {
	case <-cc:
		relayClient.Stop()
	case <-relayClient.Done():
	}
	return relayClient.TerminalError()
}
