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

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Governs-AI/governsai-console-sub002/common"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
)

// EventHandler is the function signature for callback processing a received event
type EventHandler func(ctxt context.Context, event common.Event)

// ErrorFrameHandler is the function signature for callback processing a
// server ERROR frame
type ErrorFrameHandler func(ctxt context.Context, code common.ErrorCode, detail string)

// RelayClientConfig connection parameters for one relay client
type RelayClientConfig struct {
	// TargetURL the relay websocket endpoint, ws:// or wss://
	TargetURL string `validate:"required,uri"`
	// APIKey API key credential, mutually exclusive with SessionToken
	APIKey string
	// SessionToken console session token credential
	SessionToken string
	// TenantID optional expected tenant of the credential
	TenantID string
	// Channels the channels to subscribe to after connecting
	Channels []string `validate:"required,min=1"`
	// InitialBackoff first reconnect delay
	InitialBackoff time.Duration `validate:"required"`
	// MaxBackoff reconnect delay ceiling
	MaxBackoff time.Duration `validate:"required"`
	// MaxReconnectAttempts consecutive failed dials before giving up
	MaxReconnectAttempts int `validate:"required,gte=1"`
	// PingInterval how often the client sends PING frames
	PingInterval time.Duration `validate:"required"`
}

// RelayClient reconnecting client for the relay wire protocol. On reconnect
// it resubscribes with the last acknowledged cursor per channel and drops
// redelivered events at or below that cursor, so the handler observes each
// event once even though delivery is at-least-once.
type RelayClient interface {
	// Start connect and begin processing events
	Start(wg *sync.WaitGroup) error
	// ACK acknowledge processing up to a cursor on a channel
	ACK(ctxt context.Context, channel, cursor string) error
	// Done closed when the client has terminally stopped
	Done() <-chan struct{}
	// TerminalError the error which stopped the client, nil on clean stop
	TerminalError() error
	// Stop disconnect and stop reconnecting
	Stop()
}

// relayClientImpl implements RelayClient
type relayClientImpl struct {
	common.Component
	config    RelayClientConfig
	onEvent   EventHandler
	onError   ErrorFrameHandler
	dialer    *websocket.Dialer
	started   bool
	startLock sync.Mutex

	connLock sync.Mutex
	conn     *websocket.Conn

	cursorLock sync.Mutex
	cursors    map[string]string

	done        chan struct{}
	terminalErr error

	ctxt          context.Context
	contextCancel context.CancelFunc
}

// GetRelayClient define a new relay client
func GetRelayClient(
	rootCtxt context.Context,
	config RelayClientConfig,
	onEvent EventHandler,
	onError ErrorFrameHandler,
	instance string,
) (RelayClient, error) {
	logTags := log.Fields{
		"module":    "client",
		"component": "relay-client",
		"instance":  instance,
	}
	validate := validator.New()
	if err := validate.Struct(&config); err != nil {
		log.WithError(err).WithFields(logTags).Error("Invalid client config")
		return nil, err
	}
	if onEvent == nil {
		return nil, fmt.Errorf("relay client requires an event handler")
	}
	ctxt, cancel := context.WithCancel(rootCtxt)
	return &relayClientImpl{
		Component:     common.Component{LogTags: logTags},
		config:        config,
		onEvent:       onEvent,
		onError:       onError,
		dialer:        websocket.DefaultDialer,
		cursors:       make(map[string]string),
		done:          make(chan struct{}),
		ctxt:          ctxt,
		contextCancel: cancel,
	}, nil
}

// Start connect and begin processing events
func (c *relayClientImpl) Start(wg *sync.WaitGroup) error {
	c.startLock.Lock()
	defer c.startLock.Unlock()
	if c.started {
		return fmt.Errorf("relay client already started")
	}
	c.started = true
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.runLoop()
	}()
	return nil
}

// Done closed when the client has terminally stopped
func (c *relayClientImpl) Done() <-chan struct{} {
	return c.done
}

// TerminalError the error which stopped the client
func (c *relayClientImpl) TerminalError() error {
	return c.terminalErr
}

// Stop disconnect and stop reconnecting
func (c *relayClientImpl) Stop() {
	c.contextCancel()
	c.closeConn()
}

// dialTarget form the connect URL with the credential attached
func (c *relayClientImpl) dialTarget() (string, http.Header, error) {
	target, err := url.Parse(c.config.TargetURL)
	if err != nil {
		return "", nil, err
	}
	query := target.Query()
	if c.config.TenantID != "" {
		query.Set("tenant", c.config.TenantID)
	}
	if c.config.APIKey != "" {
		query.Set("api_key", c.config.APIKey)
	}
	target.RawQuery = query.Encode()
	header := http.Header{}
	if c.config.APIKey == "" && c.config.SessionToken != "" {
		header.Set("Authorization", fmt.Sprintf("Bearer %s", c.config.SessionToken))
	}
	return target.String(), header, nil
}

// runLoop dial, process, and reconnect with exponential backoff until the
// attempt cap is reached or the client is stopped
func (c *relayClientImpl) runLoop() {
	defer close(c.done)
	backoff := c.config.InitialBackoff
	attempts := 0
	for {
		if c.ctxt.Err() != nil {
			return
		}
		target, header, err := c.dialTarget()
		if err != nil {
			c.terminalErr = err
			log.WithError(err).WithFields(c.LogTags).Error("Invalid relay target URL")
			return
		}
		conn, _, err := c.dialer.DialContext(c.ctxt, target, header)
		if err != nil {
			attempts++
			if attempts >= c.config.MaxReconnectAttempts {
				c.terminalErr = fmt.Errorf(
					"giving up after %d failed connection attempts: %w", attempts, err,
				)
				log.WithError(c.terminalErr).WithFields(c.LogTags).Error("Relay client stopped")
				return
			}
			log.WithError(err).WithFields(c.LogTags).Warnf(
				"Connection attempt %d failed, retrying in %s", attempts, backoff,
			)
			select {
			case <-c.ctxt.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.config.MaxBackoff {
				backoff = c.config.MaxBackoff
			}
			continue
		}
		// Connected
		attempts = 0
		backoff = c.config.InitialBackoff
		c.setConn(conn)
		if err := c.subscribe(); err != nil {
			log.WithError(err).WithFields(c.LogTags).Error("Subscribe after connect failed")
			c.closeConn()
			continue
		}
		c.readLoop(conn)
		c.closeConn()
	}
}

func (c *relayClientImpl) setConn(conn *websocket.Conn) {
	c.connLock.Lock()
	defer c.connLock.Unlock()
	c.conn = conn
}

func (c *relayClientImpl) closeConn() {
	c.connLock.Lock()
	defer c.connLock.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// writeMessage serialize and send one client message. gorilla websocket
// permits only one concurrent writer.
func (c *relayClientImpl) writeMessage(msg common.ClientMessage) error {
	c.connLock.Lock()
	defer c.connLock.Unlock()
	if c.conn == nil {
		return fmt.Errorf("relay client not connected")
	}
	serialized, err := json.Marshal(&msg)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, serialized)
}

// subscribe send SUB carrying the last acknowledged cursor per channel
func (c *relayClientImpl) subscribe() error {
	c.cursorLock.Lock()
	since := make(map[string]string, len(c.cursors))
	for channel, cursor := range c.cursors {
		since[channel] = cursor
	}
	c.cursorLock.Unlock()
	log.WithFields(c.LogTags).Infof(
		"Subscribing to %d channels, %d with replay cursors", len(c.config.Channels), len(since),
	)
	return c.writeMessage(common.ClientMessage{
		Type:     common.ClientMsgSubscribe,
		Channels: c.config.Channels,
		Since:    since,
	})
}

// ACK acknowledge processing up to a cursor on a channel
func (c *relayClientImpl) ACK(ctxt context.Context, channel, cursor string) error {
	if err := c.writeMessage(common.ClientMessage{
		Type: common.ClientMsgACK, Channel: channel, Cursor: cursor,
	}); err != nil {
		return err
	}
	c.recordCursor(channel, cursor)
	return nil
}

// recordCursor advance the tracked cursor for a channel
func (c *relayClientImpl) recordCursor(channel, cursor string) {
	c.cursorLock.Lock()
	defer c.cursorLock.Unlock()
	if existing, ok := c.cursors[channel]; ok {
		if common.CompareCursors(cursor, existing) <= 0 {
			return
		}
	}
	c.cursors[channel] = cursor
}

// seenCursor whether the cursor is at or below the tracked position
func (c *relayClientImpl) seenCursor(channel, cursor string) bool {
	c.cursorLock.Lock()
	defer c.cursorLock.Unlock()
	existing, ok := c.cursors[channel]
	if !ok {
		return false
	}
	return common.CompareCursors(cursor, existing) <= 0
}

// readLoop process server messages until the connection fails
func (c *relayClientImpl) readLoop(conn *websocket.Conn) {
	pingTicker := time.NewTicker(c.config.PingInterval)
	defer pingTicker.Stop()
	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		for {
			select {
			case <-pingDone:
				return
			case <-c.ctxt.Done():
				return
			case <-pingTicker.C:
				if err := c.writeMessage(common.ClientMessage{
					Type: common.ClientMsgPing,
				}); err != nil {
					log.WithError(err).WithFields(c.LogTags).Debug("PING send failed")
				}
			}
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if c.ctxt.Err() == nil {
				log.WithError(err).WithFields(c.LogTags).Warn("Relay connection lost")
			}
			return
		}
		var msg common.ServerMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.WithError(err).WithFields(c.LogTags).Errorf(
				"Unable to parse server message: %s", payload,
			)
			continue
		}
		c.processServerMessage(msg)
	}
}

// processServerMessage handle one parsed server message
func (c *relayClientImpl) processServerMessage(msg common.ServerMessage) {
	switch msg.Type {
	case common.ServerMsgEvent:
		// Redeliveries at or below the acknowledged cursor are dropped
		if c.seenCursor(msg.Channel, msg.Cursor) {
			log.WithFields(c.LogTags).Debugf(
				"Dropping duplicate event %s@%s", msg.Channel, msg.Cursor,
			)
			return
		}
		event := common.Event{
			Channel: msg.Channel,
			Cursor:  msg.Cursor,
			Data:    msg.Data,
		}
		if msg.Timestamp != nil {
			event.Timestamp = *msg.Timestamp
		}
		c.onEvent(c.ctxt, event)
	case common.ServerMsgError:
		var detail string
		if len(msg.Data) > 0 {
			_ = json.Unmarshal(msg.Data, &detail)
		}
		log.WithFields(c.LogTags).Warnf("Relay reported %s: %s", msg.Code, detail)
		if c.onError != nil {
			c.onError(c.ctxt, msg.Code, detail)
		}
	case common.ServerMsgSubSuccess:
		log.WithFields(c.LogTags).Infof("Subscribed to %v", msg.Channels)
	case common.ServerMsgUnsubSuccess:
		log.WithFields(c.LogTags).Infof("Unsubscribed from %v", msg.Channels)
	case common.ServerMsgHeartbeat:
		// Server liveness only
	}
}
