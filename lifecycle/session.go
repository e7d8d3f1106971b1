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

package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Governs-AI/governsai-console-sub002/common"
	"github.com/Governs-AI/governsai-console-sub002/dispatch"
	"github.com/Governs-AI/governsai-console-sub002/registry"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
)

// SessionState is a relay session's position in its lifecycle
type SessionState int

// Session lifecycle states. A session only moves forward; Closed is terminal.
const (
	// SessionConnecting transport established, credential not yet resolved
	SessionConnecting SessionState = iota
	// SessionAuthenticated credential resolved, no active subscriptions
	SessionAuthenticated
	// SessionSubscribed at least one channel subscription was accepted
	SessionSubscribed
	// SessionClosing teardown started, transport being drained
	SessionClosing
	// SessionClosed transport closed and connection deregistered
	SessionClosed
)

// String toString for SessionState
func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "CONNECTING"
	case SessionAuthenticated:
		return "AUTHENTICATED"
	case SessionSubscribed:
		return "SUBSCRIBED"
	case SessionClosing:
		return "CLOSING"
	case SessionClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

// SocketConn the subset of the websocket transport a session drives.
// Satisfied by *websocket.Conn.
type SocketConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Session one live relay connection: the reader and writer loops, the
// heartbeat, and the state machine sitting between the transport and the
// connection registry. Implements common.MessageSink so dispatch can queue
// events onto the session's bounded outbound queue.
type Session interface {
	common.MessageSink
	// ID the connection ID
	ID() string
	// State the session's current lifecycle state
	State() SessionState
	// Start launch the reader, writer, and heartbeat loops
	Start(wg *sync.WaitGroup) error
	// Close tear the session down. Safe to call multiple times; only the
	// first call performs the teardown.
	Close(cause error)
}

// sessionImpl implements Session
type sessionImpl struct {
	common.Component
	id         string
	identity   common.Identity
	socket     SocketConn
	registry   registry.ConnectionRegistry
	dispatcher dispatch.EventDispatcher
	validate   *validator.Validate

	heartbeatInterval time.Duration
	maxSilence        time.Duration
	writeTimeout      time.Duration
	outbound          chan common.ServerMessage

	stateLock sync.Mutex
	state     SessionState

	closeOnce  sync.Once
	closeCause error
	onClosed   func(id string)

	ctxt          context.Context
	contextCancel context.CancelFunc
	wg            *sync.WaitGroup
	heartbeat     common.IntervalTimer
}

// GetSession define a session for one upgraded, authenticated connection.
// The session registers itself with the connection registry under the
// identity's channel allow-list; onClosed fires once after deregistration.
func GetSession(
	rootCtxt context.Context,
	id string,
	identity common.Identity,
	allowedChannels []string,
	socket SocketConn,
	reg registry.ConnectionRegistry,
	dispatcher dispatch.EventDispatcher,
	connCfg common.ConnectionConfig,
	onClosed func(id string),
) (Session, error) {
	logTags := log.Fields{
		"module":    "lifecycle",
		"component": "session",
		"instance":  id,
		"tenant":    identity.TenantID,
	}
	ctxt, cancel := context.WithCancel(rootCtxt)
	session := &sessionImpl{
		Component:         common.Component{LogTags: logTags},
		id:                id,
		identity:          identity,
		socket:            socket,
		registry:          reg,
		dispatcher:        dispatcher,
		validate:          validator.New(),
		heartbeatInterval: time.Second * time.Duration(connCfg.HeartbeatInterval),
		maxSilence: time.Second * time.Duration(
			connCfg.HeartbeatInterval*connCfg.MaxMissedHeartbeats,
		),
		writeTimeout:  time.Millisecond * time.Duration(connCfg.WriteTimeout),
		outbound:      make(chan common.ServerMessage, connCfg.OutboundQueueLen),
		state:         SessionConnecting,
		onClosed:      onClosed,
		ctxt:          ctxt,
		contextCancel: cancel,
	}
	if _, err := reg.Register(id, identity, allowedChannels, session); err != nil {
		cancel()
		log.WithError(err).WithFields(logTags).Error("Unable to register connection")
		return nil, err
	}
	session.setState(SessionAuthenticated)
	return session, nil
}

// ID the connection ID
func (s *sessionImpl) ID() string {
	return s.id
}

// State the session's current lifecycle state
func (s *sessionImpl) State() SessionState {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	return s.state
}

// setState advance the state machine. Backward transitions are ignored.
func (s *sessionImpl) setState(newState SessionState) {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	if newState <= s.state {
		return
	}
	log.WithFields(s.LogTags).Debugf("Session state %s ==> %s", s.state, newState)
	s.state = newState
}

// Send queue one message for transmission
func (s *sessionImpl) Send(ctxt context.Context, msg common.ServerMessage) error {
	select {
	case s.outbound <- msg:
		return nil
	case <-ctxt.Done():
		return common.WrapRelayError(
			common.ErrorCodeConnectionTimeout,
			fmt.Sprintf("connection %s outbound queue full", s.id),
			ctxt.Err(),
		)
	case <-s.ctxt.Done():
		return common.NewRelayError(
			common.ErrorCodeTransportWriteFailure,
			fmt.Sprintf("connection %s already closing", s.id),
		)
	}
}

// Start launch the reader, writer, and heartbeat loops
func (s *sessionImpl) Start(wg *sync.WaitGroup) error {
	s.wg = wg

	heartbeat, err := common.GetIntervalTimerInstance(
		fmt.Sprintf("session-%s-heartbeat", s.id), s.ctxt, wg,
	)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Error("Unable to define heartbeat timer")
		return err
	}
	s.heartbeat = heartbeat
	if err := heartbeat.Start(s.heartbeatInterval, s.onHeartbeat, false); err != nil {
		log.WithError(err).WithFields(s.LogTags).Error("Unable to start heartbeat timer")
		return err
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		s.writerLoop()
	}()
	go func() {
		defer wg.Done()
		s.readerLoop()
	}()
	log.WithFields(s.LogTags).Info("Session started")
	return nil
}

// onHeartbeat emit a server heartbeat and verify client liveness
func (s *sessionImpl) onHeartbeat() error {
	if conn, ok := s.registry.Get(s.id); ok {
		if silence := time.Since(conn.LastSeen()); silence > s.maxSilence {
			s.Close(common.NewRelayError(
				common.ErrorCodeConnectionTimeout,
				fmt.Sprintf("no client traffic for %s", silence),
			))
			return nil
		}
	}
	sendCtxt, cancel := context.WithTimeout(s.ctxt, s.writeTimeout)
	defer cancel()
	if err := s.Send(sendCtxt, common.NewHeartbeatMessage(time.Now().UTC())); err != nil {
		log.WithError(err).WithFields(s.LogTags).Debug("Heartbeat send failed")
	}
	return nil
}

// writerLoop single writer against the transport
func (s *sessionImpl) writerLoop() {
	for {
		select {
		case <-s.ctxt.Done():
			return
		case msg := <-s.outbound:
			serialized, err := json.Marshal(&msg)
			if err != nil {
				log.WithError(err).WithFields(s.LogTags).Errorf(
					"Unable to serialize %s message", msg.Type,
				)
				continue
			}
			if err := s.socket.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
				s.Close(common.WrapRelayError(
					common.ErrorCodeTransportWriteFailure, "set write deadline failed", err,
				))
				return
			}
			if err := s.socket.WriteMessage(websocket.TextMessage, serialized); err != nil {
				s.Close(common.WrapRelayError(
					common.ErrorCodeTransportWriteFailure, "transport write failed", err,
				))
				return
			}
		}
	}
}

// readerLoop receive and process client messages until the transport fails
// or the session closes
func (s *sessionImpl) readerLoop() {
	for {
		if s.ctxt.Err() != nil {
			return
		}
		if err := s.socket.SetReadDeadline(time.Now().Add(s.maxSilence)); err != nil {
			s.Close(common.WrapRelayError(
				common.ErrorCodeTransportWriteFailure, "set read deadline failed", err,
			))
			return
		}
		_, payload, err := s.socket.ReadMessage()
		if err != nil {
			s.Close(common.WrapRelayError(
				common.ErrorCodeConnectionTimeout, "transport read failed", err,
			))
			return
		}
		s.registry.TouchLiveness(s.id, time.Now().UTC())
		var msg common.ClientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.WithError(err).WithFields(s.LogTags).Errorf(
				"Unable to parse client message: %s", payload,
			)
			s.sendError(common.ErrorCodeInternalError, "malformed client message")
			continue
		}
		if err := s.validate.Struct(&msg); err != nil {
			log.WithError(err).WithFields(s.LogTags).Errorf(
				"Invalid client message: %s", payload,
			)
			s.sendError(common.ErrorCodeInternalError, "invalid client message")
			continue
		}
		s.processClientMessage(msg)
	}
}

// processClientMessage handle one parsed client message
func (s *sessionImpl) processClientMessage(msg common.ClientMessage) {
	switch msg.Type {
	case common.ClientMsgSubscribe:
		s.handleSubscribe(msg)
	case common.ClientMsgUnsubscribe:
		s.handleUnsubscribe(msg)
	case common.ClientMsgACK:
		if err := s.registry.RecordACK(s.id, msg.Channel, msg.Cursor); err != nil {
			log.WithError(err).WithFields(s.LogTags).Errorf(
				"Unable to record ACK %s@%s", msg.Channel, msg.Cursor,
			)
		}
	case common.ClientMsgPing:
		// Liveness already touched on read
	}
}

// handleSubscribe process SUB: per-channel accept / reject, replay for
// channels carrying a since-cursor
func (s *sessionImpl) handleSubscribe(msg common.ClientMessage) {
	accepted, rejected, err := s.registry.Subscribe(s.id, msg.Channels)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Error("Subscribe against registry failed")
		s.sendError(common.CodeOfError(err), "subscribe failed")
		return
	}
	if len(rejected) > 0 {
		s.sendError(
			common.ErrorCodeChannelForbidden,
			fmt.Sprintf("channels not permitted: %v", rejected),
		)
	}
	s.sendMessage(common.NewSubChangeMessage(common.ServerMsgSubSuccess, accepted))
	if len(accepted) > 0 {
		s.setState(SessionSubscribed)
	}
	for _, channel := range accepted {
		sinceCursor, ok := msg.Since[channel]
		if !ok {
			continue
		}
		s.replayChannel(channel, sinceCursor)
	}
}

// replayChannel fetch and deliver missed events on one channel
func (s *sessionImpl) replayChannel(channel, sinceCursor string) {
	events, err := s.dispatcher.Replay(s.ctxt, channel, sinceCursor)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf(
			"Replay of %s since %s failed", channel, sinceCursor,
		)
		s.sendError(common.CodeOfError(err), fmt.Sprintf("replay of %s failed", channel))
		return
	}
	log.WithFields(s.LogTags).Debugf(
		"Replaying %d events on %s since %s", len(events), channel, sinceCursor,
	)
	for _, event := range events {
		s.sendMessage(common.NewEventMessage(event))
	}
}

// handleUnsubscribe process UNSUB
func (s *sessionImpl) handleUnsubscribe(msg common.ClientMessage) {
	removed, err := s.registry.Unsubscribe(s.id, msg.Channels)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Error("Unsubscribe against registry failed")
		s.sendError(common.CodeOfError(err), "unsubscribe failed")
		return
	}
	s.sendMessage(common.NewSubChangeMessage(common.ServerMsgUnsubSuccess, removed))
}

// sendMessage queue one server message, bounded by the write timeout
func (s *sessionImpl) sendMessage(msg common.ServerMessage) {
	sendCtxt, cancel := context.WithTimeout(s.ctxt, s.writeTimeout)
	defer cancel()
	if err := s.Send(sendCtxt, msg); err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf("Unable to queue %s message", msg.Type)
	}
}

// sendError queue one ERROR message
func (s *sessionImpl) sendError(code common.ErrorCode, detail string) {
	s.sendMessage(common.NewErrorMessage(code, detail))
}

// Close tear the session down exactly once
func (s *sessionImpl) Close(cause error) {
	s.closeOnce.Do(func() {
		s.closeCause = cause
		s.setState(SessionClosing)
		if cause != nil {
			log.WithError(cause).WithFields(s.LogTags).Info("Closing session")
		} else {
			log.WithFields(s.LogTags).Info("Closing session")
		}
		if s.heartbeat != nil {
			if err := s.heartbeat.Stop(); err != nil {
				log.WithError(err).WithFields(s.LogTags).Error("Unable to stop heartbeat timer")
			}
		}
		s.contextCancel()
		if err := s.socket.Close(); err != nil {
			log.WithError(err).WithFields(s.LogTags).Debug("Transport close failed")
		}
		if err := s.registry.Deregister(s.id); err != nil {
			log.WithError(err).WithFields(s.LogTags).Error("Unable to deregister connection")
		}
		s.setState(SessionClosed)
		if s.onClosed != nil {
			s.onClosed(s.id)
		}
		log.WithFields(s.LogTags).Info("Session closed")
	})
}
