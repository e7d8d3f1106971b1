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

package common

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Identity the resolved identity behind a relay connection
type Identity struct {
	// TenantID the owning tenant
	TenantID string `json:"tenant_id" validate:"required"`
	// UserID the owning user
	UserID string `json:"user_id" validate:"required"`
	// KeyID the API key the connection authenticated with, empty for session tokens
	KeyID string `json:"key_id,omitempty"`
	// DisplayName display metadata for dashboards
	DisplayName string `json:"display_name,omitempty"`
	// Scopes the resolved permission scopes
	Scopes []string `json:"scopes,omitempty"`
}

// Event a governance decision / usage record to stream. The payload is
// opaque to the relay.
type Event struct {
	// Channel the target channel name
	Channel string `json:"channel" validate:"required"`
	// Cursor the per-channel monotonically increasing position marker
	Cursor string `json:"cursor" validate:"required"`
	// Data the opaque event payload
	Data json.RawMessage `json:"data" validate:"required"`
	// Timestamp when the event was produced
	Timestamp time.Time `json:"t"`
}

// String toString for Event
func (e Event) String() string {
	return fmt.Sprintf("%s@%s", e.Channel, e.Cursor)
}

// ==============================================================================
// Client originated messages

// Client message types
const (
	// ClientMsgSubscribe subscribe to a set of channels
	ClientMsgSubscribe = "SUB"
	// ClientMsgUnsubscribe unsubscribe from a set of channels
	ClientMsgUnsubscribe = "UNSUB"
	// ClientMsgACK advance the recorded cursor for a channel
	ClientMsgACK = "ACK"
	// ClientMsgPing liveness heartbeat
	ClientMsgPing = "PING"
)

// ClientMessage a message received from a connected client
type ClientMessage struct {
	// Type discriminates the message
	Type string `json:"type" validate:"required,oneof=SUB UNSUB ACK PING"`
	// Channels target channels for SUB / UNSUB
	Channels []string `json:"channels,omitempty"`
	// Since optional per-channel replay cursors carried on SUB
	Since map[string]string `json:"since,omitempty"`
	// Channel target channel for ACK
	Channel string `json:"channel,omitempty"`
	// Cursor acknowledged cursor for ACK
	Cursor string `json:"cursor,omitempty"`
}

// ==============================================================================
// Server originated messages

// Server message types
const (
	// ServerMsgEvent a delivered decision / usage event
	ServerMsgEvent = "EVENT"
	// ServerMsgHeartbeat server liveness signal
	ServerMsgHeartbeat = "HEARTBEAT"
	// ServerMsgSubSuccess acknowledges accepted subscriptions
	ServerMsgSubSuccess = "SUB_SUCCESS"
	// ServerMsgUnsubSuccess acknowledges removed subscriptions
	ServerMsgUnsubSuccess = "UNSUB_SUCCESS"
	// ServerMsgError a per-request or connection level failure
	ServerMsgError = "ERROR"
)

// ServerMessage a message sent to a connected client
type ServerMessage struct {
	// Type discriminates the message
	Type string `json:"type" validate:"required"`
	// Channel the source channel of an EVENT
	Channel string `json:"channel,omitempty"`
	// Cursor the cursor of an EVENT
	Cursor string `json:"cursor,omitempty"`
	// Data the opaque payload of an EVENT or ERROR detail
	Data json.RawMessage `json:"data,omitempty"`
	// Timestamp of EVENT and HEARTBEAT messages
	Timestamp *time.Time `json:"t,omitempty"`
	// Channels echoes affected channels on SUB_SUCCESS / UNSUB_SUCCESS
	Channels []string `json:"channels,omitempty"`
	// Code the stable failure code of an ERROR
	Code ErrorCode `json:"code,omitempty"`
}

// NewEventMessage wrap an event for transmission
func NewEventMessage(event Event) ServerMessage {
	at := event.Timestamp
	return ServerMessage{
		Type:      ServerMsgEvent,
		Channel:   event.Channel,
		Cursor:    event.Cursor,
		Data:      event.Data,
		Timestamp: &at,
	}
}

// NewHeartbeatMessage define a server heartbeat message
func NewHeartbeatMessage(at time.Time) ServerMessage {
	return ServerMessage{Type: ServerMsgHeartbeat, Timestamp: &at}
}

// NewSubChangeMessage acknowledge a subscription change
func NewSubChangeMessage(msgType string, channels []string) ServerMessage {
	return ServerMessage{Type: msgType, Channels: channels}
}

// NewErrorMessage define a failure message with a stable code
func NewErrorMessage(code ErrorCode, detail string) ServerMessage {
	encoded, err := json.Marshal(detail)
	if err != nil {
		encoded = nil
	}
	return ServerMessage{Type: ServerMsgError, Code: code, Data: encoded}
}

// ==============================================================================

// MessageSink the outbound side of a live connection. Dispatch and lifecycle
// components write through this, never to the transport directly.
type MessageSink interface {
	// Send queue one message for transmission. Blocks at most until the
	// context expires when the connection's outbound queue is full.
	Send(ctxt context.Context, msg ServerMessage) error
}
