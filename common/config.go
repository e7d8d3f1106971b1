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

import "github.com/spf13/viper"

// ===============================================================================
// NATS Related Config

// NATSReconnectConfig defines NATS client reconnect behavior
type NATSReconnectConfig struct {
	// MaxAttempts limits reconnect attempts, -1 to retry forever
	MaxAttempts int `mapstructure:"max_attempts" json:"max_attempts" validate:"gte=-1"`
	// WaitInterval is the pause between reconnect attempts in seconds
	WaitInterval int `mapstructure:"wait_interval_sec" json:"wait_interval_sec" validate:"gte=1"`
}

// NATSConfig defines how the relay reaches the NATS server
type NATSConfig struct {
	// ServerURI points at the NATS server
	ServerURI string `mapstructure:"server_uri" json:"server_uri" validate:"required,uri"`
	// ConnectTimeout bounds the initial connection attempt in seconds
	ConnectTimeout int `mapstructure:"connect_timeout_sec" json:"connect_timeout_sec" validate:"gte=1"`
	// Reconnect defines the client reconnect behavior
	Reconnect NATSReconnectConfig `mapstructure:"reconnect" json:"reconnect" validate:"required,dive"`
}

// ===============================================================================
// HTTP Related Config

// HTTPServerConfig defines HTTP server listener parameters. The timeout
// values map onto the matching http.Server fields; zero disables a timeout.
// WriteTimeout is applied to the admin server only, never the relay server,
// as it would sever long-lived websocket connections.
type HTTPServerConfig struct {
	// ListenOn is the local interface to bind
	ListenOn string `mapstructure:"listen_on" json:"listen_on" validate:"required,ip"`
	// Port is the listener port
	Port uint16 `mapstructure:"listen_port" json:"listen_port" validate:"required,gt=0,lt=65536"`
	// ReadTimeout bounds reading one full request in seconds
	ReadTimeout int `mapstructure:"read_timeout_sec" json:"read_timeout_sec" validate:"gte=0"`
	// WriteTimeout bounds writing one response in seconds
	WriteTimeout int `mapstructure:"write_timeout_sec" json:"write_timeout_sec" validate:"gte=0"`
	// IdleTimeout bounds keep-alive waits between requests in seconds
	IdleTimeout int `mapstructure:"idle_timeout_sec" json:"idle_timeout_sec" validate:"gte=0"`
}

// HTTPRequestLogging defines request logging parameters
type HTTPRequestLogging struct {
	// RequestIDHeader names the header carrying the caller request ID
	RequestIDHeader string `mapstructure:"request_id_header" json:"request_id_header"`
	// DoNotLogHeaders lists headers excluded from request log metadata
	DoNotLogHeaders []string `mapstructure:"do_not_log_headers" json:"do_not_log_headers"`
}

// HTTPConfig groups the server and request logging parameters of one HTTP
// listener
type HTTPConfig struct {
	// Server is the listener parameters
	Server HTTPServerConfig `mapstructure:"server_config" json:"server_config" validate:"required,dive"`
	// Logging is the request logging parameters
	Logging HTTPRequestLogging `mapstructure:"logging_config" json:"logging_config" validate:"required,dive"`
}

// ===============================================================================
// Relay Server Related Config

// RelayEndpointConfig defines relay API endpoint config
type RelayEndpointConfig struct {
	// PathPrefix is the end-point path prefix for the relay APIs
	PathPrefix string `mapstructure:"path_prefix" json:"path_prefix" validate:"required"`
}

// ConnectionConfig defines per-connection transport parameters
type ConnectionConfig struct {
	// HeartbeatInterval is the server heartbeat period in seconds
	HeartbeatInterval int `mapstructure:"heartbeat_interval_sec" json:"heartbeat_interval_sec" validate:"gte=1"`
	// MaxMissedHeartbeats is how many heartbeat intervals may pass without
	// client traffic before the connection is considered dead
	MaxMissedHeartbeats int `mapstructure:"max_missed_heartbeats" json:"max_missed_heartbeats" validate:"gte=1"`
	// OutboundQueueLen is the length of a connection's bounded outbound queue
	OutboundQueueLen int `mapstructure:"outbound_queue_len" json:"outbound_queue_len" validate:"gte=1"`
	// SendTimeout is the max duration in milliseconds to wait when queueing a
	// message for one connection before marking it for teardown
	SendTimeout int `mapstructure:"send_timeout_ms" json:"send_timeout_ms" validate:"gte=1"`
	// WriteTimeout is the max duration in milliseconds for one transport write
	WriteTimeout int `mapstructure:"write_timeout_ms" json:"write_timeout_ms" validate:"gte=1"`
}

// AuthConfig defines connection authentication parameters
type AuthConfig struct {
	// StoreTimeout is the hard timeout in seconds for record store lookups
	// during authentication
	StoreTimeout int `mapstructure:"store_timeout_sec" json:"store_timeout_sec" validate:"gte=1"`
	// AuditQueueLen is the length of the fire-and-forget audit event queue
	AuditQueueLen int `mapstructure:"audit_queue_len" json:"audit_queue_len" validate:"gte=1"`
}

// DispatchConfig defines event dispatch parameters
type DispatchConfig struct {
	// ReplayLimit caps the number of events returned by one replay query
	ReplayLimit int `mapstructure:"replay_limit" json:"replay_limit" validate:"gte=1"`
}

// MessagingConfig defines the NATS subjects the relay listens on
type MessagingConfig struct {
	// EventSubject carries decision events for ingestion
	EventSubject string `mapstructure:"event_subject" json:"event_subject" validate:"required"`
	// RevocationSubject carries credential revocation signals
	RevocationSubject string `mapstructure:"revocation_subject" json:"revocation_subject" validate:"required"`
}

// RelayServerConfig defines configuration for the relay server
type RelayServerConfig struct {
	// HTTPSetting is the HTTP API / server parameters for the relay server
	HTTPSetting HTTPConfig `mapstructure:"api_server" json:"api_server" validate:"required,dive"`
	// Endpoints is the API endpoint config parameters for the relay server
	Endpoints RelayEndpointConfig `mapstructure:"endpoint_config" json:"endpoint_config" validate:"required,dive"`
	// Connection is the per-connection transport parameters
	Connection ConnectionConfig `mapstructure:"connection" json:"connection" validate:"required,dive"`
	// Auth is the connection authentication parameters
	Auth AuthConfig `mapstructure:"auth" json:"auth" validate:"required,dive"`
	// Dispatch is the event dispatch parameters
	Dispatch DispatchConfig `mapstructure:"dispatch" json:"dispatch" validate:"required,dive"`
	// Messaging is the NATS subject parameters
	Messaging MessagingConfig `mapstructure:"messaging" json:"messaging" validate:"required,dive"`
}

// ===============================================================================
// Complete Config

// SystemConfig defines the complete system config for the relay
type SystemConfig struct {
	// NATS is the NATS connection config
	NATS NATSConfig `mapstructure:"nats" json:"nats" validate:"required,dive"`
	// Relay are the relay server configs
	Relay *RelayServerConfig `mapstructure:"relay,omitempty" json:"relay,omitempty" validate:"omitempty,dive"`
}

// ===============================================================================

// InstallDefaultConfigValues installs default config parameters in viper
func InstallDefaultConfigValues() {
	// Default NATS settings
	viper.SetDefault("nats.server_uri", "nats://127.0.0.1:4222")
	viper.SetDefault("nats.connect_timeout_sec", 30)
	viper.SetDefault("nats.reconnect.max_attempts", -1)
	viper.SetDefault("nats.reconnect.wait_interval_sec", 15)

	// Default relay server settings
	viper.SetDefault("relay.endpoint_config.path_prefix", "/")
	viper.SetDefault("relay.api_server.server_config.listen_on", "0.0.0.0")
	viper.SetDefault("relay.api_server.server_config.listen_port", 3000)
	viper.SetDefault("relay.api_server.server_config.read_timeout_sec", 60)
	viper.SetDefault("relay.api_server.server_config.write_timeout_sec", 60)
	viper.SetDefault("relay.api_server.server_config.idle_timeout_sec", 600)
	viper.SetDefault(
		"relay.api_server.logging_config.request_id_header", "Governsai-Request-ID",
	)
	viper.SetDefault(
		"relay.api_server.logging_config.do_not_log_headers", []string{
			"WWW-Authenticate", "Authorization", "Proxy-Authenticate", "Proxy-Authorization",
		},
	)
	viper.SetDefault("relay.connection.heartbeat_interval_sec", 30)
	viper.SetDefault("relay.connection.max_missed_heartbeats", 3)
	viper.SetDefault("relay.connection.outbound_queue_len", 64)
	viper.SetDefault("relay.connection.send_timeout_ms", 250)
	viper.SetDefault("relay.connection.write_timeout_ms", 5000)
	viper.SetDefault("relay.auth.store_timeout_sec", 5)
	viper.SetDefault("relay.auth.audit_queue_len", 256)
	viper.SetDefault("relay.dispatch.replay_limit", 512)
	viper.SetDefault("relay.messaging.event_subject", "governsai.relay.event")
	viper.SetDefault("relay.messaging.revocation_subject", "governsai.relay.revoked")
}
