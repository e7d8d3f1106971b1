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

package registry

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/Governs-AI/governsai-console-sub002/common"
	"github.com/apex/log"
)

// Connection the registry's record of one live relay connection. Owned
// exclusively by the registry; other components read it through registry
// lookups.
type Connection struct {
	// ID the opaque unique connection ID
	ID string
	// Identity the resolved identity behind the connection
	Identity common.Identity
	// ConnectedAt when the connection registered
	ConnectedAt time.Time

	sink       common.MessageSink
	lock       sync.Mutex
	allowed    map[string]bool
	subscribed map[string]bool
	cursors    map[string]string
	lastSeen   time.Time
}

// Sink the outbound side of the connection
func (c *Connection) Sink() common.MessageSink {
	return c.sink
}

// Cursor read the last acknowledged cursor for a channel
func (c *Connection) Cursor(channel string) (string, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	cursor, ok := c.cursors[channel]
	return cursor, ok
}

// SubscribedChannels snapshot of the connection's subscribed channel set
func (c *Connection) SubscribedChannels() []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	channels := make([]string, 0, len(c.subscribed))
	for channel := range c.subscribed {
		channels = append(channels, channel)
	}
	sort.Strings(channels)
	return channels
}

// LastSeen when client traffic was last observed on the connection
func (c *Connection) LastSeen() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.lastSeen
}

// ConnectionRecord read-only snapshot of one connection for dashboards
type ConnectionRecord struct {
	// ID the connection ID
	ID string `json:"id"`
	// TenantID the connection's tenant
	TenantID string `json:"tenant_id"`
	// UserID the connection's user
	UserID string `json:"user_id"`
	// KeyID the API key the connection authenticated with, if any
	KeyID string `json:"key_id,omitempty"`
	// Channels the subscribed channel names
	Channels []string `json:"channels"`
	// ConnectedAt when the connection registered
	ConnectedAt time.Time `json:"connected_at"`
	// LastSeenAt when client traffic was last observed
	LastSeenAt time.Time `json:"last_seen_at"`
}

// ==============================================================================

// ConnectionRegistry in-memory store mapping channels to subscribed
// connections and connections to their per-channel cursors. The relay's only
// mutable shared state; reconstructed from scratch on restart.
type ConnectionRegistry interface {
	// Register record a new authenticated connection with its allow-list
	Register(
		id string, identity common.Identity, allowed []string, sink common.MessageSink,
	) (*Connection, error)
	// Subscribe subscribe a connection to channels. Channels outside the
	// connection's allow-list are rejected individually; the rest of the
	// batch still succeeds.
	Subscribe(id string, channels []string) (accepted []string, rejected []string, err error)
	// Unsubscribe remove channels from a connection's subscribed set
	Unsubscribe(id string, channels []string) (removed []string, err error)
	// RecordACK advance a connection's cursor on a channel. A cursor at or
	// below the recorded one is a no-op, not an error.
	RecordACK(id string, channel string, cursor string) error
	// TouchLiveness record client traffic on a connection
	TouchLiveness(id string, at time.Time)
	// Deregister remove a connection from every channel and delete its
	// state. Unknown connections are a no-op.
	Deregister(id string) error
	// Subscribers snapshot of the connections subscribed to a channel
	Subscribers(channel string) []*Connection
	// Get fetch a connection by ID
	Get(id string) (*Connection, bool)
	// ConnectionsByTenant snapshot of a tenant's connections for dashboards
	ConnectionsByTenant(tenantID string) []ConnectionRecord
	// ConnectionsByKey snapshot of the connections authenticated with an API key
	ConnectionsByKey(keyID string) []*Connection
	// ConnectionCount number of live connections
	ConnectionCount() int
}

// channelShard one lock bucket of the channel subscriber map
type channelShard struct {
	lock        sync.Mutex
	subscribers map[string]map[string]*Connection
}

const channelShardCount = 32

// connectionRegistryImpl implements ConnectionRegistry
type connectionRegistryImpl struct {
	common.Component
	connsLock sync.RWMutex
	conns     map[string]*Connection
	shards    [channelShardCount]*channelShard
}

// GetConnectionRegistry define a new connection registry
func GetConnectionRegistry(instance string) (ConnectionRegistry, error) {
	logTags := log.Fields{
		"module":    "registry",
		"component": "connection-registry",
		"instance":  instance,
	}
	reg := &connectionRegistryImpl{
		Component: common.Component{LogTags: logTags},
		conns:     make(map[string]*Connection),
	}
	for idx := 0; idx < channelShardCount; idx++ {
		reg.shards[idx] = &channelShard{
			subscribers: make(map[string]map[string]*Connection),
		}
	}
	return reg, nil
}

// shardFor pick the lock bucket for a channel
func (r *connectionRegistryImpl) shardFor(channel string) *channelShard {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(channel))
	return r.shards[hasher.Sum32()%channelShardCount]
}

// Register record a new authenticated connection with its allow-list
func (r *connectionRegistryImpl) Register(
	id string, identity common.Identity, allowed []string, sink common.MessageSink,
) (*Connection, error) {
	now := time.Now().UTC()
	conn := &Connection{
		ID:          id,
		Identity:    identity,
		ConnectedAt: now,
		sink:        sink,
		allowed:     make(map[string]bool),
		subscribed:  make(map[string]bool),
		cursors:     make(map[string]string),
		lastSeen:    now,
	}
	for _, channel := range allowed {
		conn.allowed[channel] = true
	}

	r.connsLock.Lock()
	defer r.connsLock.Unlock()
	if _, ok := r.conns[id]; ok {
		return nil, fmt.Errorf("connection %s already registered", id)
	}
	r.conns[id] = conn
	log.WithFields(r.LogTags).Infof(
		"Registered connection %s for %s/%s", id, identity.TenantID, identity.UserID,
	)
	return conn, nil
}

// Subscribe subscribe a connection to channels
func (r *connectionRegistryImpl) Subscribe(
	id string, channels []string,
) (accepted []string, rejected []string, err error) {
	conn, ok := r.Get(id)
	if !ok {
		return nil, nil, fmt.Errorf("connection %s is not registered", id)
	}
	accepted = []string{}
	rejected = []string{}
	for _, channel := range channels {
		conn.lock.Lock()
		allowed := conn.allowed[channel]
		alreadySubscribed := conn.subscribed[channel]
		if allowed {
			conn.subscribed[channel] = true
		}
		conn.lock.Unlock()
		if !allowed {
			rejected = append(rejected, channel)
			continue
		}
		// Re-subscribing is a no-op success
		if !alreadySubscribed {
			shard := r.shardFor(channel)
			shard.lock.Lock()
			if shard.subscribers[channel] == nil {
				shard.subscribers[channel] = make(map[string]*Connection)
			}
			shard.subscribers[channel][id] = conn
			shard.lock.Unlock()
		}
		accepted = append(accepted, channel)
	}
	log.WithFields(r.LogTags).Debugf(
		"Connection %s subscribe: %d accepted, %d rejected", id, len(accepted), len(rejected),
	)
	return accepted, rejected, nil
}

// Unsubscribe remove channels from a connection's subscribed set
func (r *connectionRegistryImpl) Unsubscribe(
	id string, channels []string,
) ([]string, error) {
	conn, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("connection %s is not registered", id)
	}
	removed := []string{}
	for _, channel := range channels {
		conn.lock.Lock()
		wasSubscribed := conn.subscribed[channel]
		delete(conn.subscribed, channel)
		conn.lock.Unlock()
		if wasSubscribed {
			r.dropSubscriber(channel, id)
			removed = append(removed, channel)
		}
	}
	return removed, nil
}

// dropSubscriber remove one connection from a channel's subscriber set,
// garbage-collecting the channel entry when it empties.
func (r *connectionRegistryImpl) dropSubscriber(channel, id string) {
	shard := r.shardFor(channel)
	shard.lock.Lock()
	defer shard.lock.Unlock()
	if subscribers, ok := shard.subscribers[channel]; ok {
		delete(subscribers, id)
		if len(subscribers) == 0 {
			delete(shard.subscribers, channel)
		}
	}
}

// RecordACK advance a connection's cursor on a channel
func (r *connectionRegistryImpl) RecordACK(id string, channel string, cursor string) error {
	conn, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("connection %s is not registered", id)
	}
	conn.lock.Lock()
	defer conn.lock.Unlock()
	if existing, ok := conn.cursors[channel]; ok {
		if common.CompareCursors(cursor, existing) <= 0 {
			// Stale or repeated ACK, leave the recorded cursor alone
			return nil
		}
	}
	conn.cursors[channel] = cursor
	return nil
}

// TouchLiveness record client traffic on a connection
func (r *connectionRegistryImpl) TouchLiveness(id string, at time.Time) {
	if conn, ok := r.Get(id); ok {
		conn.lock.Lock()
		if at.After(conn.lastSeen) {
			conn.lastSeen = at
		}
		conn.lock.Unlock()
	}
}

// Deregister remove a connection from every channel and delete its state
func (r *connectionRegistryImpl) Deregister(id string) error {
	r.connsLock.Lock()
	conn, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	r.connsLock.Unlock()
	if !ok {
		return nil
	}
	for _, channel := range conn.SubscribedChannels() {
		r.dropSubscriber(channel, id)
	}
	log.WithFields(r.LogTags).Infof("Deregistered connection %s", id)
	return nil
}

// Subscribers snapshot of the connections subscribed to a channel
func (r *connectionRegistryImpl) Subscribers(channel string) []*Connection {
	shard := r.shardFor(channel)
	shard.lock.Lock()
	defer shard.lock.Unlock()
	result := make([]*Connection, 0, len(shard.subscribers[channel]))
	for _, conn := range shard.subscribers[channel] {
		result = append(result, conn)
	}
	return result
}

// Get fetch a connection by ID
func (r *connectionRegistryImpl) Get(id string) (*Connection, bool) {
	r.connsLock.RLock()
	defer r.connsLock.RUnlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// ConnectionsByTenant snapshot of a tenant's connections for dashboards
func (r *connectionRegistryImpl) ConnectionsByTenant(tenantID string) []ConnectionRecord {
	r.connsLock.RLock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		if conn.Identity.TenantID == tenantID {
			conns = append(conns, conn)
		}
	}
	r.connsLock.RUnlock()
	records := make([]ConnectionRecord, 0, len(conns))
	for _, conn := range conns {
		records = append(records, ConnectionRecord{
			ID:          conn.ID,
			TenantID:    conn.Identity.TenantID,
			UserID:      conn.Identity.UserID,
			KeyID:       conn.Identity.KeyID,
			Channels:    conn.SubscribedChannels(),
			ConnectedAt: conn.ConnectedAt,
			LastSeenAt:  conn.LastSeen(),
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records
}

// ConnectionsByKey snapshot of the connections authenticated with an API key
func (r *connectionRegistryImpl) ConnectionsByKey(keyID string) []*Connection {
	r.connsLock.RLock()
	defer r.connsLock.RUnlock()
	result := []*Connection{}
	for _, conn := range r.conns {
		if conn.Identity.KeyID == keyID {
			result = append(result, conn)
		}
	}
	return result
}

// ConnectionCount number of live connections
func (r *connectionRegistryImpl) ConnectionCount() int {
	r.connsLock.RLock()
	defer r.connsLock.RUnlock()
	return len(r.conns)
}
