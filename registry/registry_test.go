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
	"testing"
	"time"

	"github.com/Governs-AI/governsai-console-sub002/common"
	"github.com/Governs-AI/governsai-console-sub002/mocks"
	"github.com/stretchr/testify/assert"
)

func TestRegistrySubscriptions(t *testing.T) {
	assert := assert.New(t)

	uut, err := GetConnectionRegistry("ut-registry")
	assert.Nil(err)

	identity := common.Identity{TenantID: "T1", UserID: "U1", KeyID: "K1"}
	allowed := []string{"org:T1:decisions", "org:T1:notifications", "user:U1:notifications"}
	sink := new(mocks.MessageSink)

	conn, err := uut.Register("conn-1", identity, allowed, sink)
	assert.Nil(err)
	assert.Equal("conn-1", conn.ID)
	assert.Equal(1, uut.ConnectionCount())

	// Duplicate registration is rejected
	_, err = uut.Register("conn-1", identity, allowed, sink)
	assert.NotNil(err)

	// Mixed batch: allowed channels accepted, the rest rejected individually
	accepted, rejected, err := uut.Subscribe("conn-1", []string{
		"org:T1:decisions", "org:T2:decisions", "user:U1:notifications",
	})
	assert.Nil(err)
	assert.Equal([]string{"org:T1:decisions", "user:U1:notifications"}, accepted)
	assert.Equal([]string{"org:T2:decisions"}, rejected)

	// Resubscribing is a no-op success
	accepted, rejected, err = uut.Subscribe("conn-1", []string{"org:T1:decisions"})
	assert.Nil(err)
	assert.Equal([]string{"org:T1:decisions"}, accepted)
	assert.Empty(rejected)

	subscribers := uut.Subscribers("org:T1:decisions")
	assert.Len(subscribers, 1)
	assert.Equal("conn-1", subscribers[0].ID)
	assert.Empty(uut.Subscribers("org:T2:decisions"))

	// Unsubscribe removes only the subscribed channels named
	removed, err := uut.Unsubscribe("conn-1", []string{
		"org:T1:decisions", "org:T1:notifications",
	})
	assert.Nil(err)
	assert.Equal([]string{"org:T1:decisions"}, removed)
	assert.Empty(uut.Subscribers("org:T1:decisions"))
	assert.Equal([]string{"user:U1:notifications"}, subscribers[0].SubscribedChannels())

	// Unknown connection
	_, _, err = uut.Subscribe("conn-404", []string{"org:T1:decisions"})
	assert.NotNil(err)
}

func TestRegistryCursorTracking(t *testing.T) {
	assert := assert.New(t)

	uut, err := GetConnectionRegistry("ut-registry")
	assert.Nil(err)

	identity := common.Identity{TenantID: "T1", UserID: "U1"}
	conn, err := uut.Register(
		"conn-1", identity, []string{"org:T1:decisions"}, new(mocks.MessageSink),
	)
	assert.Nil(err)

	assert.Nil(uut.RecordACK("conn-1", "org:T1:decisions", "5"))
	cursor, ok := conn.Cursor("org:T1:decisions")
	assert.True(ok)
	assert.Equal("5", cursor)

	// Stale and repeated ACKs leave the cursor alone
	assert.Nil(uut.RecordACK("conn-1", "org:T1:decisions", "3"))
	assert.Nil(uut.RecordACK("conn-1", "org:T1:decisions", "5"))
	cursor, _ = conn.Cursor("org:T1:decisions")
	assert.Equal("5", cursor)

	assert.Nil(uut.RecordACK("conn-1", "org:T1:decisions", "12"))
	cursor, _ = conn.Cursor("org:T1:decisions")
	assert.Equal("12", cursor)

	_, ok = conn.Cursor("org:T1:notifications")
	assert.False(ok)

	assert.NotNil(uut.RecordACK("conn-404", "org:T1:decisions", "1"))
}

func TestRegistryDeregistration(t *testing.T) {
	assert := assert.New(t)

	uut, err := GetConnectionRegistry("ut-registry")
	assert.Nil(err)

	identity := common.Identity{TenantID: "T1", UserID: "U1", KeyID: "K1"}
	_, err = uut.Register(
		"conn-1", identity, []string{"org:T1:decisions"}, new(mocks.MessageSink),
	)
	assert.Nil(err)
	_, _, err = uut.Subscribe("conn-1", []string{"org:T1:decisions"})
	assert.Nil(err)

	assert.Nil(uut.Deregister("conn-1"))
	assert.Equal(0, uut.ConnectionCount())
	assert.Empty(uut.Subscribers("org:T1:decisions"))
	_, ok := uut.Get("conn-1")
	assert.False(ok)

	// Deregistering again is a no-op
	assert.Nil(uut.Deregister("conn-1"))
}

func TestRegistryLookups(t *testing.T) {
	assert := assert.New(t)

	uut, err := GetConnectionRegistry("ut-registry")
	assert.Nil(err)

	_, err = uut.Register(
		"conn-1",
		common.Identity{TenantID: "T1", UserID: "U1", KeyID: "K1"},
		[]string{"org:T1:decisions"},
		new(mocks.MessageSink),
	)
	assert.Nil(err)
	_, err = uut.Register(
		"conn-2",
		common.Identity{TenantID: "T1", UserID: "U2"},
		[]string{"org:T1:decisions"},
		new(mocks.MessageSink),
	)
	assert.Nil(err)
	_, err = uut.Register(
		"conn-3",
		common.Identity{TenantID: "T2", UserID: "U3", KeyID: "K3"},
		[]string{"org:T2:decisions"},
		new(mocks.MessageSink),
	)
	assert.Nil(err)
	_, _, err = uut.Subscribe("conn-1", []string{"org:T1:decisions"})
	assert.Nil(err)

	records := uut.ConnectionsByTenant("T1")
	assert.Len(records, 2)
	assert.Equal("conn-1", records[0].ID)
	assert.Equal([]string{"org:T1:decisions"}, records[0].Channels)
	assert.Equal("conn-2", records[1].ID)
	assert.Empty(records[1].Channels)
	assert.Empty(uut.ConnectionsByTenant("T404"))

	byKey := uut.ConnectionsByKey("K3")
	assert.Len(byKey, 1)
	assert.Equal("conn-3", byKey[0].ID)
	assert.Empty(uut.ConnectionsByKey("K404"))
}

func TestRegistryLivenessTracking(t *testing.T) {
	assert := assert.New(t)

	uut, err := GetConnectionRegistry("ut-registry")
	assert.Nil(err)

	conn, err := uut.Register(
		"conn-1", common.Identity{TenantID: "T1", UserID: "U1"}, nil, new(mocks.MessageSink),
	)
	assert.Nil(err)

	initial := conn.LastSeen()
	later := initial.Add(time.Second * 5)
	uut.TouchLiveness("conn-1", later)
	assert.Equal(later, conn.LastSeen())

	// Out of order touches never move the clock backwards
	uut.TouchLiveness("conn-1", initial.Add(time.Second))
	assert.Equal(later, conn.LastSeen())

	// Unknown connections are ignored
	uut.TouchLiveness("conn-404", time.Now())
}
