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
	"sync"
	"testing"
	"time"

	"github.com/Governs-AI/governsai-console-sub002/common"
	"github.com/Governs-AI/governsai-console-sub002/registry"
	"github.com/stretchr/testify/assert"
)

func TestSessionManagerLifecycle(t *testing.T) {
	assert := assert.New(t)

	wg := sync.WaitGroup{}
	defer wg.Wait()
	utCtxt, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg, err := registry.GetConnectionRegistry("ut-manager")
	assert.Nil(err)

	uut, err := GetSessionManager(
		utCtxt, reg, new(mockDispatcher), nil, utConnectionConfig(), "ut-manager",
	)
	assert.Nil(err)

	// Sessions can not start before the manager
	_, err = uut.StartSession(
		common.Identity{TenantID: "T1", UserID: "U1"}, []string{"org:T1:decisions"}, newFakeSocket(),
	)
	assert.NotNil(err)

	assert.Nil(uut.Start(&wg))

	socket1 := newFakeSocket()
	session1, err := uut.StartSession(
		common.Identity{TenantID: "T1", UserID: "U1", KeyID: "K1"},
		[]string{"org:T1:decisions"},
		socket1,
	)
	assert.Nil(err)
	socket2 := newFakeSocket()
	session2, err := uut.StartSession(
		common.Identity{TenantID: "T2", UserID: "U2", KeyID: "K2"},
		[]string{"org:T2:decisions"},
		socket2,
	)
	assert.Nil(err)
	assert.Equal(2, uut.SessionCount())
	assert.Equal(2, reg.ConnectionCount())

	// Teardown of an unknown session is a no-op
	uut.TeardownSession("no-such-session", nil)
	assert.Equal(2, uut.SessionCount())

	uut.TeardownSession(session1.ID(), nil)
	assert.Equal(SessionClosed, session1.State())
	assert.Equal(1, uut.SessionCount())
	assert.Equal(SessionAuthenticated, session2.State())

	uut.CloseAll(nil)
	assert.Equal(SessionClosed, session2.State())
	assert.Equal(0, uut.SessionCount())
	assert.Equal(0, reg.ConnectionCount())
}

func TestSessionManagerRevocation(t *testing.T) {
	assert := assert.New(t)

	wg := sync.WaitGroup{}
	defer wg.Wait()
	utCtxt, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg, err := registry.GetConnectionRegistry("ut-manager")
	assert.Nil(err)

	uut, err := GetSessionManager(
		utCtxt, reg, new(mockDispatcher), nil, utConnectionConfig(), "ut-manager",
	)
	assert.Nil(err)
	assert.Nil(uut.Start(&wg))

	revokedSocket := newFakeSocket()
	revoked, err := uut.StartSession(
		common.Identity{TenantID: "T1", UserID: "U1", KeyID: "K1"},
		[]string{"org:T1:decisions"},
		revokedSocket,
	)
	assert.Nil(err)
	surviving, err := uut.StartSession(
		common.Identity{TenantID: "T1", UserID: "U2", KeyID: "K2"},
		[]string{"org:T1:decisions"},
		newFakeSocket(),
	)
	assert.Nil(err)

	uut.HandleRevocation(utCtxt, RevocationNotice{
		TenantID: "T1", KeyID: "K1", RevokedAt: time.Now().UTC(),
	})

	assert.Equal(SessionClosed, revoked.State())
	assert.Equal(SessionAuthenticated, surviving.State())
	assert.Equal(1, uut.SessionCount())
	assert.Empty(reg.ConnectionsByKey("K1"))
	assert.Len(reg.ConnectionsByKey("K2"), 1)

	// A repeated notice for the same key is a no-op
	uut.HandleRevocation(utCtxt, RevocationNotice{
		TenantID: "T1", KeyID: "K1", RevokedAt: time.Now().UTC(),
	})
	assert.Equal(1, uut.SessionCount())

	uut.CloseAll(nil)
}
