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
	"fmt"
	"sync"
	"time"

	"github.com/Governs-AI/governsai-console-sub002/common"
	"github.com/Governs-AI/governsai-console-sub002/dispatch"
	"github.com/Governs-AI/governsai-console-sub002/registry"
	"github.com/apex/log"
	"github.com/google/uuid"
)

// SessionManager owns every live session on this relay node. It creates
// sessions for upgraded connections, tears them down on dispatch failures,
// and closes every session under a credential when a revocation notice
// arrives.
type SessionManager interface {
	// Start begin listening for revocation notices
	Start(wg *sync.WaitGroup) error
	// StartSession define and launch a session for one authenticated connection
	StartSession(
		identity common.Identity, allowedChannels []string, socket SocketConn,
	) (Session, error)
	// TeardownSession close one session. Safe against unknown or already
	// closed sessions.
	TeardownSession(id string, cause error)
	// HandleRevocation close every session authenticated with the revoked key
	HandleRevocation(ctxt context.Context, notice RevocationNotice)
	// SessionCount number of live sessions
	SessionCount() int
	// CloseAll tear down every live session
	CloseAll(cause error)
}

// sessionManagerImpl implements SessionManager
type sessionManagerImpl struct {
	common.Component
	registry   registry.ConnectionRegistry
	dispatcher dispatch.EventDispatcher
	receiver   RevocationReceiver
	connCfg    common.ConnectionConfig
	rootCtxt   context.Context
	wg         *sync.WaitGroup
	lock       sync.Mutex
	sessions   map[string]Session
}

// GetSessionManager define a new session manager
func GetSessionManager(
	rootCtxt context.Context,
	reg registry.ConnectionRegistry,
	dispatcher dispatch.EventDispatcher,
	receiver RevocationReceiver,
	connCfg common.ConnectionConfig,
	instance string,
) (SessionManager, error) {
	logTags := log.Fields{
		"module":    "lifecycle",
		"component": "session-manager",
		"instance":  instance,
	}
	return &sessionManagerImpl{
		Component:  common.Component{LogTags: logTags},
		registry:   reg,
		dispatcher: dispatcher,
		receiver:   receiver,
		connCfg:    connCfg,
		rootCtxt:   rootCtxt,
		sessions:   make(map[string]Session),
	}, nil
}

// Start begin listening for revocation notices
func (m *sessionManagerImpl) Start(wg *sync.WaitGroup) error {
	m.wg = wg
	if m.receiver == nil {
		return nil
	}
	return m.receiver.SubscribeForNotices(wg, m.HandleRevocation)
}

// StartSession define and launch a session for one authenticated connection
func (m *sessionManagerImpl) StartSession(
	identity common.Identity, allowedChannels []string, socket SocketConn,
) (Session, error) {
	if m.wg == nil {
		return nil, fmt.Errorf("session manager not started")
	}
	id := uuid.New().String()
	session, err := GetSession(
		m.rootCtxt,
		id,
		identity,
		allowedChannels,
		socket,
		m.registry,
		m.dispatcher,
		m.connCfg,
		m.forgetSession,
	)
	if err != nil {
		log.WithError(err).WithFields(m.LogTags).Errorf(
			"Unable to define session for %s/%s", identity.TenantID, identity.UserID,
		)
		return nil, err
	}
	m.lock.Lock()
	m.sessions[id] = session
	m.lock.Unlock()
	if err := session.Start(m.wg); err != nil {
		log.WithError(err).WithFields(m.LogTags).Errorf("Unable to start session %s", id)
		session.Close(err)
		return nil, err
	}
	return session, nil
}

// forgetSession drop a closed session from tracking
func (m *sessionManagerImpl) forgetSession(id string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.sessions, id)
}

// TeardownSession close one session
func (m *sessionManagerImpl) TeardownSession(id string, cause error) {
	m.lock.Lock()
	session, ok := m.sessions[id]
	m.lock.Unlock()
	if !ok {
		return
	}
	session.Close(cause)
}

// HandleRevocation close every session authenticated with the revoked key
func (m *sessionManagerImpl) HandleRevocation(ctxt context.Context, notice RevocationNotice) {
	conns := m.registry.ConnectionsByKey(notice.KeyID)
	log.WithFields(m.LogTags).Infof(
		"Revocation of key %s affects %d connections", notice.KeyID, len(conns),
	)
	for _, conn := range conns {
		m.lock.Lock()
		session, ok := m.sessions[conn.ID]
		m.lock.Unlock()
		if !ok {
			continue
		}
		// Best effort final notice before the transport goes away
		sendCtxt, cancel := context.WithTimeout(ctxt, time.Millisecond*100)
		if err := session.Send(sendCtxt, common.NewErrorMessage(
			common.ErrorCodeCredentialInactive, "credential revoked",
		)); err != nil {
			log.WithError(err).WithFields(m.LogTags).Debugf(
				"Unable to notify %s of revocation", conn.ID,
			)
		}
		cancel()
		session.Close(common.NewRelayError(
			common.ErrorCodeCredentialInactive,
			fmt.Sprintf("key %s revoked", notice.KeyID),
		))
	}
}

// SessionCount number of live sessions
func (m *sessionManagerImpl) SessionCount() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.sessions)
}

// CloseAll tear down every live session
func (m *sessionManagerImpl) CloseAll(cause error) {
	m.lock.Lock()
	sessions := make([]Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.lock.Unlock()
	for _, session := range sessions {
		session.Close(cause)
	}
}
