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

package apis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Governs-AI/governsai-console-sub002/auth"
	"github.com/Governs-AI/governsai-console-sub002/common"
	"github.com/Governs-AI/governsai-console-sub002/lifecycle"
	"github.com/Governs-AI/governsai-console-sub002/mocks"
	"github.com/Governs-AI/governsai-console-sub002/registry"
	"github.com/alwitt/goutils"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// mockBroadcaster testify mock for the revocation broadcaster. The shared
// mocks package can not depend on lifecycle without forming import cycles
// through the packages under test.
type mockBroadcaster struct {
	mock.Mock
}

func (_m *mockBroadcaster) BroadcastRevocation(
	ctxt context.Context, notice lifecycle.RevocationNotice,
) error {
	ret := _m.Called(ctxt, notice)
	return ret.Error(0)
}

func utHTTPConfig() *common.HTTPConfig {
	return &common.HTTPConfig{
		Logging: common.HTTPRequestLogging{
			RequestIDHeader: "Governsai-Request-ID",
			DoNotLogHeaders: []string{"Authorization"},
		},
	}
}

func TestAdminAliveAndInfo(t *testing.T) {
	assert := assert.New(t)

	reg, err := registry.GetConnectionRegistry("ut-admin")
	assert.Nil(err)
	uut, err := GetAPIRestRelayAdminHandler(
		reg, new(mocks.EventDispatcher), new(mocks.RecordStore), nil, nil, utHTTPConfig(),
	)
	assert.Nil(err)

	{
		req := httptest.NewRequest("GET", "/v1/alive", nil)
		respRecorder := httptest.NewRecorder()
		uut.AliveHandler()(respRecorder, req)
		assert.Equal(http.StatusOK, respRecorder.Code)
		var resp goutils.RestAPIBaseResponse
		assert.Nil(json.Unmarshal(respRecorder.Body.Bytes(), &resp))
		assert.True(resp.Success)
	}

	// One live connection should show up in the info response
	_, err = reg.Register(
		"conn-1",
		common.Identity{TenantID: "T1", UserID: "U1"},
		[]string{"org:T1:decisions"},
		new(mocks.MessageSink),
	)
	assert.Nil(err)

	{
		req := httptest.NewRequest("GET", "/v1/info", nil)
		respRecorder := httptest.NewRecorder()
		uut.InfoHandler()(respRecorder, req)
		assert.Equal(http.StatusOK, respRecorder.Code)
		var resp APIRestRespRelayInfo
		assert.Nil(json.Unmarshal(respRecorder.Body.Bytes(), &resp))
		assert.True(resp.Success)
		assert.Equal(auth.ChannelPatterns(), resp.ChannelPatterns)
		assert.Contains(resp.ClientMessageTypes, common.ClientMsgSubscribe)
		assert.Contains(resp.ServerMessageTypes, common.ServerMsgEvent)
		assert.Equal(1, resp.Connections)
	}
}

func TestAdminTenantConnections(t *testing.T) {
	assert := assert.New(t)

	reg, err := registry.GetConnectionRegistry("ut-admin")
	assert.Nil(err)
	uut, err := GetAPIRestRelayAdminHandler(
		reg, new(mocks.EventDispatcher), new(mocks.RecordStore), nil, nil, utHTTPConfig(),
	)
	assert.Nil(err)

	router := mux.NewRouter()
	router.HandleFunc("/v1/tenant/{tenantID}/connections", uut.TenantConnectionsHandler())

	_, err = reg.Register(
		"conn-1",
		common.Identity{TenantID: "T1", UserID: "U1", KeyID: "K1"},
		[]string{"org:T1:decisions"},
		new(mocks.MessageSink),
	)
	assert.Nil(err)
	_, err = reg.Register(
		"conn-2",
		common.Identity{TenantID: "T2", UserID: "U2"},
		[]string{"org:T2:decisions"},
		new(mocks.MessageSink),
	)
	assert.Nil(err)

	{
		req := httptest.NewRequest("GET", "/v1/tenant/T1/connections", nil)
		respRecorder := httptest.NewRecorder()
		router.ServeHTTP(respRecorder, req)
		assert.Equal(http.StatusOK, respRecorder.Code)
		var resp APIRestRespTenantConnections
		assert.Nil(json.Unmarshal(respRecorder.Body.Bytes(), &resp))
		assert.True(resp.Success)
		assert.Len(resp.Connections, 1)
		assert.Equal("conn-1", resp.Connections[0].ID)
		assert.Equal("T1", resp.Connections[0].TenantID)
	}

	{
		req := httptest.NewRequest("GET", "/v1/tenant/T3/connections", nil)
		respRecorder := httptest.NewRecorder()
		router.ServeHTTP(respRecorder, req)
		assert.Equal(http.StatusOK, respRecorder.Code)
		var resp APIRestRespTenantConnections
		assert.Nil(json.Unmarshal(respRecorder.Body.Bytes(), &resp))
		assert.True(resp.Success)
		assert.Empty(resp.Connections)
	}
}

func TestAdminIngestEvent(t *testing.T) {
	assert := assert.New(t)

	reg, err := registry.GetConnectionRegistry("ut-admin")
	assert.Nil(err)
	mockDispatcher := new(mocks.EventDispatcher)
	uut, err := GetAPIRestRelayAdminHandler(
		reg, mockDispatcher, new(mocks.RecordStore), nil, nil, utHTTPConfig(),
	)
	assert.Nil(err)

	// Case 0: malformed body
	{
		req := httptest.NewRequest("POST", "/v1/event", bytes.NewBufferString("not json"))
		respRecorder := httptest.NewRecorder()
		uut.IngestEventHandler()(respRecorder, req)
		assert.Equal(http.StatusBadRequest, respRecorder.Code)
	}

	// Case 1: structurally invalid event
	{
		body, err := json.Marshal(common.Event{Channel: "org:T1:decisions"})
		assert.Nil(err)
		req := httptest.NewRequest("POST", "/v1/event", bytes.NewBuffer(body))
		respRecorder := httptest.NewRecorder()
		uut.IngestEventHandler()(respRecorder, req)
		assert.Equal(http.StatusBadRequest, respRecorder.Code)
	}

	// Case 2: valid event is dispatched, missing timestamp is filled in
	{
		mockDispatcher.On(
			"Dispatch", mock.Anything, mock.AnythingOfType("common.Event"),
		).Run(func(args mock.Arguments) {
			event := args.Get(1).(common.Event)
			assert.Equal("org:T1:decisions", event.Channel)
			assert.Equal("42", event.Cursor)
			assert.False(event.Timestamp.IsZero())
		}).Return(nil).Once()
		body, err := json.Marshal(common.Event{
			Channel: "org:T1:decisions",
			Cursor:  "42",
			Data:    json.RawMessage(`{"decision":"allow"}`),
		})
		assert.Nil(err)
		req := httptest.NewRequest("POST", "/v1/event", bytes.NewBuffer(body))
		respRecorder := httptest.NewRecorder()
		uut.IngestEventHandler()(respRecorder, req)
		assert.Equal(http.StatusOK, respRecorder.Code)
	}

	// Case 3: dispatch failure is surfaced
	{
		mockDispatcher.On(
			"Dispatch", mock.Anything, mock.AnythingOfType("common.Event"),
		).Return(fmt.Errorf("dummy failure")).Once()
		body, err := json.Marshal(common.Event{
			Channel:   "org:T1:decisions",
			Cursor:    "43",
			Data:      json.RawMessage(`{"decision":"allow"}`),
			Timestamp: time.Now().UTC(),
		})
		assert.Nil(err)
		req := httptest.NewRequest("POST", "/v1/event", bytes.NewBuffer(body))
		respRecorder := httptest.NewRecorder()
		uut.IngestEventHandler()(respRecorder, req)
		assert.Equal(http.StatusInternalServerError, respRecorder.Code)
	}

	mockDispatcher.AssertExpectations(t)
}

func TestAdminRevokeKey(t *testing.T) {
	assert := assert.New(t)

	reg, err := registry.GetConnectionRegistry("ut-admin")
	assert.Nil(err)
	broadcaster := new(mockBroadcaster)
	uut, err := GetAPIRestRelayAdminHandler(
		reg, new(mocks.EventDispatcher), new(mocks.RecordStore), broadcaster, nil, utHTTPConfig(),
	)
	assert.Nil(err)

	router := mux.NewRouter()
	router.HandleFunc("/v1/key/{keyID}/revoke", uut.RevokeKeyHandler())

	// Case 0: missing tenant ID
	{
		req := httptest.NewRequest("POST", "/v1/key/K1/revoke", bytes.NewBufferString("{}"))
		respRecorder := httptest.NewRecorder()
		router.ServeHTTP(respRecorder, req)
		assert.Equal(http.StatusBadRequest, respRecorder.Code)
	}

	// Case 1: valid request is broadcast
	{
		broadcaster.On(
			"BroadcastRevocation",
			mock.Anything,
			mock.MatchedBy(func(notice lifecycle.RevocationNotice) bool {
				return notice.KeyID == "K1" && notice.TenantID == "T1"
			}),
		).Return(nil).Once()
		req := httptest.NewRequest(
			"POST", "/v1/key/K1/revoke", bytes.NewBufferString(`{"tenant_id":"T1"}`),
		)
		respRecorder := httptest.NewRecorder()
		router.ServeHTTP(respRecorder, req)
		assert.Equal(http.StatusOK, respRecorder.Code)
	}

	// Case 2: broadcast failure is surfaced
	{
		broadcaster.On(
			"BroadcastRevocation", mock.Anything, mock.AnythingOfType("lifecycle.RevocationNotice"),
		).Return(fmt.Errorf("dummy failure")).Once()
		req := httptest.NewRequest(
			"POST", "/v1/key/K1/revoke", bytes.NewBufferString(`{"tenant_id":"T1"}`),
		)
		respRecorder := httptest.NewRecorder()
		router.ServeHTTP(respRecorder, req)
		assert.Equal(http.StatusInternalServerError, respRecorder.Code)
	}

	broadcaster.AssertExpectations(t)
}

func TestAdminReadyStoreFailure(t *testing.T) {
	assert := assert.New(t)

	reg, err := registry.GetConnectionRegistry("ut-admin")
	assert.Nil(err)
	mockStore := new(mocks.RecordStore)
	uut, err := GetAPIRestRelayAdminHandler(
		reg, new(mocks.EventDispatcher), mockStore, nil, nil, utHTTPConfig(),
	)
	assert.Nil(err)

	mockStore.On("Ready", mock.Anything).Return(fmt.Errorf("store unreachable")).Once()
	req := httptest.NewRequest("GET", "/v1/ready", nil)
	respRecorder := httptest.NewRecorder()
	uut.ReadyHandler()(respRecorder, req)
	assert.Equal(http.StatusInternalServerError, respRecorder.Code)
	var resp goutils.RestAPIBaseResponse
	assert.Nil(json.Unmarshal(respRecorder.Body.Bytes(), &resp))
	assert.False(resp.Success)

	mockStore.AssertExpectations(t)
}
