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
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Governs-AI/governsai-console-sub002/auth"
	"github.com/Governs-AI/governsai-console-sub002/common"
	"github.com/Governs-AI/governsai-console-sub002/core"
	"github.com/Governs-AI/governsai-console-sub002/dispatch"
	"github.com/Governs-AI/governsai-console-sub002/lifecycle"
	"github.com/Governs-AI/governsai-console-sub002/registry"
	"github.com/Governs-AI/governsai-console-sub002/storage"
	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/nats-io/nats.go"
)

// APIRestRelayAdminHandler REST handler for the relay admin surface
type APIRestRelayAdminHandler struct {
	goutils.RestAPIHandler
	registry    registry.ConnectionRegistry
	dispatcher  dispatch.EventDispatcher
	store       storage.RecordStore
	broadcaster lifecycle.RevocationBroadcaster
	nats        *core.NatsClient
	validate    *validator.Validate
}

// GetAPIRestRelayAdminHandler define APIRestRelayAdminHandler
func GetAPIRestRelayAdminHandler(
	reg registry.ConnectionRegistry,
	dispatcher dispatch.EventDispatcher,
	store storage.RecordStore,
	broadcaster lifecycle.RevocationBroadcaster,
	natsClient *core.NatsClient,
	httpConfig *common.HTTPConfig,
) (APIRestRelayAdminHandler, error) {
	logTags := log.Fields{
		"module":    "rest",
		"component": "relay-admin",
	}
	return APIRestRelayAdminHandler{
		RestAPIHandler: goutils.RestAPIHandler{
			Component: goutils.Component{
				LogTags: logTags,
				LogTagModifiers: []goutils.LogMetadataModifier{
					goutils.ModifyLogMetadataByRestRequestParam,
				},
			},
			CallRequestIDHeaderField: &httpConfig.Logging.RequestIDHeader,
			DoNotLogHeaders: func() map[string]bool {
				result := map[string]bool{}
				for _, v := range httpConfig.Logging.DoNotLogHeaders {
					result[v] = true
				}
				return result
			}(),
		},
		registry:    reg,
		dispatcher:  dispatcher,
		store:       store,
		broadcaster: broadcaster,
		nats:        natsClient,
		validate:    validator.New(),
	}, nil
}

// =======================================================================

// APIRestRespRelayInfo response body of the relay info query
type APIRestRespRelayInfo struct {
	goutils.RestAPIBaseResponse
	// ChannelPatterns the channel name patterns a connection may subscribe to
	ChannelPatterns []string `json:"channel_patterns"`
	// ClientMessageTypes the accepted client message types
	ClientMessageTypes []string `json:"client_message_types"`
	// ServerMessageTypes the emitted server message types
	ServerMessageTypes []string `json:"server_message_types"`
	// Connections the current live connection count
	Connections int `json:"connections"`
}

// Info godoc
// @Summary Query relay capabilities
// @Description Returns the supported channel patterns and wire message types
// @tags Admin
// @Produce json
// @Param Governsai-Request-ID header string false "User provided request ID to match against logs"
// @Success 200 {object} APIRestRespRelayInfo "success"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/info [get]
func (h APIRestRelayAdminHandler) Info(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	resp := APIRestRespRelayInfo{
		RestAPIBaseResponse: goutils.RestAPIBaseResponse{
			Success: true, RequestID: h.ReadRequestIDFromContext(r.Context()),
		},
		ChannelPatterns: auth.ChannelPatterns(),
		ClientMessageTypes: []string{
			common.ClientMsgSubscribe,
			common.ClientMsgUnsubscribe,
			common.ClientMsgACK,
			common.ClientMsgPing,
		},
		ServerMessageTypes: []string{
			common.ServerMsgEvent,
			common.ServerMsgHeartbeat,
			common.ServerMsgSubSuccess,
			common.ServerMsgUnsubSuccess,
			common.ServerMsgError,
		},
		Connections: h.registry.ConnectionCount(),
	}
	if err := h.WriteRESTResponse(w, http.StatusOK, resp, nil); err != nil {
		log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
	}
}

// InfoHandler Wrapper around Info
func (h APIRestRelayAdminHandler) InfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Info(w, r)
	}
}

// -----------------------------------------------------------------------

// APIRestRespTenantConnections response body of the tenant connection query
type APIRestRespTenantConnections struct {
	goutils.RestAPIBaseResponse
	// Connections the tenant's live connections
	Connections []registry.ConnectionRecord `json:"connections"`
}

// TenantConnections godoc
// @Summary Query the live connections of one tenant
// @Description Read-only view of the connection registry filtered by tenant
// @tags Admin
// @Produce json
// @Param Governsai-Request-ID header string false "User provided request ID to match against logs"
// @Param tenantID path string true "Tenant ID"
// @Success 200 {object} APIRestRespTenantConnections "success"
// @Failure 400 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/tenant/{tenantID}/connections [get]
func (h APIRestRelayAdminHandler) TenantConnections(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	vars := mux.Vars(r)
	tenantID, ok := vars["tenantID"]
	if !ok || tenantID == "" {
		msg := "No tenant ID provided"
		log.WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, msg)
		return
	}

	respCode = http.StatusOK
	respBody = APIRestRespTenantConnections{
		RestAPIBaseResponse: goutils.RestAPIBaseResponse{
			Success: true, RequestID: h.ReadRequestIDFromContext(r.Context()),
		},
		Connections: h.registry.ConnectionsByTenant(tenantID),
	}
}

// TenantConnectionsHandler Wrapper around TenantConnections
func (h APIRestRelayAdminHandler) TenantConnectionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.TenantConnections(w, r)
	}
}

// -----------------------------------------------------------------------

// IngestEvent godoc
// @Summary Inject one decision event
// @Description Dispatches the event to the channel's live subscribers
// @tags Admin
// @Accept json
// @Produce json
// @Param Governsai-Request-ID header string false "User provided request ID to match against logs"
// @Param event body common.Event true "Event to dispatch"
// @Success 200 {object} goutils.RestAPIBaseResponse "success"
// @Failure 400 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/event [post]
func (h APIRestRelayAdminHandler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	var event common.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		msg := "Unable to parse request body"
		log.WithError(err).WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := h.validate.Struct(&event); err != nil {
		msg := "Invalid event"
		log.WithError(err).WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), event); err != nil {
		msg := fmt.Sprintf("Unable to dispatch %s", event.String())
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusInternalServerError, msg, err.Error())
		return
	}

	respCode = http.StatusOK
	respBody = h.GetStdRESTSuccessMsg(r.Context())
}

// IngestEventHandler Wrapper around IngestEvent
func (h APIRestRelayAdminHandler) IngestEventHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.IngestEvent(w, r)
	}
}

// -----------------------------------------------------------------------

// APIRestReqRevokeKey request body of the key revocation request
type APIRestReqRevokeKey struct {
	// TenantID the tenant owning the key
	TenantID string `json:"tenant_id" validate:"required"`
}

// RevokeKey godoc
// @Summary Broadcast revocation of one API key
// @Description Every relay node closes the connections authenticated with the key
// @tags Admin
// @Accept json
// @Produce json
// @Param Governsai-Request-ID header string false "User provided request ID to match against logs"
// @Param keyID path string true "API key ID"
// @Param request body APIRestReqRevokeKey true "Revocation parameters"
// @Success 200 {object} goutils.RestAPIBaseResponse "success"
// @Failure 400 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/key/{keyID}/revoke [post]
func (h APIRestRelayAdminHandler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	vars := mux.Vars(r)
	keyID, ok := vars["keyID"]
	if !ok || keyID == "" {
		msg := "No key ID provided"
		log.WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, msg)
		return
	}

	var request APIRestReqRevokeKey
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		msg := "Unable to parse request body"
		log.WithError(err).WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}
	if err := h.validate.Struct(&request); err != nil {
		msg := "Invalid revocation request"
		log.WithError(err).WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}

	notice := lifecycle.RevocationNotice{
		TenantID:  request.TenantID,
		KeyID:     keyID,
		RevokedAt: time.Now().UTC(),
	}
	if err := h.broadcaster.BroadcastRevocation(r.Context(), notice); err != nil {
		msg := fmt.Sprintf("Unable to broadcast %s", notice.String())
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusInternalServerError, msg, err.Error())
		return
	}

	respCode = http.StatusOK
	respBody = h.GetStdRESTSuccessMsg(r.Context())
}

// RevokeKeyHandler Wrapper around RevokeKey
func (h APIRestRelayAdminHandler) RevokeKeyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.RevokeKey(w, r)
	}
}

// =======================================================================

// Alive godoc
// @Summary For relay liveness check
// @Description Will return success to indicate the relay is live
// @tags Admin
// @Produce json
// @Success 200 {object} goutils.RestAPIBaseResponse "success"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/alive [get]
func (h APIRestRelayAdminHandler) Alive(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	if err := h.WriteRESTResponse(
		w, http.StatusOK, h.GetStdRESTSuccessMsg(r.Context()), nil,
	); err != nil {
		log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
	}
}

// AliveHandler Wrapper around Alive
func (h APIRestRelayAdminHandler) AliveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Alive(w, r)
	}
}

// -----------------------------------------------------------------------

// Ready godoc
// @Summary For relay readiness check
// @Description Will return success if the record store and NATS are reachable
// @tags Admin
// @Produce json
// @Success 200 {object} goutils.RestAPIBaseResponse "success"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/ready [get]
func (h APIRestRelayAdminHandler) Ready(w http.ResponseWriter, r *http.Request) {
	msg := "not ready"
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	if err := h.store.Ready(r.Context()); err != nil {
		respCode = http.StatusInternalServerError
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusInternalServerError, msg, err.Error())
		return
	}
	if status := h.nats.NATs().Status(); status != nats.CONNECTED {
		respCode = http.StatusInternalServerError
		respBody = h.GetStdRESTErrorMsg(
			r.Context(), http.StatusInternalServerError, msg, fmt.Sprintf("NATS status %s", status),
		)
		return
	}

	respCode = http.StatusOK
	respBody = h.GetStdRESTSuccessMsg(r.Context())
}

// ReadyHandler Wrapper around Ready
func (h APIRestRelayAdminHandler) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Ready(w, r)
	}
}
