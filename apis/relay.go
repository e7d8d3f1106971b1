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
	"net/http"
	"strings"
	"time"

	"github.com/Governs-AI/governsai-console-sub002/auth"
	"github.com/Governs-AI/governsai-console-sub002/common"
	"github.com/Governs-AI/governsai-console-sub002/lifecycle"
	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/gorilla/websocket"
)

// APIRestRelayStreamHandler handler for the relay websocket endpoint
type APIRestRelayStreamHandler struct {
	goutils.RestAPIHandler
	authenticator auth.Authenticator
	manager       lifecycle.SessionManager
	upgrader      websocket.Upgrader
	writeTimeout  time.Duration
}

// GetAPIRestRelayStreamHandler define APIRestRelayStreamHandler
func GetAPIRestRelayStreamHandler(
	authenticator auth.Authenticator,
	manager lifecycle.SessionManager,
	connCfg common.ConnectionConfig,
	httpConfig *common.HTTPConfig,
) (APIRestRelayStreamHandler, error) {
	logTags := log.Fields{
		"module":    "rest",
		"component": "relay-stream",
	}
	return APIRestRelayStreamHandler{
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
		authenticator: authenticator,
		manager:       manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser dashboard clients connect cross-origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		writeTimeout: time.Millisecond * time.Duration(connCfg.WriteTimeout),
	}, nil
}

// credentialFromRequest read the connection credential off the upgrade request
func credentialFromRequest(r *http.Request) auth.Credential {
	cred := auth.Credential{TenantID: r.URL.Query().Get("tenant")}
	if apiKey := r.URL.Query().Get("api_key"); apiKey != "" {
		cred.APIKey = apiKey
		return cred
	}
	if token := r.URL.Query().Get("token"); token != "" {
		cred.SessionToken = token
		return cred
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		cred.SessionToken = strings.TrimPrefix(header, "Bearer ")
	}
	return cred
}

// Stream godoc
// @Summary Open a relay event stream
// @Description Upgrades to a websocket carrying the relay wire protocol
// @tags Relay
// @Param Authorization header string false "Bearer session token"
// @Param api_key query string false "API key credential"
// @Param token query string false "Session token credential"
// @Param tenant query string false "Expected tenant ID of the credential"
// @Success 101 {string} string "protocol switch"
// @Failure 400 {string} string "error"
// @Router /v1/stream [get]
func (h APIRestRelayStreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())

	cred := credentialFromRequest(r)

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Error("Websocket upgrade failed")
		return
	}

	// Authenticate after the upgrade so the failure reaches the client as a
	// structured ERROR frame before the transport closes
	identity, err := h.authenticator.Authenticate(r.Context(), cred)
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Info("Connection authentication failed")
		h.rejectSocket(localLogTags, socket, common.CodeOfError(err), err.Error())
		return
	}

	session, err := h.manager.StartSession(identity, auth.ChannelAllowList(identity), socket)
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Error("Unable to start session")
		h.rejectSocket(
			localLogTags, socket, common.ErrorCodeInternalError, "unable to start session",
		)
		return
	}
	log.WithFields(localLogTags).Infof(
		"Opened session %s for %s/%s", session.ID(), identity.TenantID, identity.UserID,
	)
}

// rejectSocket send a final ERROR frame and close the transport
func (h APIRestRelayStreamHandler) rejectSocket(
	logTags log.Fields, socket *websocket.Conn, code common.ErrorCode, detail string,
) {
	msg := common.NewErrorMessage(code, detail)
	serialized, err := json.Marshal(&msg)
	if err == nil {
		if err := socket.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err == nil {
			if err := socket.WriteMessage(websocket.TextMessage, serialized); err != nil {
				log.WithError(err).WithFields(logTags).Debug("Unable to send rejection frame")
			}
		}
	}
	if err := socket.Close(); err != nil {
		log.WithError(err).WithFields(logTags).Debug("Transport close failed")
	}
}

// StreamHandler Wrapper around Stream
func (h APIRestRelayStreamHandler) StreamHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Stream(w, r)
	}
}
