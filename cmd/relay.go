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

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Governs-AI/governsai-console-sub002/apis"
	"github.com/Governs-AI/governsai-console-sub002/auth"
	"github.com/Governs-AI/governsai-console-sub002/common"
	"github.com/Governs-AI/governsai-console-sub002/core"
	"github.com/Governs-AI/governsai-console-sub002/dispatch"
	"github.com/Governs-AI/governsai-console-sub002/lifecycle"
	"github.com/Governs-AI/governsai-console-sub002/registry"
	"github.com/Governs-AI/governsai-console-sub002/storage"
	"github.com/apex/log"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// relayLogWrapper io.Writer adapter feeding REST access logs into apex
type relayLogWrapper struct {
	logTags log.Fields
}

func (l relayLogWrapper) Write(p []byte) (n int, err error) {
	log.WithFields(l.logTags).Infof("%s", p)
	return len(p), nil
}

// RunRelayServer run the decision stream relay server
func RunRelayServer(
	runtimeContext context.Context,
	config *common.RelayServerConfig,
	storeParam storage.SQLConnectParams,
	tokenSecret string,
	instance string,
	natsClient *core.NatsClient,
	wg *sync.WaitGroup,
) error {
	logTags := log.Fields{
		"module":    "cmd",
		"component": "relay",
		"instance":  instance,
	}

	storeTimeout := time.Second * time.Duration(config.Auth.StoreTimeout)

	// -------------------------------------------------------------------
	// Record store and connection registry

	store, err := storage.GetSQLRecordStore(storeParam, instance)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define record store")
		return err
	}

	connRegistry, err := registry.GetConnectionRegistry(instance)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define connection registry")
		return err
	}

	// -------------------------------------------------------------------
	// Authentication

	audit, err := auth.GetAuditRecorder(
		store, config.Auth.AuditQueueLen, storeTimeout, runtimeContext, instance,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define audit recorder")
		return err
	}
	if err := audit.Start(wg); err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to start audit recorder")
		return err
	}
	defer func() {
		if err := audit.Stop(); err != nil {
			log.WithError(err).WithFields(logTags).Error("Unable to stop audit recorder")
		}
	}()

	authenticator, err := auth.GetAuthenticator(
		store, []byte(tokenSecret), storeTimeout, audit, instance,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define authenticator")
		return err
	}

	// -------------------------------------------------------------------
	// Dispatch and lifecycle

	// The dispatcher escalates failed connections into the session manager,
	// which is defined after it
	var manager lifecycle.SessionManager
	teardown := func(connID string, cause error) {
		if manager != nil {
			manager.TeardownSession(connID, cause)
		}
	}

	dispatcher, err := dispatch.GetEventDispatcher(
		connRegistry,
		store,
		time.Millisecond*time.Duration(config.Connection.SendTimeout),
		config.Dispatch.ReplayLimit,
		teardown,
		instance,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define event dispatcher")
		return err
	}

	revocationRx, err := lifecycle.GetRevocationReceiver(
		runtimeContext, natsClient, config.Messaging.RevocationSubject,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define revocation receiver")
		return err
	}

	manager, err = lifecycle.GetSessionManager(
		runtimeContext, connRegistry, dispatcher, revocationRx, config.Connection, instance,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define session manager")
		return err
	}
	if err := manager.Start(wg); err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to start session manager")
		return err
	}

	eventRx, err := dispatch.GetEventReceiver(
		runtimeContext, natsClient, config.Messaging.EventSubject, dispatcher,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define event receiver")
		return err
	}
	if err := eventRx.StartReading(wg); err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to start event receiver")
		return err
	}

	broadcaster, err := lifecycle.GetRevocationBroadcaster(
		natsClient, config.Messaging.RevocationSubject, instance,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define revocation broadcaster")
		return err
	}

	// -------------------------------------------------------------------
	// HTTP API

	adminHandler, err := apis.GetAPIRestRelayAdminHandler(
		connRegistry, dispatcher, store, broadcaster, natsClient, &config.HTTPSetting,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define admin HTTP handler")
		return err
	}

	streamHandler, err := apis.GetAPIRestRelayStreamHandler(
		authenticator, manager, config.Connection, &config.HTTPSetting,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define stream HTTP handler")
		return err
	}

	router := mux.NewRouter()
	mainRouter := apis.RegisterPathPrefix(router, config.Endpoints.PathPrefix, nil)

	_ = apis.RegisterPathPrefix(mainRouter, "/v1/stream", map[string]http.HandlerFunc{
		"get": streamHandler.StreamHandler(),
	})

	_ = apis.RegisterPathPrefix(mainRouter, "/v1/event", map[string]http.HandlerFunc{
		"post": adminHandler.IngestEventHandler(),
	})
	_ = apis.RegisterPathPrefix(mainRouter, "/v1/key/{keyID}/revoke", map[string]http.HandlerFunc{
		"post": adminHandler.RevokeKeyHandler(),
	})
	_ = apis.RegisterPathPrefix(
		mainRouter, "/v1/tenant/{tenantID}/connections", map[string]http.HandlerFunc{
			"get": adminHandler.TenantConnectionsHandler(),
		},
	)
	_ = apis.RegisterPathPrefix(mainRouter, "/v1/info", map[string]http.HandlerFunc{
		"get": adminHandler.InfoHandler(),
	})

	// Health check
	_ = apis.RegisterPathPrefix(mainRouter, "/v1/alive", map[string]http.HandlerFunc{
		"get": adminHandler.AliveHandler(),
	})
	_ = apis.RegisterPathPrefix(mainRouter, "/v1/ready", map[string]http.HandlerFunc{
		"get": adminHandler.ReadyHandler(),
	})

	// Add logging
	lw := relayLogWrapper{logTags: logTags}
	router.Use(func(next http.Handler) http.Handler {
		return handlers.CombinedLoggingHandler(lw, next)
	})

	serverListen := fmt.Sprintf(
		"%s:%d", config.HTTPSetting.Server.ListenOn, config.HTTPSetting.Server.Port,
	)
	httpSrv := &http.Server{
		Addr:        serverListen,
		ReadTimeout: time.Second * time.Duration(config.HTTPSetting.Server.ReadTimeout),
		IdleTimeout: time.Second * time.Duration(config.HTTPSetting.Server.IdleTimeout),
		Handler:     h2c.NewHandler(router, &http2.Server{}),
	}

	// Start the server
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP Server Failure")
		}
	}()

	log.WithFields(logTags).Infof("Started relay server on http://%s", serverListen)

	// ============================================================================

	<-runtimeContext.Done()

	manager.CloseAll(nil)

	// Stop the HTTP server
	{
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			log.WithError(err).Error("Failure during HTTP shutdown")
		}
	}

	return nil
}
