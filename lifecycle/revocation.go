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
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Governs-AI/governsai-console-sub002/common"
	"github.com/Governs-AI/governsai-console-sub002/core"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
)

// RevocationNotice signals that an API key was revoked and any connection
// authenticated with it must be closed.
type RevocationNotice struct {
	// TenantID is the tenant owning the revoked key
	TenantID string `json:"tenant_id" validate:"required"`
	// KeyID is the ID of the revoked API key
	KeyID string `json:"key_id" validate:"required"`
	// RevokedAt is when the key was revoked
	RevokedAt time.Time `json:"revoked_at"`
}

// String toString for RevocationNotice
func (n RevocationNotice) String() string {
	return fmt.Sprintf("REVOKE[%s/%s]", n.TenantID, n.KeyID)
}

// RevocationHandler is the function signature for callback processing a revocation notice
type RevocationHandler func(context.Context, RevocationNotice)

// RevocationReceiver processes key revocation notices broadcast through NATs subjects
type RevocationReceiver interface {
	// SubscribeForNotices start receiving revocation notices
	SubscribeForNotices(wg *sync.WaitGroup, handler RevocationHandler) error
}

// revocationReceiverImpl implements RevocationReceiver
type revocationReceiverImpl struct {
	common.Component
	subject      string
	nats         *core.NatsClient
	subscribed   bool
	subscription *nats.Subscription
	lock         *sync.Mutex
	validate     *validator.Validate
	ctxt         context.Context
}

// GetRevocationReceiver define RevocationReceiver
func GetRevocationReceiver(
	opContext context.Context, natsClient *core.NatsClient, subject string,
) (RevocationReceiver, error) {
	logTags := log.Fields{
		"module":    "lifecycle",
		"component": "revocation-receiver",
		"subject":   subject,
	}
	return &revocationReceiverImpl{
		Component:    common.Component{LogTags: logTags},
		subject:      subject,
		nats:         natsClient,
		subscribed:   false,
		subscription: nil,
		lock:         new(sync.Mutex),
		validate:     validator.New(),
		ctxt:         opContext,
	}, nil
}

// SubscribeForNotices start receiving revocation notices
func (r *revocationReceiverImpl) SubscribeForNotices(
	wg *sync.WaitGroup, handler RevocationHandler,
) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	// Already subscribed
	if r.subscribed {
		return fmt.Errorf("already instructed to subscribe to %s", r.subject)
	}
	r.subscribed = true
	// Subscribe to the revocation channel for updates
	sub, err := r.nats.NATs().Subscribe(r.subject, func(msg *nats.Msg) {
		// Process the message
		var notice RevocationNotice
		if err := json.Unmarshal(msg.Data, &notice); err != nil {
			log.WithError(err).WithFields(r.LogTags).Errorf(
				"Failed to read revocation notice: %s", msg.Data,
			)
			return
		}
		// Validate the message
		if err := r.validate.Struct(&notice); err != nil {
			log.WithError(err).WithFields(r.LogTags).Errorf(
				"Failed to validate revocation notice: %s", msg.Data,
			)
			return
		}
		// Forward the message
		log.WithFields(r.LogTags).Debugf("Received %s", notice.String())
		handler(r.ctxt, notice)
	})
	if err != nil {
		log.WithError(err).WithFields(r.LogTags).Errorf(
			"Failed to subscribe to revocation channel %s", r.subject,
		)
		return err
	}
	r.subscription = sub
	// Handler to automatically un-subscribe once the context is over
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-r.ctxt.Done()
		log.WithFields(r.LogTags).Debugf("Unsubscribing from revocation channel %s", r.subject)
		if err := r.subscription.Unsubscribe(); err != nil {
			log.WithError(err).WithFields(r.LogTags).Errorf(
				"Error occurred when unsubscribing from revocation channel %s", r.subject,
			)
		}
		log.WithFields(r.LogTags).Infof("Unsubscribed from revocation channel %s", r.subject)
	}()
	return nil
}

// ==============================================================================

// RevocationBroadcaster broadcasts key revocation notices through NATs subjects
type RevocationBroadcaster interface {
	// BroadcastRevocation broadcast a key revocation notice
	BroadcastRevocation(ctxt context.Context, notice RevocationNotice) error
}

// revocationBroadcasterImpl implements RevocationBroadcaster
type revocationBroadcasterImpl struct {
	common.Component
	subject  string
	nats     *core.NatsClient
	validate *validator.Validate
}

// GetRevocationBroadcaster define RevocationBroadcaster
func GetRevocationBroadcaster(
	natsClient *core.NatsClient, subject string, instance string,
) (RevocationBroadcaster, error) {
	logTags := log.Fields{
		"module":    "lifecycle",
		"component": "revocation-broadcaster",
		"subject":   subject,
		"instance":  instance,
	}
	return &revocationBroadcasterImpl{
		Component: common.Component{LogTags: logTags},
		subject:   subject,
		nats:      natsClient,
		validate:  validator.New(),
	}, nil
}

// BroadcastRevocation broadcast a key revocation notice
func (t *revocationBroadcasterImpl) BroadcastRevocation(
	ctxt context.Context, notice RevocationNotice,
) error {
	localLogTags, err := common.UpdateLogTags(ctxt, t.LogTags)
	if err != nil {
		log.WithError(err).WithFields(t.LogTags).Errorf("Failed to update logtags")
		return err
	}
	if err := t.validate.Struct(&notice); err != nil {
		log.WithError(err).WithFields(localLogTags).Error("Revocation notice invalid")
		return err
	}
	msg, err := json.Marshal(&notice)
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Errorf("Unable to serialize %s", notice)
		return err
	}
	log.WithFields(localLogTags).Debugf("Sending %s on %s", notice, t.subject)
	if err := t.nats.NATs().Publish(t.subject, msg); err != nil {
		log.WithError(err).WithFields(localLogTags).Errorf(
			"Failed to send %s on %s", notice, t.subject,
		)
		return err
	}
	log.WithFields(localLogTags).Debugf("Sent %s on %s", notice, t.subject)
	return nil
}
