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

package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Governs-AI/governsai-console-sub002/common"
	"github.com/Governs-AI/governsai-console-sub002/core"
	"github.com/apex/log"
	"github.com/nats-io/nats.go"
)

// EventReceiver ingests decision events broadcast on a NATS subject and
// hands them to the dispatcher.
type EventReceiver interface {
	// StartReading start receiving events
	StartReading(wg *sync.WaitGroup) error
}

// eventReceiverImpl implements EventReceiver
type eventReceiverImpl struct {
	common.Component
	nats         *core.NatsClient
	subject      string
	dispatcher   EventDispatcher
	subscribed   bool
	subscription *nats.Subscription
	lock         *sync.Mutex
	ctxt         context.Context
}

// GetEventReceiver define a new NATS event receiver
func GetEventReceiver(
	opContext context.Context,
	natsClient *core.NatsClient,
	subject string,
	dispatcher EventDispatcher,
) (EventReceiver, error) {
	logTags := log.Fields{
		"module":    "dispatch",
		"component": "event-receiver",
		"subject":   subject,
	}
	return &eventReceiverImpl{
		Component:  common.Component{LogTags: logTags},
		nats:       natsClient,
		subject:    subject,
		dispatcher: dispatcher,
		subscribed: false,
		lock:       new(sync.Mutex),
		ctxt:       opContext,
	}, nil
}

// StartReading start receiving events
func (r *eventReceiverImpl) StartReading(wg *sync.WaitGroup) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.subscribed {
		return fmt.Errorf("already instructed to subscribe to %s", r.subject)
	}
	r.subscribed = true
	sub, err := r.nats.NATs().Subscribe(r.subject, func(msg *nats.Msg) {
		var event common.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.WithError(err).WithFields(r.LogTags).Errorf(
				"Failed to read event message: %s", msg.Data,
			)
			return
		}
		log.WithFields(r.LogTags).Debugf("Received %s", event.String())
		if err := r.dispatcher.Dispatch(r.ctxt, event); err != nil {
			log.WithError(err).WithFields(r.LogTags).Errorf(
				"Failed to dispatch %s", event.String(),
			)
		}
	})
	if err != nil {
		log.WithError(err).WithFields(r.LogTags).Errorf(
			"Failed to subscribe to event subject %s", r.subject,
		)
		return err
	}
	r.subscription = sub
	// Automatically unsubscribe once the context is over
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-r.ctxt.Done()
		log.WithFields(r.LogTags).Debugf("Unsubscribing from event subject %s", r.subject)
		if err := r.subscription.Unsubscribe(); err != nil {
			log.WithError(err).WithFields(r.LogTags).Errorf(
				"Error occurred when unsubscribing from event subject %s", r.subject,
			)
		}
		log.WithFields(r.LogTags).Infof("Unsubscribed from event subject %s", r.subject)
	}()
	return nil
}
