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
	"time"

	"github.com/Governs-AI/governsai-console-sub002/common"
	"github.com/Governs-AI/governsai-console-sub002/registry"
	"github.com/Governs-AI/governsai-console-sub002/storage"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
)

// TeardownTrigger callback marking a connection for teardown after a
// delivery failure. Wired to the lifecycle manager.
type TeardownTrigger func(connID string, cause error)

// EventDispatcher fans out decision events to subscribed connections.
// Delivery is at-least-once per subscribed connection; a failed or slow
// connection is marked for teardown and skipped, never blocking delivery to
// the remaining subscribers.
type EventDispatcher interface {
	// Dispatch deliver one event to every connection subscribed to its
	// channel, per the registry snapshot at dispatch time
	Dispatch(ctxt context.Context, event common.Event) error
	// Replay fetch events on a channel after sinceCursor from the record
	// store. The relay itself holds no event history.
	Replay(ctxt context.Context, channel, sinceCursor string) ([]common.Event, error)
}

// eventDispatcherImpl implements EventDispatcher
type eventDispatcherImpl struct {
	common.Component
	registry    registry.ConnectionRegistry
	store       storage.RecordStore
	validate    *validator.Validate
	sendTimeout time.Duration
	replayLimit int
	teardown    TeardownTrigger
}

// GetEventDispatcher define a new event dispatcher
func GetEventDispatcher(
	reg registry.ConnectionRegistry,
	store storage.RecordStore,
	sendTimeout time.Duration,
	replayLimit int,
	teardown TeardownTrigger,
	instance string,
) (EventDispatcher, error) {
	logTags := log.Fields{
		"module":    "dispatch",
		"component": "event-dispatcher",
		"instance":  instance,
	}
	return &eventDispatcherImpl{
		Component:   common.Component{LogTags: logTags},
		registry:    reg,
		store:       store,
		validate:    validator.New(),
		sendTimeout: sendTimeout,
		replayLimit: replayLimit,
		teardown:    teardown,
	}, nil
}

// Dispatch deliver one event to every subscribed connection
func (d *eventDispatcherImpl) Dispatch(ctxt context.Context, event common.Event) error {
	if err := d.validate.Struct(&event); err != nil {
		log.WithError(err).WithFields(d.LogTags).Errorf("Rejecting malformed event")
		return err
	}
	if err := common.ValidateChannelName(event.Channel); err != nil {
		log.WithError(err).WithFields(d.LogTags).Errorf("Rejecting event with bad channel")
		return err
	}

	subscribers := d.registry.Subscribers(event.Channel)
	if len(subscribers) == 0 {
		log.WithFields(d.LogTags).Debugf("No subscribers for %s", event.String())
		return nil
	}

	msg := common.NewEventMessage(event)
	for _, conn := range subscribers {
		sendCtxt, cancel := context.WithTimeout(ctxt, d.sendTimeout)
		err := conn.Sink().Send(sendCtxt, msg)
		cancel()
		if err == nil {
			continue
		}
		// Skip-and-continue. The failing connection is handed to the
		// lifecycle manager; the event producer never sees this failure.
		log.WithError(err).WithFields(d.LogTags).Warnf(
			"Failed to deliver %s to connection %s", event.String(), conn.ID,
		)
		cause := common.WrapRelayError(
			common.ErrorCodeTransportWriteFailure,
			"event delivery failed",
			err,
		)
		if err == context.DeadlineExceeded {
			cause = common.WrapRelayError(
				common.ErrorCodeConnectionTimeout,
				"event delivery timed out",
				err,
			)
		}
		if d.teardown != nil {
			d.teardown(conn.ID, cause)
		}
	}
	return nil
}

// Replay fetch events on a channel after sinceCursor from the record store
func (d *eventDispatcherImpl) Replay(
	ctxt context.Context, channel, sinceCursor string,
) ([]common.Event, error) {
	if err := common.ValidateChannelName(channel); err != nil {
		return nil, err
	}
	events, err := d.store.ReplayEvents(ctxt, channel, sinceCursor, d.replayLimit)
	if err != nil {
		log.WithError(err).WithFields(d.LogTags).Errorf(
			"Replay of %s since %s failed", channel, sinceCursor,
		)
		return nil, err
	}
	log.WithFields(d.LogTags).Debugf(
		"Replay of %s since %s returned %d events", channel, sinceCursor, len(events),
	)
	return events, nil
}
