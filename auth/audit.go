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

package auth

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/Governs-AI/governsai-console-sub002/common"
	"github.com/Governs-AI/governsai-console-sub002/storage"
	"github.com/apex/log"
)

// AuditRecorder fire-and-forget recorder of authentication outcomes. Record
// never fails the caller; entries which can not be queued or persisted are
// logged and dropped.
type AuditRecorder interface {
	// Record queue one audit entry for persistence
	Record(entry storage.AuthAuditEntry)
	// Start start the background persistence loop
	Start(wg *sync.WaitGroup) error
	// Stop stop the background persistence loop
	Stop() error
}

// auditRecorderImpl implements AuditRecorder
type auditRecorderImpl struct {
	common.Component
	store         storage.RecordStore
	tp            common.TaskProcessor
	storeTimeout  time.Duration
	submitTimeout time.Duration
}

// GetAuditRecorder define a new audit recorder
func GetAuditRecorder(
	store storage.RecordStore,
	queueLen int,
	storeTimeout time.Duration,
	rootCtxt context.Context,
	instance string,
) (AuditRecorder, error) {
	logTags := log.Fields{
		"module":    "auth",
		"component": "audit-recorder",
		"instance":  instance,
	}
	tp, err := common.GetNewTaskProcessorInstance(
		fmt.Sprintf("auth-audit/%s", instance), queueLen, rootCtxt,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define task processor")
		return nil, err
	}
	recorder := auditRecorderImpl{
		Component:     common.Component{LogTags: logTags},
		store:         store,
		tp:            tp,
		storeTimeout:  storeTimeout,
		submitTimeout: time.Millisecond * 100,
	}
	if err := tp.AddToTaskExecutionMap(
		reflect.TypeOf(storage.AuthAuditEntry{}), recorder.processAuditEntry,
	); err != nil {
		return nil, err
	}
	return &recorder, nil
}

// Record queue one audit entry for persistence
func (r *auditRecorderImpl) Record(entry storage.AuthAuditEntry) {
	ctxt, cancel := context.WithTimeout(context.Background(), r.submitTimeout)
	defer cancel()
	if err := r.tp.Submit(ctxt, entry); err != nil {
		log.WithError(err).WithFields(r.LogTags).Warn("Dropped auth audit entry")
	}
}

// processAuditEntry persist one audit entry
func (r *auditRecorderImpl) processAuditEntry(param interface{}) error {
	entry, ok := param.(storage.AuthAuditEntry)
	if !ok {
		return fmt.Errorf(
			"can not process unknown type %s for audit entry", reflect.TypeOf(param),
		)
	}
	ctxt, cancel := context.WithTimeout(context.Background(), r.storeTimeout)
	defer cancel()
	return r.store.RecordAuthAudit(ctxt, entry)
}

// Start start the background persistence loop
func (r *auditRecorderImpl) Start(wg *sync.WaitGroup) error {
	return r.tp.StartEventLoop(wg)
}

// Stop stop the background persistence loop
func (r *auditRecorderImpl) Stop() error {
	return r.tp.StopEventLoop()
}
