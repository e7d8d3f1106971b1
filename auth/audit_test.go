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
	"sync"
	"testing"
	"time"

	"github.com/Governs-AI/governsai-console-sub002/mocks"
	"github.com/Governs-AI/governsai-console-sub002/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestAuditRecorder(t *testing.T) {
	assert := assert.New(t)

	wg := sync.WaitGroup{}
	defer wg.Wait()
	utCtxt, cancel := context.WithCancel(context.Background())
	defer cancel()

	mockStore := new(mocks.RecordStore)
	uut, err := GetAuditRecorder(mockStore, 4, time.Second, utCtxt, "ut-audit")
	assert.Nil(err)
	assert.Nil(uut.Start(&wg))
	defer func() {
		assert.Nil(uut.Stop())
	}()

	persisted := make(chan storage.AuthAuditEntry, 4)
	mockStore.On("RecordAuthAudit", mock.Anything, mock.Anything).Run(
		func(args mock.Arguments) {
			persisted <- args.Get(1).(storage.AuthAuditEntry)
		},
	).Return(nil).Once()

	entry := storage.AuthAuditEntry{
		TenantID: "T1", UserID: "U1", Outcome: "success", At: time.Now().UTC(),
	}
	uut.Record(entry)

	select {
	case stored := <-persisted:
		assert.Equal("T1", stored.TenantID)
		assert.Equal("success", stored.Outcome)
	case <-time.After(time.Second):
		assert.FailNow("timed out waiting for audit persistence")
	}

	// Persistence failures are swallowed, later entries still flow
	mockStore.On("RecordAuthAudit", mock.Anything, mock.Anything).Return(
		fmt.Errorf("dummy store failure"),
	).Once()
	mockStore.On("RecordAuthAudit", mock.Anything, mock.Anything).Run(
		func(args mock.Arguments) {
			persisted <- args.Get(1).(storage.AuthAuditEntry)
		},
	).Return(nil).Once()
	uut.Record(storage.AuthAuditEntry{Outcome: "failure", At: time.Now().UTC()})
	uut.Record(storage.AuthAuditEntry{TenantID: "T2", Outcome: "success", At: time.Now().UTC()})

	select {
	case stored := <-persisted:
		assert.Equal("T2", stored.TenantID)
	case <-time.After(time.Second):
		assert.FailNow("timed out waiting for audit persistence")
	}
}
