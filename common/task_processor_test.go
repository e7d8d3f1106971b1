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

package common

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTaskProcessorDemux(t *testing.T) {
	assert := assert.New(t)

	wg := sync.WaitGroup{}
	defer wg.Wait()
	ctxt, cancel := context.WithCancel(context.Background())
	defer cancel()
	uut, err := GetNewTaskProcessorInstance("testing", 4, ctxt)
	assert.Nil(err)

	type taskA struct {
		value int
	}
	type taskB struct{}

	seen := make(chan int, 4)
	assert.Nil(uut.AddToTaskExecutionMap(
		reflect.TypeOf(taskA{}), func(p interface{}) error {
			param, ok := p.(taskA)
			assert.True(ok)
			seen <- param.value
			return nil
		},
	))

	assert.Nil(uut.StartEventLoop(&wg))
	defer func() {
		assert.Nil(uut.StopEventLoop())
	}()

	for idx := 0; idx < 3; idx++ {
		assert.Nil(uut.Submit(ctxt, taskA{value: idx}))
	}
	// Unmapped types are logged and dropped, never block the loop
	assert.Nil(uut.Submit(ctxt, taskB{}))
	assert.Nil(uut.Submit(ctxt, taskA{value: 3}))

	collected := []int{}
	for idx := 0; idx < 4; idx++ {
		select {
		case value := <-seen:
			collected = append(collected, value)
		case <-time.After(time.Second):
			assert.FailNow("timed out waiting for task execution")
		}
	}
	// Serial execution preserves submit order
	assert.Equal([]int{0, 1, 2, 3}, collected)
}

func TestTaskProcessorSubmitAfterStop(t *testing.T) {
	assert := assert.New(t)

	wg := sync.WaitGroup{}
	defer wg.Wait()
	ctxt, cancel := context.WithCancel(context.Background())
	defer cancel()
	uut, err := GetNewTaskProcessorInstance("testing", 1, ctxt)
	assert.Nil(err)

	type task struct{}
	assert.Nil(uut.AddToTaskExecutionMap(
		reflect.TypeOf(task{}), func(p interface{}) error { return nil },
	))
	assert.Nil(uut.StopEventLoop())

	// The operation context is gone and nothing drains the queue, so
	// submission must fail once the buffer fills
	failed := false
	for idx := 0; idx < 4; idx++ {
		if err := uut.Submit(context.Background(), task{}); err != nil {
			failed = true
			break
		}
	}
	assert.True(failed)
}
