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
	"sync"
	"time"

	"github.com/apex/log"
)

// TimeoutHandler handler callback on timeout
type TimeoutHandler func() error

// IntervalTimer triggers a handler at fixed intervals. Drives session
// heartbeats and liveness policing.
type IntervalTimer interface {
	// Start trigger the handler after each interval. One-shot timers stop
	// after the first trigger.
	Start(interval time.Duration, handler TimeoutHandler, oneShot bool) error
	// Stop stop the timer
	Stop() error
}

// tickerTimer implements IntervalTimer on top of time.Ticker
type tickerTimer struct {
	Component
	parentCtxt context.Context
	lock       sync.Mutex
	halt       context.CancelFunc
	tracker    *sync.WaitGroup
}

// GetIntervalTimerInstance create new interval timer instance
func GetIntervalTimerInstance(
	name string, rootCtxt context.Context, wg *sync.WaitGroup,
) (IntervalTimer, error) {
	instance := &tickerTimer{parentCtxt: rootCtxt, tracker: wg}
	instance.LogTags = log.Fields{
		"module": "common", "component": "interval-timer", "instance": name,
	}
	return instance, nil
}

// Start start the interval timer
func (it *tickerTimer) Start(
	interval time.Duration, handler TimeoutHandler, oneShot bool,
) error {
	it.lock.Lock()
	defer it.lock.Unlock()
	log.WithFields(it.LogTags).Infof("Arming timer at period %s", interval)
	runCtxt, halt := context.WithCancel(it.parentCtxt)
	it.halt = halt
	it.tracker.Add(1)
	go it.run(runCtxt, interval, handler, oneShot)
	return nil
}

// run the trigger loop. Exits on context cancel, and after the first trigger
// when one-shot.
func (it *tickerTimer) run(
	runCtxt context.Context, interval time.Duration, handler TimeoutHandler, oneShot bool,
) {
	defer it.tracker.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-runCtxt.Done():
			log.WithFields(it.LogTags).Info("Timer disarmed")
			return
		case <-ticker.C:
			if err := handler(); err != nil {
				log.WithError(err).WithFields(it.LogTags).Error("Trigger handler returned error")
			}
			if oneShot {
				log.WithFields(it.LogTags).Info("One-shot trigger delivered")
				return
			}
		}
	}
}

// Stop stop the interval timer
func (it *tickerTimer) Stop() error {
	it.lock.Lock()
	defer it.lock.Unlock()
	if it.halt == nil {
		return nil
	}
	it.halt()
	it.halt = nil
	return nil
}
