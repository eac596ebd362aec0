// Licensed to Elasticsearch B.V. under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. Elasticsearch B.V. licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package opampclient

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// manualClock only fires timers when a test asks it to. Time comes from a
// clockwork fake clock; timers are tracked here so tests can inspect the
// requested delay and run callbacks synchronously.
type manualClock struct {
	*clockwork.FakeClock

	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

var _ clock = (*manualClock)(nil)

func newManualClock() *manualClock {
	return &manualClock{
		FakeClock: clockwork.NewFakeClockAt(time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)),
	}
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) clockwork.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Chan() <-chan time.Time {
	return nil
}

func (t *manualTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.delay = d
	t.stopped = false
	t.fired = false
	return active
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (c *manualClock) activeTimers() []*manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var active []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			active = append(active, t)
		}
	}
	return active
}

// active returns the only armed timer and fails if there is not exactly one.
func (c *manualClock) active(t *testing.T) *manualTimer {
	t.Helper()
	active := c.activeTimers()
	require.Len(t, active, 1, "expected exactly one armed timer")
	return active[0]
}

// fire advances the clock to the armed timer and runs it synchronously.
func (c *manualClock) fire(t *testing.T) *manualTimer {
	t.Helper()
	timer := c.take(t)
	timer.f()
	return timer
}

// take marks the armed timer as fired without running it, for tests that
// run the callback on their own goroutine.
func (c *manualClock) take(t *testing.T) *manualTimer {
	t.Helper()
	timer := c.active(t)
	c.mu.Lock()
	timer.fired = true
	c.mu.Unlock()
	c.Advance(timer.delay)
	return timer
}

// requireJittered checks that got is within ±10% of want.
func requireJittered(t *testing.T, want, got time.Duration) {
	t.Helper()
	lo := time.Duration(float64(want) * 0.9)
	hi := time.Duration(float64(want) * 1.1)
	require.GreaterOrEqual(t, got, lo, "delay %s below %s", got, lo)
	require.LessOrEqual(t, got, hi, "delay %s above %s", got, hi)
}
