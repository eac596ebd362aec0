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

package opampclient // import "github.com/elastic/opentelemetry-collector-components/pkg/opampclient"

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// sendScheduler owns the single send timer of a client. It is not safe for
// concurrent use; the client serializes access with its own lock.
type sendScheduler struct {
	clock clock

	timer  clockwork.Timer
	fireAt time.Time
	// gen identifies the armed timer so that a callback which lost the race
	// against cancel or a re-arm can tell it is stale.
	gen uint64
}

func newSendScheduler(c clock) *sendScheduler {
	return &sendScheduler{clock: c}
}

// arm schedules f to run after delay. The existing timer is replaced only
// when override is set, when no timer is armed, or when the new timer would
// fire sooner. It reports whether a timer was armed.
func (s *sendScheduler) arm(delay time.Duration, override bool, f func(gen uint64)) bool {
	if delay < 0 {
		delay = 0
	}
	fireAt := s.clock.Now().Add(delay)
	if s.timer != nil && !override && !fireAt.Before(s.fireAt) {
		return false
	}
	s.cancel()
	s.gen++
	gen := s.gen
	s.fireAt = fireAt
	s.timer = s.clock.AfterFunc(delay, func() { f(gen) })
	return true
}

// cancel stops the armed timer, if any.
func (s *sendScheduler) cancel() {
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	s.timer = nil
	s.fireAt = time.Time{}
	s.gen++
}

// fire is called from a timer callback. It reports whether gen is still the
// armed timer and, if so, forgets it.
func (s *sendScheduler) fire(gen uint64) bool {
	if s.timer == nil || gen != s.gen {
		return false
	}
	s.timer = nil
	s.fireAt = time.Time{}
	return true
}

func (s *sendScheduler) armed() bool {
	return s.timer != nil
}

// backoffDelay returns the un-jittered delay after failures consecutive
// failed exchanges: 30s for the first, growing cubically, capped at 300s.
func backoffDelay(failures int) time.Duration {
	n := min(max(failures, 0), 10)
	secs := min(300, n*n*n+29)
	secs = max(secs, 30)
	return time.Duration(secs) * time.Second
}
