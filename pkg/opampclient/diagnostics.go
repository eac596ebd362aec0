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

	"github.com/google/uuid"
	"github.com/open-telemetry/opamp-go/protobufs"
)

// SendScheduledEvent is emitted whenever a send timer is armed.
type SendScheduledEvent struct {
	Time         time.Time
	InstanceUID  uuid.UUID
	Delay        time.Duration
	FailureCount int
}

// SendSucceededEvent is emitted after a successful exchange.
type SendSucceededEvent struct {
	Time        time.Time
	InstanceUID uuid.UUID
	Outbound    *protobufs.AgentToServer
	Inbound     *protobufs.ServerToAgent
}

// SendFailedEvent is emitted after a failed exchange. RetryDelay is only
// meaningful when HasRetryDelay is true, i.e. the server suggested one.
type SendFailedEvent struct {
	Time          time.Time
	InstanceUID   uuid.UUID
	Outbound      *protobufs.AgentToServer
	Err           error
	RetryDelay    time.Duration
	HasRetryDelay bool
}

// DiagnosticSink observes the send cycle of a client. Methods are called
// with the client lock held and must not call back into the client.
type DiagnosticSink interface {
	SendScheduled(SendScheduledEvent)
	SendSucceeded(SendSucceededEvent)
	SendFailed(SendFailedEvent)
}

// NopDiagnosticSink discards all events.
type NopDiagnosticSink struct{}

func (NopDiagnosticSink) SendScheduled(SendScheduledEvent) {}
func (NopDiagnosticSink) SendSucceeded(SendSucceededEvent) {}
func (NopDiagnosticSink) SendFailed(SendFailedEvent)       {}

var _ DiagnosticSink = NopDiagnosticSink{}
