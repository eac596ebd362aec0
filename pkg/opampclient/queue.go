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
	"slices"

	"github.com/open-telemetry/opamp-go/protobufs"
)

// pendingReport is something the client still has to tell the server. The
// interface is sealed: every variant lives in this file and knows how to
// merge its state into an outbound message.
type pendingReport interface {
	mergeInto(msg *protobufs.AgentToServer, st *reportState)
	String() string
}

// reportState is a read-only view of the client state at build time.
// Protobuf values referenced here are never mutated after being stored, so
// sharing them with the outbound message is safe.
type reportState struct {
	instanceUID        []byte
	capabilities       protobufs.AgentCapabilities
	agentDescription   *protobufs.AgentDescription
	remoteConfigStatus *protobufs.RemoteConfigStatus
}

type reportFullState struct{}

func (reportFullState) mergeInto(msg *protobufs.AgentToServer, st *reportState) {
	msg.InstanceUid = st.instanceUID
	msg.Capabilities = uint64(st.capabilities)
	msg.AgentDescription = st.agentDescription
	if st.capabilities&protobufs.AgentCapabilities_AgentCapabilities_ReportsRemoteConfig != 0 {
		msg.RemoteConfigStatus = st.remoteConfigStatus
	}
}

func (reportFullState) String() string { return "ReportFullState" }

type reportAgentDescription struct{}

func (reportAgentDescription) mergeInto(msg *protobufs.AgentToServer, st *reportState) {
	msg.AgentDescription = st.agentDescription
}

func (reportAgentDescription) String() string { return "AgentDescription" }

type reportRemoteConfigStatus struct{}

func (reportRemoteConfigStatus) mergeInto(msg *protobufs.AgentToServer, st *reportState) {
	msg.RemoteConfigStatus = st.remoteConfigStatus
}

func (reportRemoteConfigStatus) String() string { return "RemoteConfigStatus" }

// pendingQueue is an insertion ordered set of reports.
type pendingQueue struct {
	items []pendingReport
}

func (q *pendingQueue) push(r pendingReport) {
	if !slices.Contains(q.items, r) {
		q.items = append(q.items, r)
	}
}

// drain empties the queue and returns what it held.
func (q *pendingQueue) drain() []pendingReport {
	items := q.items
	q.items = nil
	return items
}

// restore puts reports back at the front, ahead of anything queued since
// they were drained.
func (q *pendingQueue) restore(reports []pendingReport) {
	merged := make([]pendingReport, 0, len(reports)+len(q.items))
	for _, r := range reports {
		if !slices.Contains(merged, r) {
			merged = append(merged, r)
		}
	}
	for _, r := range q.items {
		if !slices.Contains(merged, r) {
			merged = append(merged, r)
		}
	}
	q.items = merged
}

func (q *pendingQueue) len() int {
	return len(q.items)
}
