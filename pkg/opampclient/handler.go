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
	"bytes"
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/open-telemetry/opamp-go/protobufs"
	"go.uber.org/zap"
)

// handleServerMessage applies a successfully received message to the
// client state. Called with the lock held.
func (c *Client) handleServerMessage(msg *protobufs.ServerToAgent) {
	if !bytes.Equal(msg.GetInstanceUid(), c.instanceUIDBytes) {
		c.logger.Debug("Ignoring ServerToAgent message for another instance",
			zap.Stringer("instance_uid", c.instanceUID),
			zap.String("message_instance_uid", hex.EncodeToString(msg.GetInstanceUid())),
		)
		return
	}

	if caps := msg.GetCapabilities(); caps != c.serverCapabilities {
		c.serverCapabilities = caps
		acceptsRemoteConfig := c.capabilities&protobufs.AgentCapabilities_AgentCapabilities_AcceptsRemoteConfig != 0
		offersRemoteConfig := caps&uint64(protobufs.ServerCapabilities_ServerCapabilities_OffersRemoteConfig) != 0
		if acceptsRemoteConfig && !offersRemoteConfig && !c.noRemoteConfigNoted {
			c.noRemoteConfigNoted = true
			c.logger.Debug("Agent accepts remote config but the OpAMP server does not offer it",
				zap.Uint64("server_capabilities", caps))
		}
	}

	if msg.GetFlags()&uint64(protobufs.ServerToAgentFlags_ServerToAgentFlags_ReportFullState) != 0 {
		c.queue.push(reportFullState{})
	}

	if rc := msg.GetRemoteConfig(); rc != nil &&
		c.capabilities&protobufs.AgentCapabilities_AgentCapabilities_AcceptsRemoteConfig != 0 {
		c.enqueueNotification(&MessageData{RemoteConfig: rc})
	}

	if ident := msg.GetAgentIdentification(); ident != nil && len(ident.GetNewInstanceUid()) > 0 {
		uid, err := uuid.FromBytes(ident.GetNewInstanceUid())
		if err != nil {
			c.logger.Error("Ignoring invalid new instance uid from server", zap.Error(err))
			return
		}
		c.logger.Info("OpAMP server assigned a new instance uid",
			zap.Stringer("old_instance_uid", c.instanceUID),
			zap.Stringer("new_instance_uid", uid),
		)
		c.instanceUID = uid
		c.instanceUIDBytes = bytes.Clone(uid[:])
	}
}
