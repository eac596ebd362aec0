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

// Package opampclient implements an OpAMP agent client speaking the plain
// HTTP transport of the protocol.
//
// The client keeps a single logical control loop with the management
// server: local state changes (agent description, remote config status) are
// queued, debounced and merged into one AgentToServer message; responses are
// applied back onto the client state; failures are retried with jittered
// exponential backoff or with the delay suggested by the server. At most one
// request is in flight at any time and at most one send is scheduled.
package opampclient // import "github.com/elastic/opentelemetry-collector-components/pkg/opampclient"
