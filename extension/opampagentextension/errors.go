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

package opampagentextension // import "github.com/elastic/opentelemetry-collector-components/extension/opampagentextension"

import "errors"

var (
	errMissingEndpoint           = errors.New("endpoint is required")
	errInvalidEndpointScheme     = errors.New("endpoint scheme must be http or https")
	errInvalidHeartbeatInterval  = errors.New("heartbeat_interval must not be negative")
	errInvalidTimeout            = errors.New("timeouts must not be negative")
	errRemoteConfigNotReportable = errors.New("accepts_remote_config requires reports_remote_config")
)
