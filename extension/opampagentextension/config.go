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

import (
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/open-telemetry/opamp-go/protobufs"
	"go.opentelemetry.io/collector/component"
	"go.opentelemetry.io/collector/config/confighttp"

	"github.com/elastic/opentelemetry-collector-components/pkg/opampclient"
)

type Config struct {
	confighttp.ClientConfig `mapstructure:",squash"`

	// InstanceUID is the OpAMP instance uid, as a UUID string. A UUIDv7 is
	// generated on start when empty.
	InstanceUID string `mapstructure:"instance_uid"`

	// HeartbeatInterval is how often the agent reports while idle. It is
	// clamped to [100ms, 24h]; zero selects the 30s default.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`

	// HeadersTimeout bounds the wait for response headers and BodyTimeout
	// the read of the response body. Zero selects 10s.
	HeadersTimeout time.Duration `mapstructure:"headers_timeout"`
	BodyTimeout    time.Duration `mapstructure:"body_timeout"`

	Capabilities CapabilitiesConfig `mapstructure:"capabilities"`

	AgentDescription AgentDescriptionConfig `mapstructure:"agent_description"`
}

type CapabilitiesConfig struct {
	// AcceptsRemoteConfig enables applying central configuration.
	AcceptsRemoteConfig bool `mapstructure:"accepts_remote_config"`

	// ReportsRemoteConfig enables reporting the central configuration
	// status back to the server.
	ReportsRemoteConfig bool `mapstructure:"reports_remote_config"`
}

type AgentDescriptionConfig struct {
	// NonIdentifyingAttributes are added to the non-identifying attributes
	// of the agent description, overriding the detected host attributes.
	NonIdentifyingAttributes map[string]string `mapstructure:"non_identifying_attributes"`

	// IncludeHostInfo adds host attributes detected at start.
	IncludeHostInfo bool `mapstructure:"include_host_info"`
}

var _ component.Config = (*Config)(nil)

func createDefaultConfig() component.Config {
	return &Config{
		ClientConfig:      confighttp.NewDefaultClientConfig(),
		HeartbeatInterval: opampclient.DefaultHeartbeatInterval,
		HeadersTimeout:    opampclient.DefaultHeadersTimeout,
		BodyTimeout:       opampclient.DefaultBodyTimeout,
		Capabilities: CapabilitiesConfig{
			AcceptsRemoteConfig: true,
			ReportsRemoteConfig: true,
		},
		AgentDescription: AgentDescriptionConfig{
			IncludeHostInfo: true,
		},
	}
}

// Validate validates the Config.
func (cfg *Config) Validate() error {
	if cfg.Endpoint == "" {
		return errMissingEndpoint
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", cfg.Endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q", errInvalidEndpointScheme, cfg.Endpoint)
	}
	if cfg.InstanceUID != "" {
		if _, err := uuid.Parse(cfg.InstanceUID); err != nil {
			return fmt.Errorf("instance_uid: %w", err)
		}
	}
	if cfg.HeartbeatInterval < 0 {
		return errInvalidHeartbeatInterval
	}
	if cfg.HeadersTimeout < 0 || cfg.BodyTimeout < 0 {
		return errInvalidTimeout
	}
	if cfg.Capabilities.AcceptsRemoteConfig && !cfg.Capabilities.ReportsRemoteConfig {
		return errRemoteConfigNotReportable
	}
	return nil
}

func (cfg *CapabilitiesConfig) capabilities() protobufs.AgentCapabilities {
	var caps protobufs.AgentCapabilities
	if cfg.AcceptsRemoteConfig {
		caps |= protobufs.AgentCapabilities_AgentCapabilities_AcceptsRemoteConfig
	}
	if cfg.ReportsRemoteConfig {
		caps |= protobufs.AgentCapabilities_AgentCapabilities_ReportsRemoteConfig
	}
	return caps
}
