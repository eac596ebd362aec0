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
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/open-telemetry/opamp-go/protobufs"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	MinHeartbeatInterval     = 100 * time.Millisecond
	MaxHeartbeatInterval     = 24 * time.Hour

	DefaultHeadersTimeout = 10 * time.Second
	DefaultBodyTimeout    = 10 * time.Second
)

const (
	baselineCapabilities = protobufs.AgentCapabilities_AgentCapabilities_ReportsStatus |
		protobufs.AgentCapabilities_AgentCapabilities_ReportsHeartbeat

	supportedCapabilities = baselineCapabilities |
		protobufs.AgentCapabilities_AgentCapabilities_AcceptsRemoteConfig |
		protobufs.AgentCapabilities_AgentCapabilities_ReportsRemoteConfig
)

// MessageData holds the parts of a ServerToAgent message that are handed
// to the embedding application.
type MessageData struct {
	// RemoteConfig is the remote configuration offered by the server.
	RemoteConfig *protobufs.AgentRemoteConfig
}

// Settings configures a Client.
type Settings struct {
	// Logger defaults to a no-op logger.
	Logger *zap.Logger

	// Endpoint is the full URL of the OpAMP server, e.g.
	// http://localhost:4320/v1/opamp.
	Endpoint string

	// Headers are added to every request.
	Headers http.Header

	// HTTPClient is used for all exchanges. When nil a keep-alive client is
	// created using TLSConfig.
	HTTPClient *http.Client

	// TLSConfig overrides the TLS material (CA, certificate, key) of the
	// default HTTP client. Ignored when HTTPClient is set.
	TLSConfig *tls.Config

	// InstanceUID identifies this agent. A UUIDv7 is generated when zero.
	InstanceUID uuid.UUID

	// Capabilities declared to the server. ReportsStatus and
	// ReportsHeartbeat are always added.
	Capabilities protobufs.AgentCapabilities

	// OnMessage receives remote configuration offered by the server. It is
	// called on its own goroutine, never from within an exchange.
	OnMessage func(ctx context.Context, msg *MessageData)

	// HeartbeatInterval is clamped to [MinHeartbeatInterval,
	// MaxHeartbeatInterval]; zero means DefaultHeartbeatInterval.
	HeartbeatInterval time.Duration

	// HeadersTimeout bounds the wait for response headers, BodyTimeout the
	// read of the response body. Zero means the default of 10s each.
	HeadersTimeout time.Duration
	BodyTimeout    time.Duration

	// Diagnostics receives send events when DiagnosticsEnabled is true.
	Diagnostics        DiagnosticSink
	DiagnosticsEnabled bool

	// TracerProvider traces each exchange. Defaults to a no-op provider.
	TracerProvider trace.TracerProvider

	// clock is replaced in tests.
	clock clock
}

// normalizeCapabilities adds the baseline capabilities and rejects anything
// this client does not implement.
func normalizeCapabilities(requested protobufs.AgentCapabilities) (protobufs.AgentCapabilities, error) {
	if unsupported := requested &^ supportedCapabilities; unsupported != 0 {
		return 0, fmt.Errorf("%w: unsupported capabilities 0x%x", ErrInvalidConfig, uint64(unsupported))
	}
	return requested | baselineCapabilities, nil
}

// normalizeHeartbeatInterval applies the default and clamps the interval.
func normalizeHeartbeatInterval(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultHeartbeatInterval
	case d < MinHeartbeatInterval:
		return MinHeartbeatInterval
	case d > MaxHeartbeatInterval:
		return MaxHeartbeatInterval
	}
	return d
}

// normalizeInstanceUID returns uid, or a fresh UUIDv7 when uid is zero.
func normalizeInstanceUID(uid uuid.UUID) (uuid.UUID, error) {
	if uid != uuid.Nil {
		return uid, nil
	}
	generated, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: generating instance uid: %w", ErrInvalidConfig, err)
	}
	return generated, nil
}

// ParseInstanceUID accepts either the textual UUID form or its raw 16 bytes.
func ParseInstanceUID(raw []byte) (uuid.UUID, error) {
	if len(raw) == 16 {
		return uuid.FromBytes(raw)
	}
	uid, err := uuid.ParseBytes(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: instance uid: %w", ErrInvalidConfig, err)
	}
	return uid, nil
}

func defaultTimeout(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func (s *Settings) validate() error {
	if s.Endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidConfig)
	}
	u, err := url.Parse(s.Endpoint)
	if err != nil {
		return fmt.Errorf("%w: endpoint: %w", ErrInvalidConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: endpoint scheme must be http or https, got %q", ErrInvalidConfig, u.Scheme)
	}
	return nil
}
