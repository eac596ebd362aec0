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
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/collector/component"
	"go.opentelemetry.io/collector/extension"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/elastic/opentelemetry-collector-components/internal/centralconfig"
	"github.com/elastic/opentelemetry-collector-components/pkg/opampclient"
)

type opampAgentExtension struct {
	cfg *Config
	set extension.Settings

	// logger honours the logging_level received as central configuration.
	logger  *zap.Logger
	level   zap.AtomicLevel
	applier *centralconfig.Applier

	client *opampclient.Client
}

var (
	_ extension.Extension    = (*opampAgentExtension)(nil)
	_ centralconfig.Provider = (*opampAgentExtension)(nil)
)

func newOpAMPAgentExtension(cfg *Config, set extension.Settings) (*opampAgentExtension, error) {
	initial := zapcore.LevelOf(set.Logger.Core())
	level := zap.NewAtomicLevelAt(initial)
	logger := set.Logger.WithOptions(zap.IncreaseLevel(level))
	return &opampAgentExtension{
		cfg:     cfg,
		set:     set,
		logger:  logger,
		level:   level,
		applier: centralconfig.NewApplier(logger, level, centralconfig.Default(initial)),
	}, nil
}

func (e *opampAgentExtension) Start(ctx context.Context, host component.Host) error {
	httpClient, err := e.cfg.ClientConfig.ToClient(ctx, host, e.set.TelemetrySettings)
	if err != nil {
		return fmt.Errorf("failed to create OpAMP HTTP client: %w", err)
	}

	var uid uuid.UUID
	if e.cfg.InstanceUID != "" {
		if uid, err = uuid.Parse(e.cfg.InstanceUID); err != nil {
			return fmt.Errorf("invalid instance_uid: %w", err)
		}
	}

	telemetry, err := newClientTelemetry(e.set.TelemetrySettings.MeterProvider, host)
	if err != nil {
		return err
	}

	client, err := opampclient.New(opampclient.Settings{
		Logger:             e.logger,
		Endpoint:           e.cfg.Endpoint,
		HTTPClient:         httpClient,
		InstanceUID:        uid,
		Capabilities:       e.cfg.Capabilities.capabilities(),
		OnMessage:          e.onMessage,
		HeartbeatInterval:  e.cfg.HeartbeatInterval,
		HeadersTimeout:     e.cfg.HeadersTimeout,
		BodyTimeout:        e.cfg.BodyTimeout,
		Diagnostics:        telemetry,
		DiagnosticsEnabled: true,
		TracerProvider:     e.set.TelemetrySettings.TracerProvider,
	})
	if err != nil {
		return err
	}
	e.client = client

	desc := agentDescription(ctx, e.set.BuildInfo, client.InstanceUID(), e.cfg.AgentDescription, e.logger)
	if err := client.SetAgentDescription(desc); err != nil {
		return err
	}
	if err := client.Start(ctx); err != nil {
		return err
	}

	e.logger.Info("OpAMP agent extension started",
		zap.String("endpoint", e.cfg.Endpoint),
		zap.Stringer("instance_uid", client.InstanceUID()),
	)
	return nil
}

func (e *opampAgentExtension) Shutdown(ctx context.Context) error {
	if e.client == nil {
		return nil
	}
	e.logger.Info("Stopping OpAMP agent extension")
	if err := e.client.Shutdown(ctx); err != nil && !errors.Is(err, opampclient.ErrAlreadyShutdown) {
		return err
	}
	return nil
}

// CentralConfig implements centralconfig.Provider.
func (e *opampAgentExtension) CentralConfig() centralconfig.Config {
	return e.applier.CentralConfig()
}

func (e *opampAgentExtension) onMessage(_ context.Context, msg *opampclient.MessageData) {
	if msg.RemoteConfig == nil {
		return
	}
	status := e.applier.Apply(msg.RemoteConfig)
	if !e.cfg.Capabilities.ReportsRemoteConfig {
		return
	}
	if err := e.client.SetRemoteConfigStatus(status); err != nil {
		e.logger.Warn("Failed to report central configuration status", zap.Error(err))
	}
}
