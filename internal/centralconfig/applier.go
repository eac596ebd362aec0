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

package centralconfig // import "github.com/elastic/opentelemetry-collector-components/internal/centralconfig"

import (
	"encoding/hex"
	"slices"
	"sync"

	"github.com/open-telemetry/opamp-go/protobufs"
	"go.uber.org/zap"

	"github.com/elastic/opentelemetry-collector-components/pkg/opampclient"
)

// Provider exposes the central configuration currently in effect.
type Provider interface {
	CentralConfig() Config
}

// Applier keeps the applied central configuration and computes the status
// to report back to the server.
type Applier struct {
	logger   *zap.Logger
	level    zap.AtomicLevel
	defaults Config

	mu      sync.RWMutex
	current Config
}

var _ Provider = (*Applier)(nil)

// NewApplier returns an applier starting from defaults. level is updated
// whenever logging_level changes.
func NewApplier(logger *zap.Logger, level zap.AtomicLevel, defaults Config) *Applier {
	return &Applier{
		logger:   logger,
		level:    level,
		defaults: defaults,
		current:  defaults,
	}
}

// CentralConfig implements Provider.
func (a *Applier) CentralConfig() Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	cfg := a.current
	cfg.DeactivateInstrumentations = slices.Clone(cfg.DeactivateInstrumentations)
	return cfg
}

// Apply applies rc and returns the status to report. A configuration that
// fails to parse leaves the current one in place.
func (a *Applier) Apply(rc *protobufs.AgentRemoteConfig) opampclient.RemoteConfigStatus {
	hash := rc.GetConfigHash()
	a.logger.Debug("Received central configuration", zap.String("hash", hex.EncodeToString(hash)))

	cfg, err := Parse(rc.GetConfig(), a.defaults)
	if err != nil {
		a.logger.Warn("Rejected central configuration", zap.String("hash", hex.EncodeToString(hash)), zap.Error(err))
		return opampclient.RemoteConfigStatus{
			Status:               protobufs.RemoteConfigStatuses_RemoteConfigStatuses_FAILED,
			LastRemoteConfigHash: hash,
			ErrorMessage:         err.Error(),
		}
	}

	a.mu.Lock()
	previous := a.current
	a.current = cfg
	a.mu.Unlock()

	if previous.LoggingLevel != cfg.LoggingLevel {
		a.level.SetLevel(cfg.LoggingLevel)
	}
	a.logger.Info("Applied central configuration",
		zap.String("hash", hex.EncodeToString(hash)),
		zap.Stringer("logging_level", cfg.LoggingLevel),
		zap.Bool("send_traces", cfg.SendTraces),
		zap.Bool("send_metrics", cfg.SendMetrics),
		zap.Bool("send_logs", cfg.SendLogs),
		zap.Strings("deactivate_instrumentations", cfg.DeactivateInstrumentations),
		zap.Bool("deactivate_all_instrumentations", cfg.DeactivateAllInstrumentations),
	)
	return opampclient.RemoteConfigStatus{
		Status:               protobufs.RemoteConfigStatuses_RemoteConfigStatuses_APPLIED,
		LastRemoteConfigHash: hash,
	}
}
