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
	"runtime"
	"strings"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/host"
	"go.opentelemetry.io/collector/component"
	semconv "go.opentelemetry.io/collector/semconv/v1.5.0"
	"go.uber.org/zap"

	"github.com/elastic/opentelemetry-collector-components/pkg/opampclient"
)

// hostInfo is replaced in tests.
var hostInfo = host.InfoWithContext

// agentDescription describes the collector. The service attributes
// identify it; host facts are informational only.
func agentDescription(
	ctx context.Context,
	buildInfo component.BuildInfo,
	uid uuid.UUID,
	cfg AgentDescriptionConfig,
	logger *zap.Logger,
) opampclient.AgentDescription {
	identifying := map[string]any{
		semconv.AttributeServiceName:       buildInfo.Command,
		semconv.AttributeServiceVersion:    buildInfo.Version,
		semconv.AttributeServiceInstanceID: uid.String(),
	}
	nonIdentifying := map[string]any{
		semconv.AttributeOSType:   runtime.GOOS,
		semconv.AttributeHostArch: runtime.GOARCH,
	}

	if cfg.IncludeHostInfo {
		info, err := hostInfo(ctx)
		if err != nil {
			logger.Warn("Failed to detect host information", zap.Error(err))
		} else {
			nonIdentifying[semconv.AttributeHostName] = info.Hostname
			if desc := strings.TrimSpace(info.Platform + " " + info.PlatformVersion); desc != "" {
				nonIdentifying[semconv.AttributeOSDescription] = desc
			}
		}
	}
	for k, v := range cfg.NonIdentifyingAttributes {
		nonIdentifying[k] = v
	}

	return opampclient.AgentDescription{
		IdentifyingAttributes:    identifying,
		NonIdentifyingAttributes: nonIdentifying,
	}
}
