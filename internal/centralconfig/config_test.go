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

package centralconfig

import (
	"testing"

	"github.com/open-telemetry/opamp-go/protobufs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

func configMap(name, contentType, body string) *protobufs.AgentConfigMap {
	return &protobufs.AgentConfigMap{ConfigMap: map[string]*protobufs.AgentConfigFile{
		name: {Body: []byte(body), ContentType: contentType},
	}}
}

func TestParse(t *testing.T) {
	defaults := Default(zapcore.InfoLevel)

	testcases := map[string]struct {
		configMap   *protobufs.AgentConfigMap
		expected    Config
		expectedErr error
	}{
		"nil": {
			expected: defaults,
		},
		"empty body": {
			configMap: configMap("", "text/json", ""),
			expected:  defaults,
		},
		"string values from apm server": {
			configMap: configMap("", "text/json", `{
				"logging_level": "trace",
				"send_traces": "false",
				"deactivate_instrumentations": "grpc, net/http ,",
				"unknown": "ignored"
			}`),
			expected: Config{
				LoggingLevel:               zapcore.DebugLevel,
				SendTraces:                 false,
				SendMetrics:                true,
				SendLogs:                   true,
				DeactivateInstrumentations: []string{"grpc", "net/http"},
			},
		},
		"typed values": {
			configMap: configMap(ConfigFileName, "application/json; charset=utf-8", `{
				"logging_level": "warning",
				"send_logs": false,
				"deactivate_all_instrumentations": true,
				"deactivate_instrumentations": ["redis"]
			}`),
			expected: Config{
				LoggingLevel:                  zapcore.WarnLevel,
				SendTraces:                    true,
				SendMetrics:                   true,
				SendLogs:                      false,
				DeactivateInstrumentations:    []string{"redis"},
				DeactivateAllInstrumentations: true,
			},
		},
		"named entry wins over unnamed": {
			configMap: &protobufs.AgentConfigMap{ConfigMap: map[string]*protobufs.AgentConfigFile{
				"":             {Body: []byte(`{"send_metrics":"false"}`)},
				ConfigFileName: {Body: []byte(`{"send_traces":"false"}`)},
			}},
			expected: Config{
				LoggingLevel: zapcore.InfoLevel,
				SendMetrics:  true,
				SendLogs:     true,
			},
		},
		"invalid bool": {
			configMap:   configMap("", "", `{"send_traces":"maybe"}`),
			expected:    defaults,
			expectedErr: errInvalidValue,
		},
		"invalid level": {
			configMap:   configMap("", "", `{"logging_level":"loud"}`),
			expected:    defaults,
			expectedErr: errInvalidValue,
		},
		"unsupported content type": {
			configMap:   configMap("", "text/yaml", `send_traces: false`),
			expected:    defaults,
			expectedErr: errUnsupportedContentType,
		},
	}

	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			cfg, err := Parse(tc.configMap, defaults)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.expected, cfg)
		})
	}
}

func TestParseMalformedJSON(t *testing.T) {
	defaults := Default(zapcore.InfoLevel)
	cfg, err := Parse(configMap("", "", `{"send_traces":`), defaults)
	assert.Error(t, err)
	assert.Equal(t, defaults, cfg)
}

func TestParseLevel(t *testing.T) {
	for s, expected := range map[string]zapcore.Level{
		"trace":    zapcore.DebugLevel,
		"DEBUG":    zapcore.DebugLevel,
		"info":     zapcore.InfoLevel,
		"warn":     zapcore.WarnLevel,
		"error":    zapcore.ErrorLevel,
		"critical": zapcore.DPanicLevel,
		"off":      zapcore.InvalidLevel,
	} {
		t.Run(s, func(t *testing.T) {
			level, err := ParseLevel(s)
			require.NoError(t, err)
			assert.Equal(t, expected, level)
		})
	}
}

func TestApplier(t *testing.T) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	a := NewApplier(zaptest.NewLogger(t), level, Default(zapcore.InfoLevel))

	status := a.Apply(&protobufs.AgentRemoteConfig{
		ConfigHash: []byte("v1"),
		Config:     configMap("", "text/json", `{"logging_level":"debug","send_traces":"false"}`),
	})
	assert.Equal(t, protobufs.RemoteConfigStatuses_RemoteConfigStatuses_APPLIED, status.Status)
	assert.Equal(t, []byte("v1"), status.LastRemoteConfigHash)
	assert.Empty(t, status.ErrorMessage)
	assert.Equal(t, zapcore.DebugLevel, level.Level())
	assert.False(t, a.CentralConfig().SendTraces)

	status = a.Apply(&protobufs.AgentRemoteConfig{
		ConfigHash: []byte("v2"),
		Config:     configMap("", "text/json", `{"send_traces":"sometimes"}`),
	})
	assert.Equal(t, protobufs.RemoteConfigStatuses_RemoteConfigStatuses_FAILED, status.Status)
	assert.Equal(t, []byte("v2"), status.LastRemoteConfigHash)
	assert.Contains(t, status.ErrorMessage, "send_traces")
	// the previous configuration stays in effect
	assert.False(t, a.CentralConfig().SendTraces)
	assert.Equal(t, zapcore.DebugLevel, level.Level())

	status = a.Apply(&protobufs.AgentRemoteConfig{ConfigHash: []byte("v3")})
	assert.Equal(t, protobufs.RemoteConfigStatuses_RemoteConfigStatuses_APPLIED, status.Status)
	assert.Equal(t, Default(zapcore.InfoLevel), a.CentralConfig())
	assert.Equal(t, zapcore.InfoLevel, level.Level())
}
