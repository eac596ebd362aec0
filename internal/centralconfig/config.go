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

// Package centralconfig applies Elastic central configuration received over
// OpAMP to a running agent.
package centralconfig // import "github.com/elastic/opentelemetry-collector-components/internal/centralconfig"

import (
	"errors"
	"fmt"
	"mime"
	"strconv"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/open-telemetry/opamp-go/protobufs"
	"go.uber.org/zap/zapcore"
)

// Recognized central configuration keys. Anything else is ignored.
const (
	KeyLoggingLevel                  = "logging_level"
	KeySendTraces                    = "send_traces"
	KeySendMetrics                   = "send_metrics"
	KeySendLogs                      = "send_logs"
	KeyDeactivateInstrumentations    = "deactivate_instrumentations"
	KeyDeactivateAllInstrumentations = "deactivate_all_instrumentations"
)

// ConfigFileName is the config map entry holding central configuration.
// The unnamed entry is used when it is absent.
const ConfigFileName = "elastic"

var (
	errUnsupportedContentType = errors.New("unsupported content type")
	errInvalidValue           = errors.New("invalid value")
)

// Config is the part of the agent configuration that can be changed
// remotely.
type Config struct {
	LoggingLevel                  zapcore.Level
	SendTraces                    bool
	SendMetrics                   bool
	SendLogs                      bool
	DeactivateInstrumentations    []string
	DeactivateAllInstrumentations bool
}

// Default returns the configuration used before any remote configuration
// was received, or after the server sent an empty one.
func Default(level zapcore.Level) Config {
	return Config{
		LoggingLevel: level,
		SendTraces:   true,
		SendMetrics:  true,
		SendLogs:     true,
	}
}

// Parse overlays the central configuration entry of configMap on defaults.
func Parse(configMap *protobufs.AgentConfigMap, defaults Config) (Config, error) {
	file := configFile(configMap)
	if file == nil || len(file.GetBody()) == 0 {
		return defaults, nil
	}
	if err := checkContentType(file.GetContentType()); err != nil {
		return defaults, err
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(file.GetBody()), json.Parser()); err != nil {
		return defaults, fmt.Errorf("cannot parse central config: %w", err)
	}

	cfg := defaults
	var errs []error
	if k.Exists(KeyLoggingLevel) {
		level, err := ParseLevel(k.String(KeyLoggingLevel))
		errs = append(errs, err)
		cfg.LoggingLevel = level
	}
	for key, dst := range map[string]*bool{
		KeySendTraces:                    &cfg.SendTraces,
		KeySendMetrics:                   &cfg.SendMetrics,
		KeySendLogs:                      &cfg.SendLogs,
		KeyDeactivateAllInstrumentations: &cfg.DeactivateAllInstrumentations,
	} {
		if !k.Exists(key) {
			continue
		}
		v, err := strconv.ParseBool(k.String(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("%w for %s: %q", errInvalidValue, key, k.String(key)))
			continue
		}
		*dst = v
	}
	if k.Exists(KeyDeactivateInstrumentations) {
		cfg.DeactivateInstrumentations = splitList(k.Get(KeyDeactivateInstrumentations))
	}
	if err := errors.Join(errs...); err != nil {
		return defaults, err
	}
	return cfg, nil
}

func configFile(configMap *protobufs.AgentConfigMap) *protobufs.AgentConfigFile {
	files := configMap.GetConfigMap()
	if file, ok := files[ConfigFileName]; ok {
		return file
	}
	return files[""]
}

func checkContentType(contentType string) error {
	if contentType == "" {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("%w: %q", errUnsupportedContentType, contentType)
	}
	switch mediaType {
	case "application/json", "text/json":
		return nil
	}
	return fmt.Errorf("%w: %q", errUnsupportedContentType, contentType)
}

// splitList accepts either a comma separated string or a JSON array.
func splitList(v any) []string {
	var items []string
	switch v := v.(type) {
	case string:
		items = strings.Split(v, ",")
	case []any:
		for _, item := range v {
			items = append(items, fmt.Sprint(item))
		}
	default:
		items = []string{fmt.Sprint(v)}
	}
	out := items[:0]
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ParseLevel maps an agent logging level onto zap. trace has no zap
// equivalent and is treated as debug; off disables logging.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "critical":
		return zapcore.DPanicLevel, nil
	case "off":
		return zapcore.InvalidLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("%w for %s: %q", errInvalidValue, KeyLoggingLevel, s)
}
