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
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/open-telemetry/opamp-go/protobufs"
	"google.golang.org/protobuf/proto"
)

// AgentDescription describes the local agent. Values may be string, bool,
// any integer type, float32/64 or []byte; anything else is reported as its
// fmt representation. Unsigned values above math.MaxInt64 are sent as
// decimal strings.
type AgentDescription struct {
	IdentifyingAttributes    map[string]any
	NonIdentifyingAttributes map[string]any
}

// RemoteConfigStatus reports the outcome of applying a remote config.
type RemoteConfigStatus struct {
	Status               protobufs.RemoteConfigStatuses
	LastRemoteConfigHash []byte
	ErrorMessage         string
}

var deterministic = proto.MarshalOptions{Deterministic: true}

// toProto converts d to its wire form together with a deterministic
// encoding used to detect no-op updates.
func (d AgentDescription) toProto() (*protobufs.AgentDescription, []byte, error) {
	pb := &protobufs.AgentDescription{
		IdentifyingAttributes:    toKeyValues(d.IdentifyingAttributes),
		NonIdentifyingAttributes: toKeyValues(d.NonIdentifyingAttributes),
	}
	encoded, err := deterministic.Marshal(pb)
	if err != nil {
		return nil, nil, err
	}
	return pb, encoded, nil
}

func toKeyValues(attrs map[string]any) []*protobufs.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	kvs := make([]*protobufs.KeyValue, 0, len(keys))
	for _, k := range keys {
		kvs = append(kvs, &protobufs.KeyValue{Key: k, Value: toAnyValue(attrs[k])})
	}
	return kvs
}

func toAnyValue(v any) *protobufs.AnyValue {
	switch v := v.(type) {
	case string:
		return &protobufs.AnyValue{Value: &protobufs.AnyValue_StringValue{StringValue: v}}
	case bool:
		return &protobufs.AnyValue{Value: &protobufs.AnyValue_BoolValue{BoolValue: v}}
	case int:
		return intValue(int64(v))
	case int8:
		return intValue(int64(v))
	case int16:
		return intValue(int64(v))
	case int32:
		return intValue(int64(v))
	case int64:
		return intValue(v)
	case uint8:
		return intValue(int64(v))
	case uint16:
		return intValue(int64(v))
	case uint32:
		return intValue(int64(v))
	case uint:
		return uintValue(uint64(v))
	case uint64:
		return uintValue(v)
	case uintptr:
		return uintValue(uint64(v))
	case float32:
		return &protobufs.AnyValue{Value: &protobufs.AnyValue_DoubleValue{DoubleValue: float64(v)}}
	case float64:
		return &protobufs.AnyValue{Value: &protobufs.AnyValue_DoubleValue{DoubleValue: v}}
	case []byte:
		return &protobufs.AnyValue{Value: &protobufs.AnyValue_BytesValue{BytesValue: bytes.Clone(v)}}
	case fmt.Stringer:
		return &protobufs.AnyValue{Value: &protobufs.AnyValue_StringValue{StringValue: v.String()}}
	}
	return &protobufs.AnyValue{Value: &protobufs.AnyValue_StringValue{StringValue: fmt.Sprint(v)}}
}

func intValue(v int64) *protobufs.AnyValue {
	return &protobufs.AnyValue{Value: &protobufs.AnyValue_IntValue{IntValue: v}}
}

// uintValue falls back to the decimal string when v overflows int64.
func uintValue(v uint64) *protobufs.AnyValue {
	if v > math.MaxInt64 {
		return &protobufs.AnyValue{Value: &protobufs.AnyValue_StringValue{StringValue: strconv.FormatUint(v, 10)}}
	}
	return intValue(int64(v))
}

func (s RemoteConfigStatus) toProto() *protobufs.RemoteConfigStatus {
	return &protobufs.RemoteConfigStatus{
		Status:               s.Status,
		LastRemoteConfigHash: bytes.Clone(s.LastRemoteConfigHash),
		ErrorMessage:         s.ErrorMessage,
	}
}

// remoteConfigStatusEqual compares the fields reported to the server.
func remoteConfigStatusEqual(a, b *protobufs.RemoteConfigStatus) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.GetStatus() == b.GetStatus() &&
		bytes.Equal(a.GetLastRemoteConfigHash(), b.GetLastRemoteConfigHash()) &&
		a.GetErrorMessage() == b.GetErrorMessage()
}
