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

package opampclient

import (
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/open-telemetry/opamp-go/protobufs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCapabilities(t *testing.T) {
	testcases := map[string]struct {
		requested protobufs.AgentCapabilities
		want      protobufs.AgentCapabilities
		wantErr   bool
	}{
		"none requested gets baseline": {
			want: baselineCapabilities,
		},
		"remote config": {
			requested: protobufs.AgentCapabilities_AgentCapabilities_AcceptsRemoteConfig |
				protobufs.AgentCapabilities_AgentCapabilities_ReportsRemoteConfig,
			want: baselineCapabilities |
				protobufs.AgentCapabilities_AgentCapabilities_AcceptsRemoteConfig |
				protobufs.AgentCapabilities_AgentCapabilities_ReportsRemoteConfig,
		},
		"unsupported": {
			requested: protobufs.AgentCapabilities_AgentCapabilities_ReportsEffectiveConfig,
			wantErr:   true,
		},
	}
	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			got, err := normalizeCapabilities(tc.requested)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeHeartbeatInterval(t *testing.T) {
	assert.Equal(t, DefaultHeartbeatInterval, normalizeHeartbeatInterval(0))
	assert.Equal(t, MinHeartbeatInterval, normalizeHeartbeatInterval(time.Millisecond))
	assert.Equal(t, MaxHeartbeatInterval, normalizeHeartbeatInterval(48*time.Hour))
	assert.Equal(t, 5*time.Second, normalizeHeartbeatInterval(5*time.Second))
}

func TestNormalizeInstanceUID(t *testing.T) {
	generated, err := normalizeInstanceUID(uuid.Nil)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, generated)
	assert.Equal(t, uuid.Version(7), generated.Version())

	fixed := uuid.MustParse("0191f1c5-4a4b-7c3e-8a0e-0123456789ab")
	got, err := normalizeInstanceUID(fixed)
	require.NoError(t, err)
	assert.Equal(t, fixed, got)
}

func TestParseInstanceUID(t *testing.T) {
	want := uuid.MustParse("0191f1c5-4a4b-7c3e-8a0e-0123456789ab")

	got, err := ParseInstanceUID([]byte(want.String()))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = ParseInstanceUID(want[:])
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = ParseInstanceUID([]byte("not-a-uuid"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewInvalidSettings(t *testing.T) {
	testcases := map[string]Settings{
		"missing endpoint": {},
		"bad scheme":       {Endpoint: "ftp://localhost/v1/opamp"},
		"bad capabilities": {
			Endpoint:     "http://localhost/v1/opamp",
			Capabilities: protobufs.AgentCapabilities_AgentCapabilities_AcceptsPackages,
		},
	}
	for name, settings := range testcases {
		t.Run(name, func(t *testing.T) {
			_, err := New(settings)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	testcases := map[string]struct {
		header string
		want   time.Duration
		wantOK bool
	}{
		"empty":        {header: "", wantOK: false},
		"seconds":      {header: "45", want: 45 * time.Second, wantOK: true},
		"padded":       {header: " 5 ", want: 5 * time.Second, wantOK: true},
		"zero":         {header: "0", want: 0, wantOK: true},
		"negative":     {header: "-3", wantOK: false},
		"fraction":     {header: "1.5", wantOK: false},
		"garbage":      {header: "soon", wantOK: false},
		"http date":    {header: now.Add(2 * time.Minute).Format(http.TimeFormat), want: 2 * time.Minute, wantOK: true},
		"past date":    {header: now.Add(-time.Minute).Format(http.TimeFormat), want: 0, wantOK: true},
		"rfc850 date":  {header: now.Add(time.Minute).Format(time.RFC850), want: time.Minute, wantOK: true},
		"ansi c date":  {header: now.Add(10 * time.Second).Format(time.ANSIC), want: 10 * time.Second, wantOK: true},
	}
	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			got, ok := parseRetryAfter(tc.header, now)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPendingQueue(t *testing.T) {
	var q pendingQueue
	q.push(reportAgentDescription{})
	q.push(reportAgentDescription{})
	q.push(reportFullState{})
	assert.Equal(t, 2, q.len())

	drained := q.drain()
	assert.Equal(t, []pendingReport{reportAgentDescription{}, reportFullState{}}, drained)
	assert.Equal(t, 0, q.len())

	q.push(reportRemoteConfigStatus{})
	q.push(reportFullState{})
	q.restore(drained)
	assert.Equal(t, []pendingReport{
		reportAgentDescription{},
		reportFullState{},
		reportRemoteConfigStatus{},
	}, q.items)
}

func TestAgentDescriptionToProto(t *testing.T) {
	desc := AgentDescription{
		IdentifyingAttributes: map[string]any{
			"service.name":    "checkout",
			"service.version": "1.2.3",
		},
		NonIdentifyingAttributes: map[string]any{
			"host.cpus": 8,
			"debug":     true,
			"ratio":     0.5,
			"raw":       []byte("x"),
		},
	}
	pb, encoded, err := desc.toProto()
	require.NoError(t, err)

	require.Len(t, pb.GetIdentifyingAttributes(), 2)
	assert.Equal(t, "service.name", pb.GetIdentifyingAttributes()[0].GetKey())
	assert.Equal(t, "checkout", pb.GetIdentifyingAttributes()[0].GetValue().GetStringValue())

	nonIdentifying := pb.GetNonIdentifyingAttributes()
	require.Len(t, nonIdentifying, 4)
	assert.Equal(t, "debug", nonIdentifying[0].GetKey())
	assert.True(t, nonIdentifying[0].GetValue().GetBoolValue())
	assert.Equal(t, int64(8), nonIdentifying[1].GetValue().GetIntValue())
	assert.Equal(t, 0.5, nonIdentifying[2].GetValue().GetDoubleValue())
	assert.Equal(t, []byte("x"), nonIdentifying[3].GetValue().GetBytesValue())

	// map iteration order must not leak into the encoding
	for i := 0; i < 10; i++ {
		_, again, err := desc.toProto()
		require.NoError(t, err)
		assert.Equal(t, encoded, again)
	}
}

func TestToAnyValueUnsigned(t *testing.T) {
	testcases := map[string]struct {
		value   any
		wantInt int64
		wantStr string
	}{
		"uint":              {value: uint(7), wantInt: 7},
		"uint64":            {value: uint64(1 << 40), wantInt: 1 << 40},
		"uintptr":           {value: uintptr(3), wantInt: 3},
		"uint64 max int64":  {value: uint64(math.MaxInt64), wantInt: math.MaxInt64},
		"uint64 over int64": {value: uint64(math.MaxUint64), wantStr: "18446744073709551615"},
	}
	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			v := toAnyValue(tc.value)
			if tc.wantStr != "" {
				assert.Equal(t, tc.wantStr, v.GetStringValue())
				return
			}
			assert.Equal(t, tc.wantInt, v.GetIntValue())
		})
	}
}
