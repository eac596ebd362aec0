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

	"go.opentelemetry.io/collector/component"
	"go.opentelemetry.io/collector/component/componentstatus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/elastic/opentelemetry-collector-components/extension/opampagentextension/internal/metadata"
	"github.com/elastic/opentelemetry-collector-components/pkg/opampclient"
)

const (
	outcomeKey = "outcome"

	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// clientTelemetry records OpAMP client diagnostics as metrics and reports
// connectivity changes as component status.
type clientTelemetry struct {
	exportCtx context.Context
	host      component.Host

	// status is the last reported status, nil before the first exchange.
	status *componentstatus.Status

	sends          metric.Int64Counter
	scheduledDelay metric.Float64Histogram

	successAttr metric.MeasurementOption
	failureAttr metric.MeasurementOption
}

var _ opampclient.DiagnosticSink = (*clientTelemetry)(nil)

func newClientTelemetry(mp metric.MeterProvider, host component.Host) (*clientTelemetry, error) {
	meter := mp.Meter(metadata.ScopeName)
	sends, err := meter.Int64Counter(
		"opamp.client.sends",
		metric.WithDescription("Number of completed OpAMP exchanges."),
		metric.WithUnit("{exchange}"),
	)
	if err != nil {
		return nil, err
	}
	scheduledDelay, err := meter.Float64Histogram(
		"opamp.client.scheduled_delay",
		metric.WithDescription("Delay until the next OpAMP exchange when it is scheduled."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	return &clientTelemetry{
		exportCtx:      context.Background(),
		host:           host,
		sends:          sends,
		scheduledDelay: scheduledDelay,
		successAttr:    metric.WithAttributeSet(attribute.NewSet(attribute.String(outcomeKey, outcomeSuccess))),
		failureAttr:    metric.WithAttributeSet(attribute.NewSet(attribute.String(outcomeKey, outcomeFailure))),
	}, nil
}

func (t *clientTelemetry) SendScheduled(e opampclient.SendScheduledEvent) {
	t.scheduledDelay.Record(t.exportCtx, e.Delay.Seconds())
}

func (t *clientTelemetry) SendSucceeded(opampclient.SendSucceededEvent) {
	t.report(componentstatus.StatusOK, nil)
	t.sends.Add(t.exportCtx, 1, t.successAttr)
}

func (t *clientTelemetry) SendFailed(e opampclient.SendFailedEvent) {
	t.report(componentstatus.StatusRecoverableError, e.Err)
	t.sends.Add(t.exportCtx, 1, t.failureAttr)
}

// report only forwards transitions so a failing server does not flood the
// host with identical events.
func (t *clientTelemetry) report(status componentstatus.Status, err error) {
	if t.status != nil && *t.status == status {
		return
	}
	t.status = &status
	if err != nil {
		componentstatus.ReportStatus(t.host, componentstatus.NewRecoverableErrorEvent(err))
		return
	}
	componentstatus.ReportStatus(t.host, componentstatus.NewEvent(status))
}
