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
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/open-telemetry/opamp-go/protobufs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// debounceDelay coalesces bursts of local changes into one message.
const debounceDelay = 50 * time.Millisecond

// maxRetryAfter bounds server supplied retry hints.
const maxRetryAfter = 24 * time.Hour

// exchange is one build, send, interpret, apply turn. It must end in
// exactly one call to finishSuccess or finishFail.
type exchange struct {
	outbound *protobufs.AgentToServer
	drained  []pendingReport
	finished bool
}

func (ex *exchange) finish() {
	if ex.finished {
		panic("opampclient: exchange finished twice")
	}
	ex.finished = true
}

// exchangeResult is computed without holding the client lock.
type exchangeResult struct {
	inbound       *protobufs.ServerToAgent
	err           error
	requeue       bool
	retryAfter    time.Duration
	hasRetryAfter bool
}

func failed(err error) exchangeResult {
	return exchangeResult{err: err, requeue: true}
}

func (c *Client) scheduleSoon() {
	if c.queue.len() == 0 {
		return
	}
	if c.failureCount > 0 {
		c.logger.Debug("Backing off, not scheduling an early send", zap.Int("failure_count", c.failureCount))
		return
	}
	c.arm(jitter(debounceDelay), false)
}

func (c *Client) scheduleHeartbeat() {
	c.arm(jitter(c.heartbeat), false)
}

// scheduleRetryAfter honours a server hint, but never retries sooner than
// a debounce delay.
func (c *Client) scheduleRetryAfter(d time.Duration) {
	c.arm(jitter(min(max(d, debounceDelay), maxRetryAfter)), true)
}

func (c *Client) scheduleAfterFailure() {
	c.arm(jitter(backoffDelay(c.failureCount)), true)
}

// arm is called with the lock held.
func (c *Client) arm(delay time.Duration, override bool) {
	if c.state != stateRunning {
		c.logger.Debug("Not scheduling send, client is not running", zap.Stringer("state", c.state))
		return
	}
	if c.sending {
		c.logger.Debug("Not scheduling send, an exchange is in flight")
		return
	}
	if c.sched.arm(delay, override, c.onTimer) {
		c.diagnostics.SendScheduled(SendScheduledEvent{
			Time:         c.clock.Now(),
			InstanceUID:  c.instanceUID,
			Delay:        delay,
			FailureCount: c.failureCount,
		})
	}
}

func (c *Client) onTimer(gen uint64) {
	c.mu.Lock()
	if !c.sched.fire(gen) || c.state != stateRunning || c.sending {
		c.mu.Unlock()
		return
	}
	c.sending = true
	c.wg.Add(1)
	ex := c.buildMessage()
	c.mu.Unlock()
	defer c.wg.Done()

	res := c.perform(context.Background(), ex)

	c.mu.Lock()
	defer c.mu.Unlock()
	if res.err != nil {
		c.finishFail(ex, res)
	} else {
		c.handleServerMessage(res.inbound)
		c.finishSuccess(ex, res.inbound)
	}
	if !ex.finished {
		panic("opampclient: exchange did not finish")
	}
}

// buildMessage is called with the lock held.
func (c *Client) buildMessage() *exchange {
	c.sequenceNum++
	msg := &protobufs.AgentToServer{
		InstanceUid:  c.instanceUIDBytes,
		SequenceNum:  c.sequenceNum,
		Capabilities: uint64(c.capabilities),
	}
	st := reportState{
		instanceUID:        c.instanceUIDBytes,
		capabilities:       c.capabilities,
		agentDescription:   c.agentDescription,
		remoteConfigStatus: c.remoteConfigStatus,
	}
	drained := c.queue.drain()
	for _, r := range drained {
		r.mergeInto(msg, &st)
	}
	return &exchange{outbound: msg, drained: drained}
}

// perform runs the network exchange and interprets the response. It never
// panics; anything unexpected becomes a failed result.
func (c *Client) perform(ctx context.Context, ex *exchange) (res exchangeResult) {
	ctx, span := c.tracer.Start(ctx, "opamp.exchange",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int64("opamp.sequence_num", int64(ex.outbound.GetSequenceNum()))),
	)
	defer func() {
		if res.err != nil {
			span.RecordError(res.err)
			span.SetStatus(codes.Error, res.err.Error())
		}
		span.End()
	}()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Unexpected panic during OpAMP exchange", zap.Any("panic", r))
			res = failed(fmt.Errorf("exchange panicked: %v", r))
		}
	}()

	payload, err := proto.Marshal(ex.outbound)
	if err != nil {
		c.logger.Error("Failed to encode AgentToServer message", zap.Error(err))
		return failed(err)
	}

	resp, err := c.transport.post(ctx, payload)
	if err != nil {
		c.logger.Error("OpAMP request failed",
			zap.String("endpoint", c.transport.endpoint),
			zap.Bool("timeout", isTimeout(err)),
			zap.Error(err),
		)
		return failed(err)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		resp.discard()
		res = failed(fmt.Errorf("unexpected response status %d", resp.StatusCode))
		res.retryAfter, res.hasRetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), c.clock.Now())
		fields := []zap.Field{zap.Int("status", resp.StatusCode), zap.String("retry_after", resp.Header.Get("Retry-After"))}
		if resp.StatusCode == http.StatusTooManyRequests {
			c.logger.Debug("OpAMP server is rate limiting requests", fields...)
		} else {
			c.logger.Error("OpAMP server is unavailable", fields...)
		}
		return res
	case resp.StatusCode != http.StatusOK:
		resp.discard()
		c.logger.Error("Unexpected OpAMP response status", zap.Int("status", resp.StatusCode))
		return failed(fmt.Errorf("unexpected response status %d", resp.StatusCode))
	case !resp.hasProtobufContentType():
		contentType := resp.Header.Get("Content-Type")
		resp.discard()
		c.logger.Error("Unexpected OpAMP response content type", zap.String("content_type", contentType))
		return failed(fmt.Errorf("unexpected response content type %q", contentType))
	}

	body, err := resp.readBody()
	if err != nil {
		c.logger.Error("Failed to read OpAMP response body", zap.Bool("timeout", isTimeout(err)), zap.Error(err))
		return failed(err)
	}

	inbound := &protobufs.ServerToAgent{}
	if err := proto.Unmarshal(body, inbound); err != nil {
		c.logger.Error("Failed to decode ServerToAgent message", zap.Error(err))
		return failed(err)
	}

	if errResp := inbound.GetErrorResponse(); errResp != nil {
		return c.serverErrorResult(errResp)
	}
	return exchangeResult{inbound: inbound}
}

// serverErrorResult maps an error envelope from the server onto the retry
// policy.
func (c *Client) serverErrorResult(errResp *protobufs.ServerErrorResponse) exchangeResult {
	err := fmt.Errorf("server error response (%s): %s", errResp.GetType(), errResp.GetErrorMessage())
	fields := []zap.Field{zap.Stringer("type", errResp.GetType()), zap.String("message", errResp.GetErrorMessage())}

	switch errResp.GetType() {
	case protobufs.ServerErrorResponseType_ServerErrorResponseType_BadRequest:
		c.logger.Error("OpAMP server rejected the message, dropping it", fields...)
		return exchangeResult{err: err, retryAfter: backoffDelay(1), hasRetryAfter: true}
	case protobufs.ServerErrorResponseType_ServerErrorResponseType_Unavailable:
		c.logger.Error("OpAMP server reported it is unavailable", fields...)
		res := failed(err)
		if info := errResp.GetRetryInfo(); info != nil {
			res.retryAfter = retryInfoDelay(info.GetRetryAfterNanoseconds())
			res.hasRetryAfter = true
		}
		return res
	default:
		c.logger.Error("OpAMP server returned an error", fields...)
		return failed(err)
	}
}

func retryInfoDelay(ns uint64) time.Duration {
	if ns > uint64(maxRetryAfter) {
		return maxRetryAfter
	}
	return time.Duration(ns)
}

// finishSuccess is called with the lock held.
func (c *Client) finishSuccess(ex *exchange, inbound *protobufs.ServerToAgent) {
	ex.finish()
	c.failureCount = 0
	c.sending = false
	if c.state == stateRunning {
		c.diagnostics.SendSucceeded(SendSucceededEvent{
			Time:        c.clock.Now(),
			InstanceUID: c.instanceUID,
			Outbound:    ex.outbound,
			Inbound:     inbound,
		})
	}
	if c.queue.len() > 0 {
		c.scheduleSoon()
	} else {
		c.scheduleHeartbeat()
	}
}

// finishFail is called with the lock held.
func (c *Client) finishFail(ex *exchange, res exchangeResult) {
	ex.finish()
	c.failureCount++
	if res.requeue {
		c.queue.restore(ex.drained)
	}
	c.sending = false
	if c.state == stateRunning {
		c.diagnostics.SendFailed(SendFailedEvent{
			Time:          c.clock.Now(),
			InstanceUID:   c.instanceUID,
			Outbound:      ex.outbound,
			Err:           res.err,
			RetryDelay:    res.retryAfter,
			HasRetryDelay: res.hasRetryAfter,
		})
	}
	if res.hasRetryAfter {
		c.scheduleRetryAfter(res.retryAfter)
	} else {
		c.scheduleAfterFailure()
	}
}

// isTimeout reports whether err came from one of the transport timeouts.
func isTimeout(err error) bool {
	return errors.Is(err, errHeadersTimeout) || errors.Is(err, errBodyTimeout)
}
