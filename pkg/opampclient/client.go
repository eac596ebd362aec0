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
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/open-telemetry/opamp-go/protobufs"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const tracerName = "github.com/elastic/opentelemetry-collector-components/pkg/opampclient"

type lifecycleState int

const (
	stateNotStarted lifecycleState = iota
	stateRunning
	stateShuttingDown
	stateShutdown
)

func (s lifecycleState) String() string {
	switch s {
	case stateNotStarted:
		return "not_started"
	case stateRunning:
		return "running"
	case stateShuttingDown:
		return "shutting_down"
	case stateShutdown:
		return "shutdown"
	}
	return fmt.Sprintf("lifecycleState(%d)", int(s))
}

// Client is an OpAMP agent client using the plain HTTP transport.
type Client struct {
	logger       *zap.Logger
	tracer       trace.Tracer
	clock        clock
	transport    *httpTransport
	diagnostics  DiagnosticSink
	onMessage    func(context.Context, *MessageData)
	heartbeat    time.Duration
	capabilities protobufs.AgentCapabilities

	// wg tracks the in-flight exchange and the message delivery goroutine.
	wg   sync.WaitGroup
	done chan struct{}

	mu                      sync.Mutex
	state                   lifecycleState
	sched                   *sendScheduler
	instanceUID             uuid.UUID
	instanceUIDBytes        []byte
	sequenceNum             uint64
	agentDescription        *protobufs.AgentDescription
	agentDescriptionEncoded []byte
	remoteConfigStatus      *protobufs.RemoteConfigStatus
	serverCapabilities      uint64
	noRemoteConfigNoted     bool
	queue                   pendingQueue
	failureCount            int
	sending                 bool
	notifications           []*MessageData
	notifyCh                chan struct{}
}

// New validates settings and returns a client that is not started yet.
func New(settings Settings) (*Client, error) {
	if err := settings.validate(); err != nil {
		return nil, err
	}
	capabilities, err := normalizeCapabilities(settings.Capabilities)
	if err != nil {
		return nil, err
	}
	uid, err := normalizeInstanceUID(settings.InstanceUID)
	if err != nil {
		return nil, err
	}

	logger := settings.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var diagnostics DiagnosticSink = NopDiagnosticSink{}
	if settings.DiagnosticsEnabled && settings.Diagnostics != nil {
		diagnostics = settings.Diagnostics
	}
	clk := settings.clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	tp := settings.TracerProvider
	if tp == nil {
		tp = noop.NewTracerProvider()
	}

	return &Client{
		logger:           logger,
		tracer:           tp.Tracer(tracerName),
		clock:            clk,
		transport:        newHTTPTransport(&settings),
		diagnostics:      diagnostics,
		onMessage:        settings.OnMessage,
		heartbeat:        normalizeHeartbeatInterval(settings.HeartbeatInterval),
		capabilities:     capabilities,
		done:             make(chan struct{}),
		sched:            newSendScheduler(clk),
		instanceUID:      uid,
		instanceUIDBytes: bytes.Clone(uid[:]),
		notifyCh:         make(chan struct{}, 1),
	}, nil
}

// InstanceUID returns the current instance uid, which the server may have
// reassigned.
func (c *Client) InstanceUID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.instanceUID
}

// Capabilities returns the normalized capabilities declared to the server.
func (c *Client) Capabilities() protobufs.AgentCapabilities {
	return c.capabilities
}

// SetAgentDescription stores desc and reports it to the server if it
// differs from the previous description. It must be called before Start
// and may be called again afterwards.
func (c *Client) SetAgentDescription(desc AgentDescription) error {
	pb, encoded, err := desc.toProto()
	if err != nil {
		return fmt.Errorf("%w: agent description: %w", ErrInvalidArgument, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state >= stateShuttingDown {
		return ErrAlreadyShutdown
	}
	if c.agentDescription != nil && bytes.Equal(c.agentDescriptionEncoded, encoded) {
		return nil
	}
	c.agentDescription = pb
	c.agentDescriptionEncoded = encoded
	c.queue.push(reportAgentDescription{})
	c.scheduleSoon()
	return nil
}

// SetRemoteConfigStatus reports the outcome of applying a remote config. It
// requires the ReportsRemoteConfig capability and a config hash.
func (c *Client) SetRemoteConfigStatus(status RemoteConfigStatus) error {
	if c.capabilities&protobufs.AgentCapabilities_AgentCapabilities_ReportsRemoteConfig == 0 {
		return fmt.Errorf("%w: ReportsRemoteConfig capability is not enabled", ErrPrecondition)
	}
	if len(status.LastRemoteConfigHash) == 0 {
		return fmt.Errorf("%w: remote config status requires a config hash", ErrInvalidArgument)
	}
	pb := status.toProto()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state >= stateShuttingDown {
		return ErrAlreadyShutdown
	}
	if remoteConfigStatusEqual(c.remoteConfigStatus, pb) {
		return nil
	}
	c.remoteConfigStatus = pb
	c.queue.push(reportRemoteConfigStatus{})
	c.scheduleSoon()
	return nil
}

// Start begins reporting to the server. The first message carries the full
// agent state and is sent after a short debounce delay.
func (c *Client) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case stateNotStarted:
	case stateRunning:
		return ErrAlreadyStarted
	default:
		return ErrAlreadyShutdown
	}
	if c.agentDescription == nil {
		return fmt.Errorf("%w: agent description must be set before start", ErrPrecondition)
	}

	c.state = stateRunning
	c.logger.Debug("Starting OpAMP client",
		zap.String("endpoint", c.transport.endpoint),
		zap.Stringer("instance_uid", c.instanceUID),
		zap.Duration("heartbeat_interval", c.heartbeat),
	)
	c.wg.Add(1)
	go c.deliverMessages()

	c.queue.push(reportFullState{})
	c.scheduleSoon()
	return nil
}

// Shutdown cancels any scheduled send and releases the transport. An
// exchange already in flight is allowed to complete; Shutdown waits for it
// until ctx is done. Calling Shutdown twice returns ErrAlreadyShutdown.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.state >= stateShuttingDown {
		c.mu.Unlock()
		return ErrAlreadyShutdown
	}
	c.state = stateShuttingDown
	c.sched.cancel()
	c.notifications = nil
	c.mu.Unlock()

	close(c.done)
	waitCh := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(waitCh)
	}()
	var err error
	select {
	case <-waitCh:
	case <-ctx.Done():
		err = ctx.Err()
	}
	c.transport.close()

	c.mu.Lock()
	c.state = stateShutdown
	c.mu.Unlock()
	c.logger.Debug("OpAMP client shut down", zap.Stringer("instance_uid", c.InstanceUID()))
	return err
}

// enqueueNotification hands msg to the delivery goroutine. Called with the
// lock held.
func (c *Client) enqueueNotification(msg *MessageData) {
	if c.onMessage == nil || c.state != stateRunning {
		return
	}
	c.notifications = append(c.notifications, msg)
	select {
	case c.notifyCh <- struct{}{}:
	default:
	}
}

func (c *Client) deliverMessages() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case <-c.notifyCh:
		}
		for {
			c.mu.Lock()
			if len(c.notifications) == 0 || c.state != stateRunning {
				c.mu.Unlock()
				break
			}
			msg := c.notifications[0]
			c.notifications = c.notifications[1:]
			c.mu.Unlock()
			c.deliver(msg)
		}
	}
}

func (c *Client) deliver(msg *MessageData) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("OpAMP message callback panicked", zap.Any("panic", r))
		}
	}()
	c.onMessage(context.Background(), msg)
}
