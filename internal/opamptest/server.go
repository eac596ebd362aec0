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

// Package opamptest provides a scriptable OpAMP HTTP server for tests.
package opamptest // import "github.com/elastic/opentelemetry-collector-components/internal/opamptest"

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/open-telemetry/opamp-go/protobufs"
	"google.golang.org/protobuf/proto"
)

const (
	// Path is the path the server listens on.
	Path = "/v1/opamp"

	protobufContentType = "application/x-protobuf"
)

// Response describes how the server answers one request. The zero value
// answers 200 with DefaultMessage.
type Response struct {
	// StatusCode defaults to 200.
	StatusCode int
	// Header is added to the response.
	Header http.Header
	// ContentType defaults to application/x-protobuf.
	ContentType string
	// Message is encoded as the body. Nil means DefaultMessage.
	Message *protobufs.ServerToAgent
	// Body, when set, is written verbatim instead of Message.
	Body []byte
	// HeaderDelay delays the response headers, BodyDelay the body after the
	// headers were flushed. Both end early if the client goes away.
	HeaderDelay time.Duration
	BodyDelay   time.Duration
}

// Responder computes the response to a decoded request.
type Responder func(*protobufs.AgentToServer) Response

// Server records every AgentToServer message it receives.
type Server struct {
	srv *httptest.Server

	mu        sync.Mutex
	messages  []*protobufs.AgentToServer
	headers   []http.Header
	responder Responder
}

// New starts a server that is closed when the test ends.
func New(tb testing.TB) *Server {
	tb.Helper()
	s := &Server{}
	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.handle)
	s.srv = httptest.NewServer(mux)
	tb.Cleanup(s.srv.Close)
	return s
}

// Endpoint returns the URL clients should post to.
func (s *Server) Endpoint() string {
	return s.srv.URL + Path
}

// SetResponder replaces the responder. A nil responder restores the
// default behaviour.
func (s *Server) SetResponder(r Responder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responder = r
}

// Messages returns the messages received so far.
func (s *Server) Messages() []*protobufs.AgentToServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*protobufs.AgentToServer, len(s.messages))
	copy(out, s.messages)
	return out
}

// Headers returns the request headers received so far.
func (s *Server) Headers() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]http.Header, len(s.headers))
	copy(out, s.headers)
	return out
}

// DefaultMessage echoes the agent's instance uid and advertises remote
// config support.
func DefaultMessage(msg *protobufs.AgentToServer) *protobufs.ServerToAgent {
	return &protobufs.ServerToAgent{
		InstanceUid: msg.GetInstanceUid(),
		Capabilities: uint64(protobufs.ServerCapabilities_ServerCapabilities_AcceptsStatus |
			protobufs.ServerCapabilities_ServerCapabilities_OffersRemoteConfig),
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	msg := &protobufs.AgentToServer{}
	if err := proto.Unmarshal(body, msg); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.headers = append(s.headers, r.Header.Clone())
	responder := s.responder
	s.mu.Unlock()

	var resp Response
	if responder != nil {
		resp = responder(msg)
	}
	if !wait(r, resp.HeaderDelay) {
		return
	}

	payload := resp.Body
	if payload == nil {
		out := resp.Message
		if out == nil {
			out = DefaultMessage(msg)
		}
		if payload, err = proto.Marshal(out); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	contentType := resp.ContentType
	if contentType == "" {
		contentType = protobufContentType
	}
	w.Header().Set("Content-Type", contentType)
	statusCode := resp.StatusCode
	if statusCode == 0 {
		statusCode = http.StatusOK
	}
	w.WriteHeader(statusCode)
	if resp.BodyDelay > 0 {
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		if !wait(r, resp.BodyDelay) {
			return
		}
	}
	_, _ = w.Write(payload)
}

// wait sleeps for d unless the client cancels the request first.
func wait(r *http.Request, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-time.After(d):
		return true
	case <-r.Context().Done():
		return false
	}
}

// UnreachableEndpoint returns an endpoint on which nothing listens.
func UnreachableEndpoint(tb testing.TB) string {
	tb.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	if err := l.Close(); err != nil {
		tb.Fatalf("close listener: %v", err)
	}
	return "http://" + addr + Path
}
