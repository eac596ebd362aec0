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
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"
)

const protobufContentType = "application/x-protobuf"

// maxDiscard bounds how much of an unwanted body is drained so the
// connection can be reused.
const maxDiscard = 64 << 10

// httpTransport performs one request/response exchange per call. It owns
// its HTTP client and connection pool.
type httpTransport struct {
	client         *http.Client
	endpoint       string
	headers        http.Header
	headersTimeout time.Duration
	bodyTimeout    time.Duration
}

func newHTTPTransport(s *Settings) *httpTransport {
	client := s.HTTPClient
	if client == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		if s.TLSConfig != nil {
			tr.TLSClientConfig = s.TLSConfig.Clone()
		}
		client = &http.Client{Transport: tr}
	}
	return &httpTransport{
		client:         client,
		endpoint:       s.Endpoint,
		headers:        s.Headers.Clone(),
		headersTimeout: defaultTimeout(s.HeadersTimeout, DefaultHeadersTimeout),
		bodyTimeout:    defaultTimeout(s.BodyTimeout, DefaultBodyTimeout),
	}
}

// httpResponse is a response whose body has not been consumed yet. Exactly
// one of readBody or discard must be called.
type httpResponse struct {
	StatusCode int
	Header     http.Header

	body        io.ReadCloser
	ctx         context.Context
	cancel      context.CancelCauseFunc
	bodyTimeout time.Duration
}

// post sends payload and waits for the response headers.
func (t *httpTransport) post(ctx context.Context, payload []byte) (*httpResponse, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	timer := time.AfterFunc(t.headersTimeout, func() { cancel(errHeadersTimeout) })
	defer timer.Stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		cancel(nil)
		return nil, err
	}
	for k, vs := range t.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", protobufContentType)

	resp, err := t.client.Do(req)
	if err != nil {
		if cause := context.Cause(ctx); errors.Is(cause, errHeadersTimeout) {
			err = fmt.Errorf("%w: %w", errHeadersTimeout, err)
		}
		cancel(nil)
		return nil, err
	}
	return &httpResponse{
		StatusCode:  resp.StatusCode,
		Header:      resp.Header,
		body:        resp.Body,
		ctx:         ctx,
		cancel:      cancel,
		bodyTimeout: t.bodyTimeout,
	}, nil
}

func (t *httpTransport) close() {
	t.client.CloseIdleConnections()
}

// hasProtobufContentType ignores media type parameters.
func (r *httpResponse) hasProtobufContentType() bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == protobufContentType
}

// readBody reads the whole body, bounded by the body timeout, and releases
// the response.
func (r *httpResponse) readBody() ([]byte, error) {
	timer := time.AfterFunc(r.bodyTimeout, func() { r.cancel(errBodyTimeout) })
	defer timer.Stop()
	defer r.release()

	body, err := io.ReadAll(r.body)
	if err != nil {
		if cause := context.Cause(r.ctx); errors.Is(cause, errBodyTimeout) {
			return nil, fmt.Errorf("%w: %w", errBodyTimeout, err)
		}
		return nil, err
	}
	return body, nil
}

// discard drops the body and releases the response.
func (r *httpResponse) discard() {
	timer := time.AfterFunc(r.bodyTimeout, func() { r.cancel(errBodyTimeout) })
	defer timer.Stop()
	_, _ = io.Copy(io.Discard, io.LimitReader(r.body, maxDiscard))
	r.release()
}

func (r *httpResponse) release() {
	_ = r.body.Close()
	r.cancel(nil)
}
