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

import "errors"

var (
	// ErrInvalidConfig is returned by New when the settings cannot be used.
	ErrInvalidConfig = errors.New("invalid opamp client config")
	// ErrPrecondition is returned when a method is called in a state that
	// does not allow it, e.g. starting without an agent description.
	ErrPrecondition = errors.New("precondition failed")
	// ErrInvalidArgument is returned when a setter receives unusable input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("opamp client already started")
	// ErrAlreadyShutdown is returned by a second call to Shutdown and by
	// setters called after Shutdown.
	ErrAlreadyShutdown = errors.New("opamp client already shut down")

	errHeadersTimeout = errors.New("timed out waiting for response headers")
	errBodyTimeout    = errors.New("timed out reading response body")
)
