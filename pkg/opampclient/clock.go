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
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is the part of clockwork.Clock used by the scheduler.
type clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) clockwork.Timer
}
