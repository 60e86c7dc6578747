// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package observability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// TracerMode specifies which tracer implementation to use.
type TracerMode string

const (
	// TracerModeNone disables tracing.
	TracerModeNone TracerMode = "none"

	// TracerModeMemory keeps spans and metrics in process.
	TracerModeMemory TracerMode = "memory"

	// TracerModeLog keeps spans in process and logs each one at info level.
	TracerModeLog TracerMode = "log"
)

// TracerModes lists the accepted tracing modes.
func TracerModes() []TracerMode {
	return []TracerMode{TracerModeNone, TracerModeMemory, TracerModeLog}
}

// NewTracer creates the tracer for mode. An empty mode means none.
func NewTracer(mode string, maxSpans int, logger *zap.Logger) (Tracer, error) {
	switch TracerMode(strings.ToLower(strings.TrimSpace(mode))) {
	case "", TracerModeNone:
		return NewNoOpTracer(), nil

	case TracerModeMemory:
		return NewEmbeddedTracer(&EmbeddedConfig{MaxSpans: maxSpans, Logger: logger}), nil

	case TracerModeLog:
		return NewEmbeddedTracer(&EmbeddedConfig{MaxSpans: maxSpans, LogSpans: true, Logger: logger}), nil

	default:
		return nil, fmt.Errorf("unsupported tracing mode: %s (supported: %v)", mode, TracerModes())
	}
}
