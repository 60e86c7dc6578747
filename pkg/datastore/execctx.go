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
package datastore

import (
	"context"

	"github.com/google/uuid"
)

type executionContextKey struct{}

// WithExecutionContext returns a context bound to a fresh execution context.
// Connections acquired with the returned context (or contexts derived from it)
// belong to that execution context.
func WithExecutionContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, executionContextKey{}, uuid.NewString())
}

// ExecutionContextID returns the execution context bound to ctx, if any.
func ExecutionContextID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(executionContextKey{}).(string)
	return id, ok && id != ""
}

// ensureExecutionContext binds a fresh execution context when ctx has none.
func ensureExecutionContext(ctx context.Context) (context.Context, string) {
	if id, ok := ExecutionContextID(ctx); ok {
		return ctx, id
	}
	ctx = WithExecutionContext(ctx)
	id, _ := ExecutionContextID(ctx)
	return ctx, id
}
