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

// Package datastore manages the lifecycle of pooled database connections.
//
// A Handler enforces a hard cap on concurrently held connections through a
// counting capacity gate and hands out at most one connection per execution
// context. An execution context is a token carried on context.Context; bind
// one per goroutine (or per unit of work) with WithExecutionContext. Code
// running below that context sees the same connection without it being
// passed around explicitly.
//
// Usage:
//
//	h, err := backend.NewHandler(ctx, cfg.Database, observability.NewNoOpTracer(), logger)
//	if err != nil {
//	    return err
//	}
//	defer h.Shutdown()
//
//	ctx = datastore.WithExecutionContext(ctx)
//	err = h.GetConnectionContext().Run(ctx, func(ctx context.Context, conn *datastore.Conn) error {
//	    ids, err := h.QueryListOfSingleValues(ctx, "SELECT id FROM models WHERE fqid = $1", []any{fqid})
//	    ...
//	})
//
// Acquiring a second connection in the same execution context, or releasing a
// connection the context does not hold, is a ProgrammerError. Failures of the
// underlying driver are DatabaseErrors. Neither kind is retried.
package datastore
