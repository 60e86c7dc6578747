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
// Package pgxdriver adapts a pgx/v5 pgxpool.Pool to the datastore Pool and
// Session interfaces. It is the default driver ("pgx").
//
// Unlike the sqlpool package (which goes through database/sql), pgxdriver
// holds pgxpool connections directly and tracks transactions as pgx.Tx.
//
// Usage:
//
//	h, err := datastore.NewHandler(ctx, cfg.Database, pgxdriver.Opener(tracer))
//	defer h.Shutdown()
package pgxdriver
