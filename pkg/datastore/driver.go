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

	"github.com/teradata-labs/datastore/pkg/config"
)

// OpenFunc opens a driver's native pool holding between minConns and maxConns
// physical connections.
type OpenFunc func(ctx context.Context, minConns, maxConns int, dsn config.DSN) (Pool, error)

// Pool is the native connection pool of a driver.
type Pool interface {
	// Get checks a physical session out of the pool.
	Get(ctx context.Context) (Session, error)

	// Put returns a session to the pool. A transaction still open on the
	// session is rolled back first.
	Put(ctx context.Context, s Session) error

	// CloseAll closes every physical connection of the pool, including
	// connections still checked out. It must not wait for their release;
	// putting such a session afterwards must not fail.
	CloseAll()
}

// Session is one physical database session.
// A Session is used by a single goroutine at a time.
type Session interface {
	Exec(ctx context.Context, query string, args ...any) error
	Query(ctx context.Context, query string, args ...any) (Rows, error)

	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	InTransaction() bool
}

// Rows iterates over a statement result.
type Rows interface {
	Next() bool
	Values() ([]any, error)
	Err() error
	Close()
}

// Row is one result row; values are in column order.
type Row []any
