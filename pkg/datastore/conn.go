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
	"sync/atomic"
)

// Conn is a connection held by one execution context.
//
// With autocommit off (the state GetConnection hands out) the first statement
// implicitly opens a transaction that stays open until Commit, Rollback, the
// end of a ConnectionContext scope, or the release of the connection.
type Conn struct {
	session    Session
	autocommit bool

	// closed is set when Shutdown takes the connection away from its
	// execution context.
	closed atomic.Bool
}

func newConn(s Session) *Conn {
	return &Conn{session: s, autocommit: true}
}

// Session returns the underlying driver session.
func (c *Conn) Session() Session {
	return c.session
}

// Autocommit reports whether statements run outside an implicit transaction.
func (c *Conn) Autocommit() bool {
	return c.autocommit
}

// SetAutocommit switches autocommit. Enabling it while a transaction is open
// is a ProgrammerError.
func (c *Conn) SetAutocommit(on bool) error {
	if on && c.session.InTransaction() {
		return programmerError("cannot enable autocommit inside an open transaction")
	}
	c.autocommit = on
	return nil
}

// usable fails with ErrHandlerClosed once Shutdown has closed c.
func (c *Conn) usable(op string) error {
	if c.closed.Load() {
		return databaseError(op, ErrHandlerClosed)
	}
	return nil
}

func (c *Conn) begin(ctx context.Context) error {
	if c.autocommit || c.session.InTransaction() {
		return nil
	}
	return databaseError("begin", c.session.Begin(ctx))
}

// Exec runs a statement and discards its result.
func (c *Conn) Exec(ctx context.Context, query string, args ...any) error {
	if err := c.usable("exec"); err != nil {
		return err
	}
	if err := c.begin(ctx); err != nil {
		return err
	}
	return databaseError("exec", c.session.Exec(ctx, query, args...))
}

// Query runs a statement and returns all rows.
func (c *Conn) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	var result []Row
	err := c.scan(ctx, query, args, func(r Row) bool {
		result = append(result, r)
		return true
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// QueryRow runs a statement and returns its first row, or nil when the
// statement produced no rows.
func (c *Conn) QueryRow(ctx context.Context, query string, args ...any) (Row, error) {
	var first Row
	err := c.scan(ctx, query, args, func(r Row) bool {
		first = r
		return false
	})
	if err != nil {
		return nil, err
	}
	return first, nil
}

func (c *Conn) scan(ctx context.Context, query string, args []any, fn func(Row) bool) error {
	if err := c.usable("query"); err != nil {
		return err
	}
	if err := c.begin(ctx); err != nil {
		return err
	}
	rows, err := c.session.Query(ctx, query, args...)
	if err != nil {
		return databaseError("query", err)
	}
	defer rows.Close()

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return databaseError("scan", err)
		}
		if !fn(Row(values)) {
			return nil
		}
	}
	return databaseError("query", rows.Err())
}

// Commit commits the open transaction, if any.
func (c *Conn) Commit(ctx context.Context) error {
	if err := c.usable("commit"); err != nil {
		return err
	}
	if !c.session.InTransaction() {
		return nil
	}
	return databaseError("commit", c.session.Commit(ctx))
}

// Rollback rolls back the open transaction, if any.
func (c *Conn) Rollback(ctx context.Context) error {
	if err := c.usable("rollback"); err != nil {
		return err
	}
	if !c.session.InTransaction() {
		return nil
	}
	return databaseError("rollback", c.session.Rollback(ctx))
}

// exitScope ends the transactional scope entered by a ConnectionContext:
// commit when the body succeeded, roll back otherwise. It runs even when ctx
// is already cancelled.
func (c *Conn) exitScope(ctx context.Context, bodyErr error) error {
	ctx = context.WithoutCancel(ctx)
	if bodyErr == nil {
		return c.Commit(ctx)
	}
	return c.Rollback(ctx)
}
